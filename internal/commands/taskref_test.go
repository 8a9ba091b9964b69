package commands

import (
	"testing"
	"time"

	"nexustodo/internal/service"
)

func TestParseTaskRef_Number(t *testing.T) {
	ref, err := ParseTaskRef([]string{"5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.ID != "" {
		t.Errorf("expected no ID, got %q", ref.ID)
	}
	if ref.Num != 5 {
		t.Errorf("expected Num 5, got %d", ref.Num)
	}
}

func TestParseTaskRef_IDPrefix(t *testing.T) {
	ref, err := ParseTaskRef([]string{"a1b2", "ignored"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.ID != "a1b2" || ref.Num != 0 {
		t.Errorf("expected ID ref, got %+v", ref)
	}
}

func TestParseTaskRef_Required(t *testing.T) {
	for _, args := range [][]string{nil, {}, {"  "}} {
		if _, err := ParseTaskRef(args); err != ErrTaskRefRequired {
			t.Errorf("ParseTaskRef(%q) error = %v, want ErrTaskRefRequired", args, err)
		}
	}
}

func TestParseTaskRef_Invalid(t *testing.T) {
	_, err := ParseTaskRef([]string{"a b"})
	if err == nil {
		t.Fatal("expected error for ref with spaces")
	}
	expectedMsg := "invalid task reference: a b"
	if err.Error() != expectedMsg {
		t.Errorf("expected %q, got %q", expectedMsg, err.Error())
	}
}

func TestParseTaskRef_Overflow(t *testing.T) {
	if _, err := ParseTaskRef([]string{"99999999999999999999999"}); err == nil {
		t.Error("expected error for number overflow")
	}
}

func TestIsAllDigits(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", false},
		{"0", true},
		{"123", true},
		{"12a", false},
		{"-1", false},
		{"١٢", false},
	}
	for _, tt := range tests {
		if got := isAllDigits(tt.input); got != tt.want {
			t.Errorf("isAllDigits(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestTaskRef_Resolve(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }
	tasks := []service.Task{
		{ID: "abc1", Title: "oldest", CreatedAt: day(1)},
		{ID: "abd2", Title: "middle", CreatedAt: day(2)},
		{ID: "ab", Title: "newest", CreatedAt: day(3)},
	}

	tests := []struct {
		name    string
		ref     TaskRef
		want    string
		wantErr string
	}{
		{"first in default listing", TaskRef{Num: 1}, "newest", ""},
		{"last in default listing", TaskRef{Num: 3}, "oldest", ""},
		{"out of range", TaskRef{Num: 4}, "", "task number out of range: 4"},
		{"exact id beats prefix", TaskRef{ID: "ab"}, "newest", ""},
		{"unique prefix", TaskRef{ID: "abd"}, "middle", ""},
		{"ambiguous prefix", TaskRef{ID: "a"}, "", "ambiguous task reference: a"},
		{"unknown", TaskRef{ID: "zz"}, "", "task not found: zz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ref.Resolve(tasks)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("expected error %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Title != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.Title)
			}
		})
	}
}
