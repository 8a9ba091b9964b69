package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"nexustodo/internal/service"
	"nexustodo/internal/tasksync"
)

// TaskRef represents a parsed task reference.
type TaskRef struct {
	Num int    // 1-based position in the default listing, 0 if ID is set
	ID  string // task id or unique id prefix
}

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// ParseTaskRef parses a task reference from the first argument.
// All digits is a listing number; anything else is a task id or id prefix.
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 {
		return TaskRef{}, ErrTaskRefRequired
	}

	arg := strings.TrimSpace(args[0])
	if arg == "" {
		return TaskRef{}, ErrTaskRefRequired
	}

	if isAllDigits(arg) {
		num, err := strconv.Atoi(arg)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
		}
		return TaskRef{Num: num}, nil
	}

	if strings.ContainsFunc(arg, unicode.IsSpace) {
		return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
	}
	return TaskRef{ID: arg}, nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Listing returns tasks in the default order used for numbering.
func Listing(tasks []service.Task) []service.Task {
	return tasksync.Apply(tasks, tasksync.Query{})
}

// Resolve finds the referenced task in tasks. Numbers index the default
// listing. An exact id wins over prefix matches.
func (r TaskRef) Resolve(tasks []service.Task) (service.Task, error) {
	if r.ID == "" {
		listing := Listing(tasks)
		if r.Num < 1 || r.Num > len(listing) {
			return service.Task{}, fmt.Errorf("task number out of range: %d", r.Num)
		}
		return listing[r.Num-1], nil
	}

	var matches []service.Task
	for _, t := range tasks {
		if t.ID == r.ID {
			return t, nil
		}
		if strings.HasPrefix(t.ID, r.ID) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return service.Task{}, fmt.Errorf("task not found: %s", r.ID)
	case 1:
		return matches[0], nil
	default:
		return service.Task{}, fmt.Errorf("ambiguous task reference: %s", r.ID)
	}
}
