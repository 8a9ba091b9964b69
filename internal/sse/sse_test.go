package sse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "event: delta\ndata: {\"content\":\"Hel\"}\n\n" +
	": keep-alive\n" +
	"event: delta\r\ndata: {\"content\":\"lo\"}\r\n\r\n" +
	"event: action\nid: 7\ndata: {\"intent\":\ndata: \"detail\"}\n\n" +
	"event: done\ndata: {\"sessionId\":\"s1\"}\n\n"

func feedAll(chunks ...string) []Event {
	var d Decoder
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Feed([]byte(c))...)
	}
	return events
}

func TestFeed_Sample(t *testing.T) {
	events := feedAll(sample)
	require.Len(t, events, 4)

	assert.Equal(t, "delta", events[0].Kind)
	assert.JSONEq(t, `{"content":"Hel"}`, string(events[0].Data))
	assert.Equal(t, "delta", events[1].Kind)
	assert.JSONEq(t, `{"content":"lo"}`, string(events[1].Data))
	assert.Equal(t, "action", events[2].Kind)
	assert.JSONEq(t, `{"intent":"detail"}`, string(events[2].Data))
	assert.Equal(t, "done", events[3].Kind)
}

func TestFeed_ChunkBoundaryInvariance(t *testing.T) {
	want := feedAll(sample)

	// One byte at a time.
	var bytewise []string
	for i := 0; i < len(sample); i++ {
		bytewise = append(bytewise, sample[i:i+1])
	}
	assert.Equal(t, want, feedAll(bytewise...))

	// Every two-way split.
	for i := 0; i <= len(sample); i++ {
		assert.Equal(t, want, feedAll(sample[:i], sample[i:]), "split at %d", i)
	}
}

func TestFeed_EventWithoutDataIsNull(t *testing.T) {
	events := feedAll("event: ping\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "ping", events[0].Kind)
	assert.True(t, events[0].Null())
	assert.Nil(t, events[0].Data)
}

func TestFeed_DataWithoutEventIsMessage(t *testing.T) {
	events := feedAll("data: 1\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, DefaultKind, events[0].Kind)
	assert.Equal(t, "1", string(events[0].Data))
}

func TestFeed_MalformedJSONIsNull(t *testing.T) {
	events := feedAll("event: delta\ndata: {not json\n\nevent: done\ndata: {}\n\n")
	require.Len(t, events, 2)
	assert.True(t, events[0].Null())
	assert.Equal(t, "done", events[1].Kind)
	assert.False(t, events[1].Null())
}

func TestFeed_EmptyRecordsEmitNothing(t *testing.T) {
	assert.Empty(t, feedAll("\n\n\r\n: comment\n\n"))
}

func TestFeed_FieldsResetAfterFlush(t *testing.T) {
	events := feedAll("event: a\ndata: 1\n\ndata: 2\n\n")
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Kind)
	assert.Equal(t, DefaultKind, events[1].Kind)
	assert.Equal(t, "2", string(events[1].Data))
}

func TestPending(t *testing.T) {
	var d Decoder
	assert.False(t, d.Pending())

	d.Feed([]byte("event: done\ndata: {}"))
	assert.True(t, d.Pending())

	d.Feed([]byte("\n\n"))
	assert.False(t, d.Pending())

	d.Feed([]byte("event: x\n"))
	assert.True(t, d.Pending())
}

func TestEvent_Decode(t *testing.T) {
	var v struct {
		Content string `json:"content"`
	}
	ev := Event{Kind: "delta", Data: []byte(`{"content":"hi"}`)}
	require.NoError(t, ev.Decode(&v))
	assert.Equal(t, "hi", v.Content)

	v.Content = "keep"
	require.NoError(t, Event{Kind: "delta"}.Decode(&v))
	assert.Equal(t, "keep", v.Content)
}

func TestDecode_OrderAndTrailingRecordDropped(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader(sample + "event: delta\ndata: {}"))

	var kinds []string
	err := Decode(context.Background(), r, func(ev Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"delta", "delta", "action", "done"}, kinds)
}

func TestDecode_StopsOnCallbackError(t *testing.T) {
	boom := errors.New("boom")
	var n int
	err := Decode(context.Background(), strings.NewReader(sample), func(ev Event) error {
		n++
		if ev.Kind == "action" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, n)

	n = 0
	err = Decode(context.Background(), strings.NewReader(sample), func(ev Event) error {
		n++
		return ErrStop
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDecode_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n int
	err := Decode(ctx, strings.NewReader(sample), func(Event) error {
		n++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}

func TestDecode_ReadError(t *testing.T) {
	boom := errors.New("reset")
	err := Decode(context.Background(), iotest.ErrReader(boom), func(Event) error { return nil })
	assert.ErrorIs(t, err, boom)
}
