// Package sse turns an arbitrarily chunked text/event-stream byte sequence
// into an ordered sequence of typed events.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
)

// DefaultKind is the kind of a record that carried data but no event line.
const DefaultKind = "message"

// Event is one decoded record. Data is nil when the payload was absent or
// not valid JSON.
type Event struct {
	Kind string
	Data json.RawMessage
}

// Null reports whether the event carries no payload.
func (e Event) Null() bool {
	return len(e.Data) == 0 || bytes.Equal(e.Data, []byte("null"))
}

// Decode unmarshals the payload into v. A null payload leaves v untouched.
func (e Event) Decode(v any) error {
	if e.Null() {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Decoder is the framing state machine. The zero value is ready to use.
// Feeding the same bytes in any chunking yields the same events.
type Decoder struct {
	buf     []byte
	kind    string
	data    []byte
	hasData bool
}

var (
	fieldEvent = []byte("event:")
	fieldData  = []byte("data:")
)

// Feed consumes chunk and returns the events completed by it, in order.
// Bytes after the last line feed are held until the next call.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	start := 0
	for {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := d.buf[start : start+i]
		start += i + 1
		line = bytes.TrimSuffix(line, []byte("\r"))
		if ev, ok := d.line(line); ok {
			events = append(events, ev)
		}
	}

	// Keep the partial line in a fresh slice so the caller's chunk is not
	// retained.
	rest := len(d.buf) - start
	copy(d.buf, d.buf[start:])
	d.buf = d.buf[:rest]
	return events
}

// Pending reports whether the decoder holds bytes or fields not yet
// terminated by a blank line. Such a record is dropped at end of stream.
func (d *Decoder) Pending() bool {
	return len(d.buf) > 0 || d.kind != "" || d.hasData
}

func (d *Decoder) line(line []byte) (Event, bool) {
	switch {
	case len(line) == 0:
		return d.flush()
	case bytes.HasPrefix(line, fieldEvent):
		d.kind = string(bytes.TrimSpace(line[len(fieldEvent):]))
	case bytes.HasPrefix(line, fieldData):
		d.data = append(d.data, bytes.TrimSpace(line[len(fieldData):])...)
		d.hasData = true
	}
	// Comments (":") and other fields (id, retry) are ignored.
	return Event{}, false
}

func (d *Decoder) flush() (Event, bool) {
	if d.kind == "" && !d.hasData {
		return Event{}, false
	}
	ev := Event{Kind: d.kind}
	if ev.Kind == "" {
		ev.Kind = DefaultKind
	}
	if len(d.data) > 0 && json.Valid(d.data) {
		ev.Data = json.RawMessage(bytes.Clone(d.data))
	}
	d.kind = ""
	d.data = d.data[:0]
	d.hasData = false
	return ev, true
}

// ErrStop may be returned by a Decode callback to end decoding without
// reporting an error.
var ErrStop = errors.New("stop decoding")

const readSize = 4096

// Decode reads r until EOF and calls fn for every event in arrival order.
// It returns the first error from fn (other than ErrStop), from reading, or
// from ctx.
func Decode(ctx context.Context, r io.Reader, fn func(Event) error) error {
	var d Decoder
	buf := make([]byte, readSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			for _, ev := range d.Feed(buf[:n]) {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(ev); err != nil {
					if errors.Is(err, ErrStop) {
						return nil
					}
					return err
				}
			}
		}
		if readErr == io.EOF {
			if d.Pending() {
				slog.Debug("stream ended inside a record, dropping it")
			}
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
