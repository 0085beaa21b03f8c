package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Encoder writes events as newline-delimited JSON {type, data} objects.
type Encoder struct {
	w   io.Writer
	enc *json.Encoder
}

type flusher interface{ Flush() }

// NewEncoder creates an NDJSON encoder. If w can Flush (http.ResponseWriter
// does), every event is flushed as soon as it is written.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{w: w, enc: enc}
}

// Encode writes one event line.
func (e *Encoder) Encode(ev Event) error {
	if err := e.enc.Encode(ev); err != nil {
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	if f, ok := e.w.(flusher); ok {
		f.Flush()
	}
	return nil
}

// Pipe copies events from ch to enc until ch closes, the context ends or a
// write fails. ctx belongs to the reader: pass the connection context, not
// the turn context, so the terminal event of a timed out turn is still
// written.
func Pipe(ctx context.Context, ch <-chan Event, enc *Encoder) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
	}
}

// Decoder reads NDJSON events.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &Decoder{sc: sc}
}

// Decode returns the next event, or io.EOF at end of input. Blank lines are
// skipped. The payload is decoded into its typed struct.
func (d *Decoder) Decode() (Event, error) {
	for d.sc.Scan() {
		line := strings.TrimSpace(d.sc.Text())
		if line == "" {
			continue
		}
		var raw rawEvent
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return Event{}, fmt.Errorf("decode event line: %w", err)
		}
		data, err := decodePayload(raw.Type, raw.Data)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: raw.Type, Data: data}, nil
	}
	if err := d.sc.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
