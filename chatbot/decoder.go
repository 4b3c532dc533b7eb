package chatbot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SSE framing
const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
	commentMark  = ":"
)

// EventType is the kind of a decoded stream Event
type EventType int

// EventTypes
const (
	EventDelta EventType = iota
	EventDone
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is a single decoded stream event
type Event struct {
	Type    EventType
	Content string // set for EventDelta
	Err     error  // set for EventFailed
}

// Decoder turns arbitrarily split chunks of a chat completions event stream into Events.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	text     *textDecoder
	buf      string
	finished bool
}

// NewDecoder returns a Decoder for a stream declared with the given charset.
// An empty charset means UTF-8.
func NewDecoder(charset string) (*Decoder, error) {
	enc, err := lookupEncoding(charset)
	if err != nil {
		return nil, err
	}
	return &Decoder{text: newTextDecoder(enc)}, nil
}

func lookupEncoding(charset string) (encoding.Encoding, error) {
	if charset == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc, nil
}

// Finished reports whether the sentinel has been seen
func (d *Decoder) Finished() bool {
	return d.finished
}

// Write buffers chunk and returns the events for every line that is complete.
// Once the sentinel has been seen, further input is ignored.
func (d *Decoder) Write(chunk []byte) []Event {
	if d.finished {
		return nil
	}
	d.buf += d.text.decode(chunk, false)

	var events []Event
	for !d.finished {
		idx := strings.IndexByte(d.buf, '\n')
		if idx == -1 {
			break
		}
		line := d.buf[:idx]
		rest := d.buf[idx+1:]

		ev, ok, err := parseLine(line)
		if err != nil {
			// split payload; leave the line in place until more bytes arrive
			break
		}
		d.buf = rest
		if !ok {
			continue
		}
		if ev.Type == EventDone {
			d.finished = true
		}
		events = append(events, ev)
	}
	return events
}

// Flush processes whatever is left in the buffer after the source has ended.
// Lines that still fail to parse are dropped.
func (d *Decoder) Flush() []Event {
	if d.finished {
		return nil
	}
	d.buf += d.text.decode(nil, true)
	residual := d.buf
	d.buf = ""

	var events []Event
	for _, line := range strings.Split(residual, "\n") {
		ev, ok, err := parseLine(line)
		if err != nil || !ok {
			continue
		}
		events = append(events, ev)
		if ev.Type == EventDone {
			d.finished = true
			break
		}
	}
	return events
}

// errPartialPayload marks a data line whose JSON did not parse
var errPartialPayload = errors.New("partial payload")

// parseLine decodes a single line. ok is false for lines that carry no event.
func parseLine(line string) (ev Event, ok bool, err error) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, commentMark) {
		return Event{}, false, nil
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, false, nil
	}

	data := strings.TrimSpace(line[len(dataPrefix):])
	if data == doneSentinel {
		return Event{Type: EventDone}, true, nil
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return Event{}, false, errPartialPayload
	}

	content := deltaContent(payload)
	if content == "" {
		return Event{}, false, nil
	}
	return Event{Type: EventDelta, Content: content}, true, nil
}

// deltaContent returns choices[0].delta.content, or "" if the payload has another shape
func deltaContent(payload interface{}) string {
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return ""
	}
	choices, ok := obj["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return ""
	}
	choice, ok := choices[0].(map[string]interface{})
	if !ok {
		return ""
	}
	delta, ok := choice["delta"].(map[string]interface{})
	if !ok {
		return ""
	}
	content, _ := delta["content"].(string)
	return content
}

// textDecoder converts bytes in a declared encoding to UTF-8 across chunk boundaries.
// Incomplete multi-byte sequences at the end of a chunk are held until the next one.
type textDecoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func newTextDecoder(enc encoding.Encoding) *textDecoder {
	return &textDecoder{t: enc.NewDecoder()}
}

func (d *textDecoder) decode(chunk []byte, atEOF bool) string {
	src := append(d.pending, chunk...)
	d.pending = nil
	if len(src) == 0 {
		return ""
	}

	if need := 3*len(src) + 16; len(d.dst) < need {
		d.dst = make([]byte, need)
	}

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]

		if err == transform.ErrShortDst {
			if nSrc == 0 && nDst == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
			continue
		}
		if err != nil {
			// ErrShortSrc: a truncated sequence waits for the next chunk
			d.pending = append([]byte(nil), src...)
		}
		break
	}

	if atEOF {
		d.pending = nil
		d.t.Reset()
	}
	return out.String()
}
