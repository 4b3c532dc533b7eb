package chatbot

import (
	"context"
	"errors"
	"io"
)

// readChunkSize is the size of each read from the response body
const readChunkSize = 4096

// Stream reads r in chunks and sends its decoded Events on the returned channel.
// The channel is closed after exactly one terminal event: EventDone when the sentinel
// is seen or r ends cleanly, EventFailed when a read fails or ctx is canceled.
// If ctx is canceled while nobody is receiving, the channel may close without a
// terminal event. r is not closed.
func Stream(ctx context.Context, r io.Reader, charset string) <-chan Event {
	ch := make(chan Event, 16)

	dec, err := NewDecoder(charset)
	if err != nil {
		ch <- Event{Type: EventFailed, Err: &StreamError{Kind: ErrorKindOpen, Description: "Could not decode stream", Err: err}}
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)

		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		// a canceled ctx makes send pick at random between delivering and
		// dropping; fail delivers whenever the buffer has room
		fail := func(err error) {
			select {
			case ch <- Event{Type: EventFailed, Err: err}:
			default:
				send(Event{Type: EventFailed, Err: err})
			}
		}

		buf := make([]byte, readChunkSize)
		for {
			if err := ctx.Err(); err != nil {
				fail(&StreamError{Kind: ErrorKindRead, Description: "Stream canceled", Err: err})
				return
			}

			n, err := r.Read(buf)
			if n > 0 {
				for _, ev := range dec.Write(buf[:n]) {
					if !send(ev) {
						return
					}
				}
				if dec.Finished() {
					return
				}
			}

			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				fail(&StreamError{Kind: ErrorKindRead, Description: "Could not read stream", Err: err})
				return
			}
		}

		for _, ev := range dec.Flush() {
			if !send(ev) {
				return
			}
		}
		if !dec.Finished() {
			send(Event{Type: EventDone})
		}
	}()

	return ch
}
