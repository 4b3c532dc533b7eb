package chatbot_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/korylprince/sureassist/chatbot"
)

func deltaLine(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n"
}

func contents(events []chatbot.Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == chatbot.EventDelta {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

func collect(t *testing.T, ch <-chan chatbot.Event) []chatbot.Event {
	t.Helper()
	var events []chatbot.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

// erroringReader returns data then fails
type erroringReader struct {
	data string
	err  error
}

func (r *erroringReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// fakeOpener returns canned responses and records the requests it was given
type fakeOpener struct {
	mu       sync.Mutex
	requests [][]chatbot.ChatMessage
	open     func(ctx context.Context) (*chatbot.StreamBody, error)
}

func (f *fakeOpener) OpenStream(ctx context.Context, messages []chatbot.ChatMessage) (*chatbot.StreamBody, error) {
	f.mu.Lock()
	f.requests = append(f.requests, messages)
	open := f.open
	f.mu.Unlock()
	return open(ctx)
}

func (f *fakeOpener) setOpen(open func(ctx context.Context) (*chatbot.StreamBody, error)) {
	f.mu.Lock()
	f.open = open
	f.mu.Unlock()
}

func (f *fakeOpener) last() []chatbot.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func bodyOpener(body string) *fakeOpener {
	return &fakeOpener{open: func(context.Context) (*chatbot.StreamBody, error) {
		return &chatbot.StreamBody{Body: io.NopCloser(strings.NewReader(body))}, nil
	}}
}
