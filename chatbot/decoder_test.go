package chatbot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func deltaLine(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n"
}

func contents(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == EventDelta {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

func decodeAll(t *testing.T, chunks ...string) []Event {
	t.Helper()
	dec, err := NewDecoder("")
	require.NoError(t, err)

	var events []Event
	for _, c := range chunks {
		events = append(events, dec.Write([]byte(c))...)
	}
	return append(events, dec.Flush()...)
}

func TestDecoderDeltas(t *testing.T) {
	events := decodeAll(t, deltaLine("A")+deltaLine("B")+"data: [DONE]\n")

	require.Len(t, events, 3)
	assert.Equal(t, Event{Type: EventDelta, Content: "A"}, events[0])
	assert.Equal(t, Event{Type: EventDelta, Content: "B"}, events[1])
	assert.Equal(t, EventDone, events[2].Type)
}

func TestDecoderSplitAcrossChunks(t *testing.T) {
	dec, err := NewDecoder("")
	require.NoError(t, err)

	events := dec.Write([]byte(`data: {"choices":[{"delta"`))
	assert.Empty(t, events)

	events = dec.Write([]byte(`:{"content":"X"}}]}` + "\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "X", events[0].Content)
}

func TestDecoderChunkingInvariance(t *testing.T) {
	stream := ": keep-alive\n\n" +
		deltaLine("Hello") +
		"\r\n" +
		`data: {"choices":[{"delta":{"content":", wörld ✓"}}]}` + "\r\n" +
		`data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n" +
		"event: ping\n" +
		deltaLine("!") +
		"data: [DONE]\n" +
		deltaLine("ignored")

	whole := decodeAll(t, stream)
	require.Equal(t, "Hello, wörld ✓!", contents(whole))
	require.Equal(t, EventDone, whole[len(whole)-1].Type)

	for _, size := range []int{1, 2, 3, 5, 7, 13, 64} {
		var chunks []string
		b := []byte(stream)
		for len(b) > 0 {
			n := size
			if n > len(b) {
				n = len(b)
			}
			chunks = append(chunks, string(b[:n]))
			b = b[n:]
		}
		assert.Equal(t, whole, decodeAll(t, chunks...), "chunk size %d", size)
	}
}

func TestDecoderIgnoresAfterDone(t *testing.T) {
	dec, err := NewDecoder("")
	require.NoError(t, err)

	events := dec.Write([]byte("data: [DONE]\n" + deltaLine("late")))
	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Type)
	assert.True(t, dec.Finished())

	assert.Empty(t, dec.Write([]byte(deltaLine("later"))))
	assert.Empty(t, dec.Flush())
}

func TestDecoderFlushResidual(t *testing.T) {
	dec, err := NewDecoder("")
	require.NoError(t, err)

	// no trailing newline
	events := dec.Write([]byte(deltaLine("A") + `data: {"choices":[{"delta":{"content":"B"}}]}`))
	require.Len(t, events, 1)
	assert.False(t, dec.Finished())

	events = dec.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, "B", events[0].Content)
}

func TestDecoderFlushDone(t *testing.T) {
	dec, err := NewDecoder("")
	require.NoError(t, err)

	// the malformed line holds the sentinel back until the end
	assert.Empty(t, dec.Write([]byte(`data: {"choices":[`+"\n"+"data: [DONE]\n")))
	assert.False(t, dec.Finished())

	events := dec.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Type)
	assert.True(t, dec.Finished())
}

func TestDecoderFlushStopsAtDone(t *testing.T) {
	events := decodeAll(t, `data: {"bad"`+"\n"+"data: [DONE]\n"+deltaLine("after"))

	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Type)
}

func TestDecoderIgnoresOtherShapes(t *testing.T) {
	events := decodeAll(t,
		`data: {"choices":[]}`+"\n",
		`data: {"choices":[{"delta":{"content":42}}]}`+"\n",
		`data: {"choices":[{"delta":{"content":null}}]}`+"\n",
		`data: [1,2,3]`+"\n",
		`data: "text"`+"\n",
		`data:{"choices":[{"delta":{"content":"no space"}}]}`+"\n",
		deltaLine("ok"),
	)
	assert.Equal(t, "ok", contents(events))
}

func TestDecoderMultibyteSplit(t *testing.T) {
	line := []byte(deltaLine("日本"))
	// split inside the first rune
	i := strings.Index(string(line), "日") + 1

	dec, err := NewDecoder("utf-8")
	require.NoError(t, err)
	events := dec.Write(line[:i])
	events = append(events, dec.Write(line[i:])...)

	require.Len(t, events, 1)
	assert.Equal(t, "日本", events[0].Content)
}

func TestDecoderCharset(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String(deltaLine("café"))
	require.NoError(t, err)

	dec, err := NewDecoder("windows-1252")
	require.NoError(t, err)
	events := dec.Write([]byte(encoded))

	require.Len(t, events, 1)
	assert.Equal(t, "café", events[0].Content)

	dec, err = NewDecoder("ISO-8859-1")
	require.NoError(t, err)
	events = dec.Write([]byte(encoded))
	require.Len(t, events, 1)
	assert.Equal(t, "café", events[0].Content)
}

func TestDecoderUnknownCharset(t *testing.T) {
	_, err := NewDecoder("x-not-a-charset")
	assert.Error(t, err)
}
