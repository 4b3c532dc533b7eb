package chatbot

// Merger folds the events of one stream into a single assistant message
type Merger struct {
	transcript *Transcript
	gen        uint64
	index      int
	content    string
	finalized  bool
	stopped    bool
}

// NewMerger returns a Merger writing to t
func NewMerger(t *Transcript) *Merger {
	return &Merger{transcript: t, gen: t.gen, index: -1}
}

// Apply merges ev and reports whether the transcript changed.
// EventFailed stops the merger and leaves any partial message unfinalized.
func (m *Merger) Apply(ev Event) bool {
	if m.stopped {
		return false
	}
	if m.gen != m.transcript.gen {
		// transcript was reset under this stream
		m.stopped = true
		return false
	}

	switch ev.Type {
	case EventDelta:
		if ev.Content == "" {
			return false
		}
		if m.index == -1 {
			m.index = m.transcript.begin()
		}
		m.transcript.extend(ev.Content)
		m.content += ev.Content
		return true
	case EventDone:
		m.finalized = true
		m.stop()
	case EventFailed:
		m.stop()
	}
	return false
}

func (m *Merger) stop() {
	if m.index != -1 && m.gen == m.transcript.gen {
		m.transcript.release()
	}
	m.stopped = true
}

// Started reports whether an assistant message was created
func (m *Merger) Started() bool {
	return m.index != -1
}

// Finalized reports whether the stream completed normally
func (m *Merger) Finalized() bool {
	return m.finalized
}

// Content returns the merged text
func (m *Merger) Content() string {
	return m.content
}

// Message returns the merged message, if one was created
func (m *Merger) Message() (Message, bool) {
	if m.index == -1 || m.gen != m.transcript.gen {
		return Message{}, false
	}
	return m.transcript.messages[m.index], true
}
