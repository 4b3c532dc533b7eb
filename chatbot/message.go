package chatbot

import (
	"github.com/google/uuid"
)

// Role is the author of a message
type Role string

// Roles
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation transcript
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Fresh is set on messages that have just been created. UIs use it to animate arrival.
	Fresh bool `json:"is_new,omitempty"`
}

// ChatMessage is the role/content pair sent upstream
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func newID() string {
	return uuid.NewString()
}

func newMessage(role Role, content string, fresh bool) Message {
	return Message{ID: newID(), Role: role, Content: content, Fresh: fresh}
}

// Transcript is the ordered history of a conversation.
// At most one assistant message is in progress (being written by a stream) at a time.
type Transcript struct {
	messages []Message
	active   int
	// gen changes on every Reset so writers from before a reset can detect it
	gen uint64
}

// NewTranscript returns an empty Transcript
func NewTranscript() *Transcript {
	return &Transcript{active: -1}
}

// Append adds m to the end of the transcript and returns its index
func (t *Transcript) Append(m Message) int {
	t.messages = append(t.messages, m)
	return len(t.messages) - 1
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the transcript's messages
func (t *Transcript) Messages() []Message {
	msgs := make([]Message, len(t.messages))
	copy(msgs, t.messages)
	return msgs
}

// Last returns the last message, if any
func (t *Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// History returns the transcript as role/content pairs
func (t *Transcript) History() []ChatMessage {
	history := make([]ChatMessage, 0, len(t.messages)+1)
	for _, m := range t.messages {
		history = append(history, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return history
}

// Reset empties the transcript
func (t *Transcript) Reset() {
	t.messages = nil
	t.active = -1
	t.gen++
}

// begin appends an in-progress assistant message
func (t *Transcript) begin() int {
	if t.active != -1 {
		panic("chatbot: transcript already has a message in progress")
	}
	t.active = t.Append(newMessage(RoleAssistant, "", true))
	return t.active
}

func (t *Transcript) extend(fragment string) {
	t.messages[t.active].Content += fragment
}

// release marks the in-progress message as no longer writable
func (t *Transcript) release() {
	t.active = -1
}

// InProgress reports whether a message is being written by an open stream
func (t *Transcript) InProgress() bool {
	return t.active != -1
}
