package chatbot

import (
	"errors"
	"fmt"
	"strings"
)

// State is the state of a Conversation
type State int

// States
const (
	StateIdle State = iota
	StateAwaitingClarification
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingClarification:
		return "awaiting_clarification"
	case StateStreaming:
		return "streaming"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Conversation errors
var (
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrTurnInProgress  = errors.New("a response is still streaming")
	ErrUnknownChoice   = errors.New("unknown clarification choice")
	ErrNoClarification = errors.New("no clarification is pending")
)

// Turn is a request that must be sent upstream
type Turn struct {
	// User is the transcript message for this turn
	User Message
	// Content is what is sent upstream for this turn; annotated if a choice was made
	Content string
	// History is the full message list for the request
	History []ChatMessage
	Choice  *Choice
}

// Conversation holds the transcript and decides when a message needs clarification
type Conversation struct {
	transcript    *Transcript
	disambiguator *Disambiguator
	displayName   string

	state        State
	pending      *string
	pendingIndex int
}

// NewConversation returns an idle Conversation. A nil Disambiguator never asks for clarification.
func NewConversation(d *Disambiguator, displayName string) *Conversation {
	return &Conversation{
		transcript:    NewTranscript(),
		disambiguator: d,
		displayName:   displayName,
		pendingIndex:  -1,
	}
}

// Begin applies a user message (and optional clarification choice) to the conversation.
// If a request must be sent, the Turn is returned and the conversation is Streaming.
// A nil Turn with a nil error means the conversation is waiting for a clarification.
func (c *Conversation) Begin(text string, choice *Choice) (*Turn, error) {
	if c.state == StateStreaming {
		return nil, ErrTurnInProgress
	}

	if choice != nil {
		return c.beginWithChoice(text, choice)
	}

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	// a new message abandons an unanswered clarification
	c.clearPending()

	if c.disambiguator != nil && c.disambiguator.Triggers(text) {
		c.pendingIndex = c.transcript.Append(newMessage(RoleUser, text, true))
		c.pending = &text
		c.state = StateAwaitingClarification
		return nil, nil
	}

	history := c.transcript.History()
	user := newMessage(RoleUser, text, true)
	c.transcript.Append(user)

	return c.start(&Turn{
		User:    user,
		Content: text,
		History: append(history, ChatMessage{Role: RoleUser, Content: text}),
	}), nil
}

func (c *Conversation) beginWithChoice(text string, choice *Choice) (*Turn, error) {
	if c.pending == nil {
		// no prompt was shown; the choice annotates text directly
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyMessage
		}
		history := c.transcript.History()
		user := newMessage(RoleUser, text, true)
		c.transcript.Append(user)
		content := Annotate(choice, text)
		return c.start(&Turn{
			User:    user,
			Content: content,
			History: append(history, ChatMessage{Role: RoleUser, Content: content}),
			Choice:  choice,
		}), nil
	}

	original := *c.pending
	index := c.pendingIndex
	c.clearPending()

	user := c.transcript.messages[index]
	user.Fresh = false
	c.transcript.messages[index].Fresh = false

	// the question stays in the history as typed, followed by its annotated form
	history := c.transcript.History()
	content := Annotate(choice, original)

	return c.start(&Turn{
		User:    user,
		Content: content,
		History: append(history, ChatMessage{Role: RoleUser, Content: content}),
		Choice:  choice,
	}), nil
}

func (c *Conversation) start(turn *Turn) *Turn {
	if c.displayName != "" && len(turn.History) > 0 {
		turn.History[0].Content = fmt.Sprintf("[User's name is %s] %s", c.displayName, turn.History[0].Content)
	}
	c.state = StateStreaming
	return turn
}

// Select answers a pending clarification with the Choice with the given id
func (c *Conversation) Select(id string) (*Turn, error) {
	if c.pending == nil {
		return nil, ErrNoClarification
	}
	if c.disambiguator == nil {
		return nil, ErrUnknownChoice
	}
	choice, ok := c.disambiguator.Choice(id)
	if !ok {
		return nil, ErrUnknownChoice
	}
	return c.Begin(*c.pending, choice)
}

// Finish returns a Streaming conversation to Idle
func (c *Conversation) Finish() {
	if c.state == StateStreaming {
		c.state = StateIdle
	}
}

// Reset empties the conversation from any state
func (c *Conversation) Reset() {
	c.transcript.Reset()
	c.clearPending()
	c.state = StateIdle
}

func (c *Conversation) clearPending() {
	c.pending = nil
	c.pendingIndex = -1
	if c.state == StateAwaitingClarification {
		c.state = StateIdle
	}
}

// State returns the current state
func (c *Conversation) State() State {
	return c.state
}

// Loading reports whether a response is streaming
func (c *Conversation) Loading() bool {
	return c.state == StateStreaming
}

// ShowClarification reports whether a clarification prompt should be shown
func (c *Conversation) ShowClarification() bool {
	return c.state == StateAwaitingClarification
}

// Pending returns the message waiting for a clarification
func (c *Conversation) Pending() (string, bool) {
	if c.pending == nil {
		return "", false
	}
	return *c.pending, true
}

// Disambiguator returns the conversation's Disambiguator, which may be nil
func (c *Conversation) Disambiguator() *Disambiguator {
	return c.disambiguator
}

// Messages returns a copy of the transcript
func (c *Conversation) Messages() []Message {
	return c.transcript.Messages()
}

// Transcript returns the conversation's transcript
func (c *Conversation) Transcript() *Transcript {
	return c.transcript
}
