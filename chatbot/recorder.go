package chatbot

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	defaultTitle   = "New Chat"
	titleMaxLength = 50
)

// Recorder saves a Session's turns to a ConversationStore.
// A stored session is created with the first turn and forgotten when the conversation is cleared.
// Storage errors are logged and never reach the conversation.
type Recorder struct {
	store ConversationStore
	log   *zap.Logger

	mu     sync.Mutex
	id     string
	titled bool
}

// NewRecorder returns a Recorder saving to store
func NewRecorder(store ConversationStore, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log}
}

// Hooks returns Session hooks that record to the store
func (r *Recorder) Hooks() Hooks {
	return Hooks{
		OnTurn:     r.recordTurn,
		OnComplete: r.recordAnswer,
		OnClear:    r.forget,
	}
}

// StoredID returns the id of the stored session, or "" if nothing was recorded yet
func (r *Recorder) StoredID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

func (r *Recorder) recordTurn(ctx context.Context, turn *Turn) {
	id, ok := r.ensure(ctx)
	if !ok {
		return
	}

	if err := r.store.AddMessages(ctx, id, []ChatMessage{{Role: RoleUser, Content: turn.User.Content}}); err != nil {
		r.log.Error("could not save user message", zap.String("session_id", id), zap.Error(err))
		return
	}

	r.mu.Lock()
	first := !r.titled
	r.titled = true
	r.mu.Unlock()

	if first {
		if err := r.store.SetTitle(ctx, id, Title(turn.User.Content)); err != nil {
			r.log.Error("could not set session title", zap.String("session_id", id), zap.Error(err))
		}
	}
}

func (r *Recorder) recordAnswer(ctx context.Context, msg Message) {
	r.mu.Lock()
	id := r.id
	r.mu.Unlock()
	if id == "" {
		return
	}

	if err := r.store.AddMessages(ctx, id, []ChatMessage{{Role: msg.Role, Content: msg.Content}}); err != nil {
		r.log.Error("could not save assistant message", zap.String("session_id", id), zap.Error(err))
	}
}

func (r *Recorder) forget() {
	r.mu.Lock()
	r.id = ""
	r.titled = false
	r.mu.Unlock()
}

func (r *Recorder) ensure(ctx context.Context) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id != "" {
		return r.id, true
	}

	sess, err := r.store.Create(ctx, defaultTitle)
	if err != nil {
		r.log.Error("could not create chat session", zap.Error(err))
		return "", false
	}
	r.id = sess.ID
	r.log.Debug("created chat session", zap.String("session_id", sess.ID))
	return r.id, true
}

// Title returns a session title for the first message of a conversation
func Title(content string) string {
	if utf8.RuneCountInString(content) <= titleMaxLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleMaxLength]) + "..."
}
