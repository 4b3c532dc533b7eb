package chatbot

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorNotice formats the assistant message shown for a failed stream
func ErrorNotice(reason string) string {
	return fmt.Sprintf("I apologize, but I encountered an error: %s. Please try again.", reason)
}

// Hooks are called by a Session as turns progress. Any of them may be nil.
// They run on the goroutine calling SendMessage, without the Session's lock held.
type Hooks struct {
	// OnTurn is called before the request for a turn is opened
	OnTurn func(ctx context.Context, turn *Turn)
	// OnComplete is called with the finalized assistant message of a turn
	OnComplete func(ctx context.Context, msg Message)
	// OnError is called when a turn ends with a terminal stream error
	OnError func(ctx context.Context, err error)
	// OnClear is called after the conversation is cleared
	OnClear func()
}

// Snapshot is the state of a Session as seen by a UI
type Snapshot struct {
	ID                string    `json:"conversation_id"`
	Messages          []Message `json:"messages"`
	State             string    `json:"state"`
	Loading           bool      `json:"loading"`
	ShowClarification bool      `json:"show_clarification"`
	Prompt            string    `json:"prompt,omitempty"`
	Choices           []Choice  `json:"choices,omitempty"`
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the Session's logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithDisambiguator sets the clarification rules. nil disables clarification.
func WithDisambiguator(d *Disambiguator) Option {
	return func(s *Session) { s.disambiguator = d }
}

// WithDisplayName adds the user's name as context to the first message sent upstream
func WithDisplayName(name string) Option {
	return func(s *Session) { s.displayName = name }
}

// WithHooks sets the Session's hooks
func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

// WithObserver adds a function called with a Snapshot every time the Session changes
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

// Session owns one conversation and the stream of its current turn.
// Only one turn streams at a time; SendMessage must not be called again until it returns.
type Session struct {
	id            string
	opener        StreamOpener
	log           *zap.Logger
	hooks         Hooks
	observers     []func(Snapshot)
	disambiguator *Disambiguator
	displayName   string

	mu          sync.Mutex
	conv        *Conversation
	gen         uint64
	cancel      context.CancelFunc
	subscribers map[int]func(Snapshot)
	nextSub     int
}

// NewSession returns a Session that opens streams with opener
func NewSession(opener StreamOpener, opts ...Option) *Session {
	s := &Session{
		id:            uuid.NewString(),
		opener:        opener,
		log:           zap.NewNop(),
		disambiguator: DefaultDisambiguator(),
		subscribers:   make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.conv = NewConversation(s.disambiguator, s.displayName)
	return s
}

// ID returns the Session's id
func (s *Session) ID() string {
	return s.id
}

// SendMessage sends text, or answers the pending clarification if choice is non-nil,
// and blocks until the turn's stream has ended.
// Stream failures are reported in the transcript, never returned; the returned error
// is only for input that was rejected without changing the conversation.
func (s *Session) SendMessage(ctx context.Context, text string, choice *Choice) error {
	return s.begin(ctx, func() (*Turn, error) {
		return s.conv.Begin(text, choice)
	})
}

// Select answers the pending clarification with the choice with the given id
func (s *Session) Select(ctx context.Context, id string) error {
	return s.begin(ctx, func() (*Turn, error) {
		return s.conv.Select(id)
	})
}

// begin applies transition under the lock and runs the turn it returns
func (s *Session) begin(ctx context.Context, transition func() (*Turn, error)) error {
	s.mu.Lock()
	turn, err := transition()
	if err != nil {
		s.mu.Unlock()
		s.log.Debug("message rejected", zap.String("conversation_id", s.id), zap.Error(err))
		return err
	}
	if turn == nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		s.log.Info("clarification requested", zap.String("conversation_id", s.id))
		return nil
	}

	// the stream is bound to this generation before a clear can run
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	gen := s.gen
	s.cancel = cancel
	merger := NewMerger(s.conv.transcript)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	s.run(ctx, turn, gen, merger)
	return nil
}

// ClearConversation empties the conversation from any state.
// A stream that is still open is canceled and its remaining events are dropped.
func (s *Session) ClearConversation() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.conv.Reset()
	s.gen++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info("conversation cleared", zap.String("conversation_id", s.id))
	if s.hooks.OnClear != nil {
		s.hooks.OnClear()
	}
	s.notify(snap)
}

func (s *Session) run(ctx context.Context, turn *Turn, gen uint64, merger *Merger) {
	log := s.log.With(zap.String("conversation_id", s.id))
	if turn.Choice != nil {
		log = log.With(zap.String("choice", turn.Choice.ID))
	}

	if s.hooks.OnTurn != nil {
		s.hooks.OnTurn(ctx, turn)
	}

	log.Debug("opening stream", zap.Int("messages", len(turn.History)))
	body, err := s.opener.OpenStream(ctx, turn.History)
	if err != nil {
		s.fail(ctx, log, gen, merger, err)
		return
	}
	defer body.Body.Close()

	for ev := range Stream(ctx, body.Body, body.Charset) {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		changed := merger.Apply(ev)
		snap := s.snapshotLocked()
		s.mu.Unlock()

		switch ev.Type {
		case EventDelta:
			if changed {
				s.notify(snap)
			}
		case EventDone:
			s.complete(ctx, log, gen, merger)
			return
		case EventFailed:
			s.fail(ctx, log, gen, merger, ev.Err)
			return
		}
	}

	// closed without a terminal event: canceled while no one was receiving
	s.fail(ctx, log, gen, merger, &StreamError{Kind: ErrorKindRead, Description: "Stream canceled", Err: context.Cause(ctx)})
}

func (s *Session) complete(ctx context.Context, log *zap.Logger, gen uint64, merger *Merger) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.conv.Finish()
	s.cancel = nil
	msg, ok := merger.Message()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	log.Info("stream complete", zap.Int("content_length", len(merger.Content())))
	s.notify(snap)

	if ok && msg.Content != "" && s.hooks.OnComplete != nil {
		s.hooks.OnComplete(ctx, msg)
	}
}

func (s *Session) fail(ctx context.Context, log *zap.Logger, gen uint64, merger *Merger, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	merger.Apply(Event{Type: EventFailed, Err: err})
	s.conv.transcript.Append(newMessage(RoleAssistant, ErrorNotice(errorReason(err)), true))
	s.conv.Finish()
	s.cancel = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	log.Warn("stream failed", zap.Bool("partial", merger.Started()), zap.Error(err))
	s.notify(snap)

	if s.hooks.OnError != nil {
		s.hooks.OnError(ctx, err)
	}
}

// Snapshot returns the current state of the Session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:                s.id,
		Messages:          s.conv.Messages(),
		State:             s.conv.State().String(),
		Loading:           s.conv.Loading(),
		ShowClarification: s.conv.ShowClarification(),
	}
	if snap.ShowClarification && s.disambiguator != nil {
		snap.Prompt = s.disambiguator.Prompt
		snap.Choices = s.disambiguator.Choices
	}
	return snap
}

// Subscribe adds fn as an observer until the returned function is called
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Session) notify(snap Snapshot) {
	s.mu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range s.observers {
		fn(snap)
	}
	for _, fn := range subs {
		fn(snap)
	}
}
