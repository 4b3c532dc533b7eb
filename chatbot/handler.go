package chatbot

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Registry keeps live Sessions so a client can reconnect to its conversation
type Registry interface {
	// Get returns the Session with the given id, or nil if there is none
	Get(id string) *Session
	Put(s *Session)
}

// Handler handles WebSocket chat connections
type Handler struct {
	registry   Registry
	newSession func(r *http.Request) *Session
	log        *zap.Logger
}

// NewHandler creates a new chat handler. newSession is called for connections
// that don't resume an existing conversation.
func NewHandler(registry Registry, newSession func(r *http.Request) *Session, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		registry:   registry,
		newSession: newSession,
		log:        log,
	}
}

// ServeHTTP handles the WebSocket upgrade and the chat flow
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Get or create conversation
	var sess *Session
	if id := r.URL.Query().Get("conversation_id"); id != "" {
		sess = h.registry.Get(id)
	}
	if sess == nil {
		sess = h.newSession(r)
		h.registry.Put(sess)
	}
	log := h.log.With(zap.String("conversation_id", sess.ID()))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newFrameWriter(ctx, conn)
	defer out.close()

	unsubscribe := sess.Subscribe(func(snap Snapshot) {
		out.send(snapshotMessage(MessageTypeSnapshot, snap))
	})
	defer unsubscribe()

	out.send(snapshotMessage(MessageTypeSnapshot, sess.Snapshot()))

	// turns outlive the connection so a reconnecting client sees the full answer
	turnCtx := context.WithoutCancel(ctx)

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case ClientTypeSend:
			if msg.Message == "" {
				out.send(errorMessage(sess.ID(), "Message cannot be empty"))
				continue
			}
			go func(text string) {
				h.finishTurn(out, sess, sess.SendMessage(turnCtx, text, nil))
			}(msg.Message)
		case ClientTypeSelect:
			go func(system string) {
				h.finishTurn(out, sess, sess.Select(turnCtx, system))
			}(msg.System)
		case ClientTypeClear:
			sess.ClearConversation()
			out.send(snapshotMessage(MessageTypeCleared, sess.Snapshot()))
		default:
			out.send(errorMessage(sess.ID(), "Unknown message type: "+msg.Type))
		}
	}
}

func (h *Handler) finishTurn(out *frameWriter, sess *Session, err error) {
	if err != nil {
		out.send(errorMessage(sess.ID(), errorText(err)))
		return
	}
	snap := sess.Snapshot()
	if snap.ShowClarification {
		out.send(snapshotMessage(MessageTypeClarify, snap))
		return
	}
	out.send(snapshotMessage(MessageTypeDone, snap))
}

func errorText(err error) string {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return "Message cannot be empty"
	case errors.Is(err, ErrTurnInProgress):
		return "Please wait for the current response to finish"
	case errors.Is(err, ErrNoClarification):
		return "There is no question waiting for a system selection"
	case errors.Is(err, ErrUnknownChoice):
		return "Unknown system selection"
	}
	return err.Error()
}

func snapshotMessage(typ string, snap Snapshot) ServerMessage {
	return ServerMessage{Type: typ, ConversationID: snap.ID, Snapshot: &snap}
}

func errorMessage(id, msg string) ServerMessage {
	return ServerMessage{Type: MessageTypeError, ConversationID: id, Error: msg}
}

// frameWriter serializes writes to a websocket connection from several goroutines
type frameWriter struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
	frames chan ServerMessage
	done   chan struct{}
	once   sync.Once
}

func newFrameWriter(ctx context.Context, conn *websocket.Conn) *frameWriter {
	ctx, cancel := context.WithCancel(ctx)
	w := &frameWriter{
		ctx:    ctx,
		cancel: cancel,
		conn:   conn,
		frames: make(chan ServerMessage, 64),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *frameWriter) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.frames:
			if err := w.conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// send queues msg, dropping it if the connection has gone away
func (w *frameWriter) send(msg ServerMessage) {
	select {
	case w.frames <- msg:
	case <-w.done:
	case <-w.ctx.Done():
	}
}

func (w *frameWriter) close() {
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}
