package chatbot_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/korylprince/sureassist/chatbot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapRegistry is a Registry without expiration
type mapRegistry struct {
	mu       sync.Mutex
	sessions map[string]*chatbot.Session
}

func (m *mapRegistry) Get(id string) *chatbot.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *mapRegistry) Put(s *chatbot.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
}

func newTestServer(t *testing.T, opener chatbot.StreamOpener) (*httptest.Server, *mapRegistry) {
	t.Helper()
	registry := &mapRegistry{sessions: make(map[string]*chatbot.Session)}
	handler := chatbot.NewHandler(registry, func(r *http.Request) *chatbot.Session {
		return chatbot.NewSession(opener, chatbot.WithDisplayName(r.URL.Query().Get("display_name")))
	}, nil)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, registry
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of type typ arrives
func readUntil(t *testing.T, conn *websocket.Conn, typ string) chatbot.ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg chatbot.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
		if msg.Type == chatbot.MessageTypeError && typ != chatbot.MessageTypeError {
			t.Fatalf("Received error: %s", msg.Error)
		}
	}
}

func TestHandlerClarifiedTurn(t *testing.T) {
	opener := bodyOpener(deltaLine("Post it in ") + deltaLine("Fusion.") + "data: [DONE]\n")
	server, _ := newTestServer(t, opener)
	conn := dial(t, server, "")

	hello := readUntil(t, conn, chatbot.MessageTypeSnapshot)
	require.NotEmpty(t, hello.ConversationID)
	assert.Empty(t, hello.Snapshot.Messages)

	require.NoError(t, conn.WriteJSON(chatbot.ClientMessage{Type: chatbot.ClientTypeSend, Message: "How do I post a receipt in Oracle AR?"}))
	clarify := readUntil(t, conn, chatbot.MessageTypeClarify)
	assert.True(t, clarify.Snapshot.ShowClarification)
	assert.Equal(t, chatbot.DefaultDisambiguator().Prompt, clarify.Snapshot.Prompt)
	require.Len(t, clarify.Snapshot.Choices, 2)

	require.NoError(t, conn.WriteJSON(chatbot.ClientMessage{Type: chatbot.ClientTypeSelect, System: "fusion"}))
	done := readUntil(t, conn, chatbot.MessageTypeDone)
	assert.Equal(t, hello.ConversationID, done.ConversationID)
	assert.False(t, done.Snapshot.Loading)
	require.Len(t, done.Snapshot.Messages, 2)
	assert.Equal(t, "Post it in Fusion.", done.Snapshot.Messages[1].Content)

	assert.Equal(t, []chatbot.ChatMessage{
		{Role: chatbot.RoleUser, Content: "How do I post a receipt in Oracle AR?"},
		{Role: chatbot.RoleUser, Content: "[User selected Oracle Fusion] How do I post a receipt in Oracle AR?"},
	}, opener.last())

	require.NoError(t, conn.WriteJSON(chatbot.ClientMessage{Type: chatbot.ClientTypeClear}))
	cleared := readUntil(t, conn, chatbot.MessageTypeCleared)
	assert.Empty(t, cleared.Snapshot.Messages)
	assert.Equal(t, "idle", cleared.Snapshot.State)
}

func TestHandlerErrors(t *testing.T) {
	server, _ := newTestServer(t, bodyOpener(""))
	conn := dial(t, server, "")
	readUntil(t, conn, chatbot.MessageTypeSnapshot)

	require.NoError(t, conn.WriteJSON(chatbot.ClientMessage{Type: chatbot.ClientTypeSend}))
	msg := readUntil(t, conn, chatbot.MessageTypeError)
	assert.Equal(t, "Message cannot be empty", msg.Error)

	require.NoError(t, conn.WriteJSON(chatbot.ClientMessage{Type: chatbot.ClientTypeSelect, System: "fusion"}))
	msg = readUntil(t, conn, chatbot.MessageTypeError)
	assert.Equal(t, "There is no question waiting for a system selection", msg.Error)

	require.NoError(t, conn.WriteJSON(chatbot.ClientMessage{Type: "bogus"}))
	msg = readUntil(t, conn, chatbot.MessageTypeError)
	assert.Equal(t, "Unknown message type: bogus", msg.Error)
}

func TestHandlerResume(t *testing.T) {
	server, registry := newTestServer(t, bodyOpener(deltaLine("hi")))
	conn := dial(t, server, "?display_name=Dana")
	hello := readUntil(t, conn, chatbot.MessageTypeSnapshot)

	require.NoError(t, conn.WriteJSON(chatbot.ClientMessage{Type: chatbot.ClientTypeSend, Message: "hello"}))
	readUntil(t, conn, chatbot.MessageTypeDone)
	conn.Close()

	require.NotNil(t, registry.Get(hello.ConversationID))

	resumed := dial(t, server, "?conversation_id="+hello.ConversationID)
	again := readUntil(t, resumed, chatbot.MessageTypeSnapshot)
	assert.Equal(t, hello.ConversationID, again.ConversationID)
	assert.Len(t, again.Snapshot.Messages, 2)

	fresh := dial(t, server, "?conversation_id=unknown")
	other := readUntil(t, fresh, chatbot.MessageTypeSnapshot)
	assert.NotEqual(t, hello.ConversationID, other.ConversationID)
	assert.Empty(t, other.Snapshot.Messages)
}
