package chatbot_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/korylprince/sureassist/chatbot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// failingStore fails every call
type failingStore struct{}

func (failingStore) Get(ctx context.Context, id string) (*chatbot.ChatSession, error) {
	return nil, errors.New("down")
}

func (failingStore) Create(ctx context.Context, title string) (*chatbot.ChatSession, error) {
	return nil, errors.New("down")
}

func (failingStore) AddMessages(ctx context.Context, id string, msgs []chatbot.ChatMessage) error {
	return errors.New("down")
}

func (failingStore) SetTitle(ctx context.Context, id, title string) error {
	return errors.New("down")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "short", chatbot.Title("short"))

	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, chatbot.Title(exact))

	long := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50)+"...", chatbot.Title(long))
}

func TestRecorder(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := chatbot.NewLRUStore(1 << 20)
	rec := chatbot.NewRecorder(store, nil)

	opener := bodyOpener(deltaLine("Use the receipt workbench.") + "data: [DONE]\n")
	s := chatbot.NewSession(opener, chatbot.WithHooks(rec.Hooks()))

	assert.Empty(t, rec.StoredID())
	require.NoError(t, s.SendMessage(ctx, "How do I apply cash?", nil))

	id := rec.StoredID()
	require.NotEmpty(t, id)

	sess, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "How do I apply cash?", sess.Title)
	assert.Equal(t, []chatbot.ChatMessage{
		{Role: chatbot.RoleUser, Content: "How do I apply cash?"},
		{Role: chatbot.RoleAssistant, Content: "Use the receipt workbench."},
	}, sess.Messages)

	require.NoError(t, s.SendMessage(ctx, "Thanks", nil))
	assert.Equal(t, id, rec.StoredID())
	sess, _ = store.Get(ctx, id)
	assert.Len(t, sess.Messages, 4)
	assert.Equal(t, "How do I apply cash?", sess.Title, "the title comes from the first message")

	s.ClearConversation()
	assert.Empty(t, rec.StoredID())

	require.NoError(t, s.SendMessage(ctx, "New topic", nil))
	assert.NotEqual(t, id, rec.StoredID())
}

func TestRecorderClarifiedTurn(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := chatbot.NewLRUStore(1 << 20)
	rec := chatbot.NewRecorder(store, nil)
	s := chatbot.NewSession(bodyOpener(deltaLine("ok")), chatbot.WithHooks(rec.Hooks()))

	require.NoError(t, s.SendMessage(ctx, "oracle receipts", nil))
	assert.Empty(t, rec.StoredID(), "nothing is recorded while waiting for a choice")

	require.NoError(t, s.Select(ctx, "equant"))
	sess, _ := store.Get(ctx, rec.StoredID())
	require.NotNil(t, sess)
	assert.Equal(t, "oracle receipts", sess.Messages[0].Content)
}

func TestRecorderStoreErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := chatbot.NewRecorder(failingStore{}, nil)
	s := chatbot.NewSession(bodyOpener(deltaLine("still answered")), chatbot.WithHooks(rec.Hooks()))

	require.NoError(t, s.SendMessage(context.Background(), "hello", nil))
	assert.Empty(t, rec.StoredID())

	msgs := s.Snapshot().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "still answered", msgs[1].Content)
}
