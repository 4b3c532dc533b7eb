package chatbot

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"
)

// ChatSession is a stored conversation
type ChatSession struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ConversationStore defines the interface for conversation storage
type ConversationStore interface {
	// Get returns the session with the given id, or nil if it doesn't exist
	Get(ctx context.Context, id string) (*ChatSession, error)
	Create(ctx context.Context, title string) (*ChatSession, error)
	AddMessages(ctx context.Context, id string, msgs []ChatMessage) error
	SetTitle(ctx context.Context, id, title string) error
}

// LRUStore implements ConversationStore with an LRU cache bounded by size in bytes
type LRUStore struct {
	mu       sync.Mutex
	maxBytes int
	curBytes int
	items    map[string]*list.Element
	lru      *list.List
}

type lruEntry struct {
	id    string
	sess  *ChatSession
	bytes int
}

// NewLRUStore creates a new LRU conversation store
func NewLRUStore(maxBytes int) *LRUStore {
	return &LRUStore{
		maxBytes: maxBytes,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// sessionBytes approximates the memory used by sess by its JSON size
func sessionBytes(sess *ChatSession) int {
	data, _ := json.Marshal(sess)
	return len(data)
}

// Get retrieves a copy of a session by ID
func (s *LRUStore) Get(ctx context.Context, id string) (*ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[id]; ok {
		s.lru.MoveToFront(elem)
		sess := *elem.Value.(*lruEntry).sess
		sess.Messages = append([]ChatMessage(nil), sess.Messages...)
		return &sess, nil
	}
	return nil, nil
}

// Create creates a new session
func (s *LRUStore) Create(ctx context.Context, title string) (*ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &ChatSession{
		ID:        newID(),
		Title:     title,
		Messages:  []ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	bytes := sessionBytes(sess)
	s.evict(bytes)

	entry := &lruEntry{id: sess.ID, sess: sess, bytes: bytes}
	elem := s.lru.PushFront(entry)
	s.items[sess.ID] = elem
	s.curBytes += bytes

	out := *sess
	return &out, nil
}

// AddMessages adds messages to a session. Unknown (or evicted) ids are ignored.
func (s *LRUStore) AddMessages(ctx context.Context, id string, msgs []ChatMessage) error {
	return s.update(id, func(sess *ChatSession) {
		sess.Messages = append(sess.Messages, msgs...)
	})
}

// SetTitle sets the title of a session. Unknown (or evicted) ids are ignored.
func (s *LRUStore) SetTitle(ctx context.Context, id, title string) error {
	return s.update(id, func(sess *ChatSession) {
		sess.Title = title
	})
}

func (s *LRUStore) update(id string, fn func(*ChatSession)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[id]
	if !ok {
		return nil
	}

	entry := elem.Value.(*lruEntry)
	oldBytes := entry.bytes

	fn(entry.sess)
	entry.sess.UpdatedAt = time.Now()

	newBytes := sessionBytes(entry.sess)
	entry.bytes = newBytes
	s.curBytes += (newBytes - oldBytes)

	s.lru.MoveToFront(elem)
	s.evict(0)

	return nil
}

// evict drops least recently used sessions until incoming more bytes fit
func (s *LRUStore) evict(incoming int) {
	for s.curBytes+incoming > s.maxBytes && s.lru.Len() > 0 {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*lruEntry)
		s.lru.Remove(oldest)
		delete(s.items, entry.id)
		s.curBytes -= entry.bytes
	}
}
