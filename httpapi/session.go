package httpapi

import (
	"sync"
	"time"

	"github.com/korylprince/sureassist/chatbot"
)

//registryEntry is a live conversation
type registryEntry struct {
	session *chatbot.Session
	expires time.Time
}

//MemoryRegistry is a chatbot.Registry that keeps conversations in an in-memory map until they go unused for its duration
type MemoryRegistry struct {
	store    map[string]*registryEntry
	duration time.Duration
	mu       *sync.Mutex
}

//scavenge removes stale conversations every interval
func scavenge(m *MemoryRegistry, interval time.Duration) {
	for {
		time.Sleep(interval)
		m.removeExpired(time.Now())
	}
}

func (m *MemoryRegistry) removeExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.store {
		if e.expires.Before(now) {
			delete(m.store, id)
		}
	}
}

//NewMemoryRegistry returns a new MemoryRegistry with the given expiration duration.
func NewMemoryRegistry(duration time.Duration) *MemoryRegistry {
	m := newMemoryRegistry(duration)
	go scavenge(m, time.Hour)
	return m
}

func newMemoryRegistry(duration time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		store:    make(map[string]*registryEntry),
		duration: duration,
		mu:       new(sync.Mutex),
	}
}

//Put adds the session to the registry
func (m *MemoryRegistry) Put(s *chatbot.Session) {
	m.mu.Lock()
	m.store[s.ID()] = &registryEntry{
		session: s,
		expires: time.Now().Add(m.duration),
	}
	m.mu.Unlock()
}

//Get returns the session with the given id and extends its expiration, or nil if it doesn't exist or has expired
func (m *MemoryRegistry) Get(id string) *chatbot.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.store[id]; ok {
		if e.expires.After(time.Now()) {
			e.expires = time.Now().Add(m.duration)
			return e.session
		}
		delete(m.store, id)
	}
	return nil
}

//Len returns the number of conversations in the registry
func (m *MemoryRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}
