package store

import (
	"sort"
	"sync"
	"time"
)

type cacheEntry struct {
	bearing   float64
	expiresAt time.Time // zero means no expiry
}

// MemoryCache implements BearingCache using an in-memory map.
// Expired entries are cleaned up periodically.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// NewMemoryCache creates a new in-memory bearing cache.
// It starts a background goroutine that removes expired entries every hour.
func NewMemoryCache() *MemoryCache {
	cache := &MemoryCache{
		entries:     make(map[string]cacheEntry),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	go cache.cleanupLoop(time.Hour)

	return cache
}

// Get returns the cached bearing for key if present and not expired.
func (c *MemoryCache) Get(key string) (float64, bool, error) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return 0, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		return 0, false, nil
	}
	return entry.bearing, true, nil
}

// Set stores a bearing with the given TTL.
func (c *MemoryCache) Set(key string, bearing float64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry{bearing: bearing}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

// Len returns the number of entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background cleanup goroutine.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
	return nil
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries.
func (c *MemoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// MemorySessionStore implements SessionStore using an in-memory map.
// This is useful for testing but not recommended for production.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session        // sessionID -> Session
	byUser   map[string]map[string]bool // userID -> set of sessionIDs
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]bool),
	}
}

// Save persists a new session.
func (s *MemorySessionStore) Save(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sessions[session.SessionID]; ok && prev.UserID != session.UserID {
		delete(s.byUser[prev.UserID], session.SessionID)
	}

	stored := *session
	s.sessions[session.SessionID] = &stored

	if s.byUser[session.UserID] == nil {
		s.byUser[session.UserID] = make(map[string]bool)
	}
	s.byUser[session.UserID][session.SessionID] = true

	return nil
}

// End records the outcome of an open session.
func (s *MemorySessionStore) End(sessionID, outcome string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists || !session.Open() {
		return nil
	}
	session.Outcome = outcome
	session.EndedAt = endedAt
	return nil
}

// ListByUser returns a user's sessions, newest first.
func (s *MemorySessionStore) ListByUser(userID string, limit int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionIDs, exists := s.byUser[userID]
	if !exists {
		return nil, nil
	}

	sessions := make([]*Session, 0, len(sessionIDs))
	for sessionID := range sessionIDs {
		if session := s.sessions[sessionID]; session != nil {
			copied := *session
			sessions = append(sessions, &copied)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// Close is a no-op for the memory store.
func (s *MemorySessionStore) Close() error {
	return nil
}
