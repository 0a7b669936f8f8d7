// Package auth holds the dashboard credential: an in-memory bearer token
// store and a REST client that obtains tokens from the backend.
package auth

import "sync"

// Store is a thread-safe holder for the current bearer token. It implements
// the realtime manager's TokenSource; an empty token means unauthenticated.
type Store struct {
	mu    sync.RWMutex
	token string
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Store) Clear() {
	s.Set("")
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}
