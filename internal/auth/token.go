package auth

import "sync"

// TokenSource holds the current access token. The connector refreshes it
// after each login; every socket session reads it when dialing, so a
// reconnect after a refresh picks up the new token automatically.
type TokenSource struct {
	mu    sync.RWMutex
	token string
}

// NewTokenSource creates a TokenSource seeded with token.
func NewTokenSource(token string) *TokenSource {
	return &TokenSource{token: token}
}

// Token returns the current access token.
func (s *TokenSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the current access token.
func (s *TokenSource) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}
