package pager

import "sync"

// SharedState exposes the current page and query to other components.
// Only the pager writes it.
type SharedState struct {
	mu    sync.RWMutex
	page  int
	query string
}

func NewSharedState() *SharedState { return &SharedState{} }

func (s *SharedState) CurrentPage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

func (s *SharedState) CurrentQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

func (s *SharedState) set(page int, query string) {
	s.mu.Lock()
	s.page = page
	s.query = query
	s.mu.Unlock()
}
