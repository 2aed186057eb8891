package arrivals

import (
	"context"
	"sync"

	"github.com/pietrosul/MyBusApp/internal/transit"
)

// Selection tracks the currently selected station of one client. Each
// Select supersedes the previous one: its lookup context is cancelled and
// its token stops being current.
type Selection struct {
	resolver *Resolver

	mu     sync.Mutex
	token  uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSelection(resolver *Resolver) *Selection {
	return &Selection{resolver: resolver}
}

// Select starts an asynchronous lookup for station and returns its token.
// deliver receives the token with the result; callers should drop results
// for which Current reports false.
func (s *Selection) Select(parent context.Context, station transit.Station, deliver func(token uint64, estimates []transit.ArrivalEstimate)) uint64 {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.token++
	token := s.token
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		estimates := s.resolver.ArrivalsFor(ctx, station)
		if s.Current(token) {
			deliver(token, estimates)
		}
	}()
	return token
}

// Current reports whether token belongs to the latest selection.
func (s *Selection) Current(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil && s.token == token
}

// Clear cancels the in-flight lookup and deselects.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.token++
}

// Wait blocks until every started lookup has returned.
func (s *Selection) Wait() {
	s.wg.Wait()
}
