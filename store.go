package kratosecho

import (
	"context"
	"fmt"
	"sync"

	"github.com/atjeff/kratos-echo/internal/domain"
)

// Store holds the current Client and tells waiters when it is ready.
type Store struct {
	notify sync.Mutex // orders deliveries to subscribers
	mu     sync.RWMutex
	client *Client
	ready  chan struct{}
	once   sync.Once
	subs   map[int]func(*Client)
	nextID int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		ready: make(chan struct{}),
		subs:  make(map[int]func(*Client)),
	}
}

// DefaultStore is populated by Initialize.
var DefaultStore = NewStore()

// Set publishes c to every subscriber. Subscribers see Sets in the order
// they happened and must not call Set themselves.
func (s *Store) Set(c *Client) {
	s.notify.Lock()
	defer s.notify.Unlock()

	s.mu.Lock()
	s.client = c
	subs := make([]func(*Client), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	if c != nil {
		s.once.Do(func() { close(s.ready) })
	}
	for _, fn := range subs {
		fn(c)
	}
}

// Get returns the current client, or nil before the first Set.
func (s *Store) Get() *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Ready is closed once a client has been set.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Wait blocks until a client is set or ctx ends.
func (s *Store) Wait(ctx context.Context) (*Client, error) {
	select {
	case <-s.ready:
		return s.Get(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrNotInitialized, ctx.Err())
	}
}

// Subscribe calls fn with the current client and again after every Set.
func (s *Store) Subscribe(fn func(*Client)) (unsubscribe func()) {
	s.notify.Lock()
	defer s.notify.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	current := s.client
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
