package devidp

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity
	byEmail    map[string]string
	flows      map[string]*Flow
	sessions   map[string]*Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]*Identity),
		byEmail:    make(map[string]string),
		flows:      make(map[string]*Flow),
		sessions:   make(map[string]*Session),
	}
}

func (s *MemoryStore) CreateIdentity(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[identity.Email]; exists {
		return ErrConflict
	}
	cp := *identity
	s.identities[identity.ID] = &cp
	s.byEmail[identity.Email] = identity.ID
	return nil
}

func (s *MemoryStore) IdentityByID(_ context.Context, id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *MemoryStore) IdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.IdentityByID(ctx, id)
}

func (s *MemoryStore) ListIdentities(_ context.Context) ([]*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		cp := *identity
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SaveFlow(_ context.Context, flow *Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *flow
	s.flows[flow.ID] = &cp
	return nil
}

func (s *MemoryStore) Flow(_ context.Context, id string) (*Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flow, ok := s.flows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *flow
	return &cp, nil
}

func (s *MemoryStore) SaveSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.Token] = &cp
	return nil
}

func (s *MemoryStore) SessionByToken(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, token)
	return nil
}
