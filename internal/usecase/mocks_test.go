package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"
)

// mockValidator implements domain.SessionValidator for testing.
type mockValidator struct {
	identity *domain.Identity
	err      error
	calls    atomic.Int32
	token    string
	delay    time.Duration
}

func (m *mockValidator) ValidateSession(_ context.Context, token string) (*domain.Identity, error) {
	m.calls.Add(1)
	m.token = token
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	identity := *m.identity
	return &identity, nil
}

// mockCache implements domain.SessionCache for testing.
type mockCache struct {
	mu      sync.Mutex
	entries map[string]domain.CachedSession
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]domain.CachedSession)}
}

func (m *mockCache) Get(_ context.Context, key string) (*domain.CachedSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, found := m.entries[key]
	if !found {
		return nil, false
	}
	return &entry, true
}

func (m *mockCache) Set(_ context.Context, key string, session domain.CachedSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = session
}

func (m *mockCache) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	m.deleted = append(m.deleted, key)
}

// mockIssuer implements domain.SessionTokenIssuer with readable tokens.
type mockIssuer struct {
	issueErr error
	issued   int
}

func (m *mockIssuer) Issue(identity *domain.Identity) (string, time.Time, error) {
	if m.issueErr != nil {
		return "", time.Time{}, m.issueErr
	}
	m.issued++
	raw, _ := json.Marshal(identity)
	return "jwt:" + string(raw), time.Now().Add(time.Minute), nil
}

func (m *mockIssuer) Verify(token string) (*domain.Identity, error) {
	if len(token) < 4 || token[:4] != "jwt:" {
		return nil, domain.ErrTokenInvalid
	}
	var identity domain.Identity
	if err := json.Unmarshal([]byte(token[4:]), &identity); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	return &identity, nil
}

// mockProvider implements domain.LoginProvider and domain.SessionRevoker.
type mockProvider struct {
	startErr    error
	completeErr error
	revokeErr   error
	flowID      string
	identifier  string
	code        string
	revoked     []string
	result      *domain.SignInResult
}

func (m *mockProvider) StartCodeLogin(_ context.Context, identifier string) (string, error) {
	m.identifier = identifier
	if m.startErr != nil {
		return "", m.startErr
	}
	return m.flowID, nil
}

func (m *mockProvider) CompleteCodeLogin(_ context.Context, flowID, identifier, code string) (*domain.SignInResult, error) {
	if flowID != m.flowID {
		return nil, domain.ErrFlowExpired
	}
	m.identifier = identifier
	m.code = code
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	return m.result, nil
}

func (m *mockProvider) RevokeSession(_ context.Context, token string) error {
	m.revoked = append(m.revoked, token)
	return m.revokeErr
}

// mockCodec implements domain.AttemptCodec as plain JSON.
type mockCodec struct{}

func (mockCodec) Seal(a domain.SignInAttempt) (string, error) {
	raw, err := json.Marshal(a)
	return string(raw), err
}

func (mockCodec) Open(v string) (*domain.SignInAttempt, error) {
	var a domain.SignInAttempt
	if err := json.Unmarshal([]byte(v), &a); err != nil || a.FlowID == "" {
		return nil, domain.ErrAttemptInvalid
	}
	if a.Expired(time.Now()) {
		return nil, domain.ErrAttemptInvalid
	}
	return &a, nil
}

// mockHealth implements domain.ProviderHealth, failing the first n calls.
type mockHealth struct {
	failures int
	calls    int
}

func (m *mockHealth) Version(context.Context) (string, error) {
	m.calls++
	if m.calls <= m.failures {
		return "", domain.ErrProviderUnavailable
	}
	return "v1.3.0", nil
}

var errBoom = errors.New("boom")
