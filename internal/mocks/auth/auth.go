package auth

// Package auth holds hand-written fakes for the auth ports, for tests that want
// behavior rather than call expectations.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/ports"
)

var (
	_ ports.AuthProvider  = (*MockAuthProvider)(nil)
	_ ports.SessionStore  = (*MemorySessionStore)(nil)
	_ ports.RoleMapper    = StaticRoleMapper{}
	_ ports.ProfileSource = (*StaticProfileSource)(nil)
)

// ErrNotFound is returned by the fakes when a record is absent.
var ErrNotFound = errors.New("not found")

const mockIdPURL = "https://mock-idp/auth"

// MockAuthProvider is a fake IdP. Begin hands out numbered state and nonce
// values; Exchange returns DefaultUser and records what it was asked.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	DefaultUser domainauth.Identity

	mu        sync.Mutex
	begun     int
	exchanges []ports.ExchangeInput
}

// NewMockAuthProvider returns a fake IdP that signs everyone in as a patient.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{DefaultUser: patientIdentity()}
}

func patientIdentity() domainauth.Identity {
	return domainauth.Identity{
		UserID:      "mock-user-1",
		FirstName:   "Mock",
		LastName:    "Patient",
		Email:       "mock.patient@example.com",
		RawRole:     string(domainauth.RolePatient),
		AccessToken: "mock-access-token",
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.mu.Lock()
	m.begun++
	n := m.begun
	m.mu.Unlock()
	return mockIdPURL, fmt.Sprintf("state-%d", n), fmt.Sprintf("nonce-%d", n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	m.mu.Lock()
	m.exchanges = append(m.exchanges, in)
	m.mu.Unlock()

	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	id := m.DefaultUser
	if id.UserID == "" {
		id = patientIdentity()
	}
	if id.ExpiresAt.IsZero() {
		id.ExpiresAt = time.Now().Add(time.Hour)
	}
	return id, nil
}

// Exchanges returns the inputs Exchange has seen, oldest first.
func (m *MockAuthProvider) Exchanges() []ports.ExchangeInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ExchangeInput(nil), m.exchanges...)
}

// MemorySessionStore keeps sessions in a map. It does not expire them; the
// service under test is expected to check expiry itself.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]domainauth.Session{}}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	return domainauth.Session{}, ErrNotFound
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Len reports how many sessions are stored.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StaticRoleMapper resolves the raw role claim with the default role rules.
type StaticRoleMapper struct{}

func (StaticRoleMapper) Map(id domainauth.Identity) domainauth.Role {
	return domainauth.ResolveRole(id.RawRole)
}

// StaticProfileSource serves Profiles by user ID, or Err for every call.
// Calls counts lookups so cache tests can see pass-through reads.
type StaticProfileSource struct {
	Profiles map[string]access.ProfileRecord
	Err      error
	Calls    int
}

func (s *StaticProfileSource) GetProfile(_ context.Context, userID string) (access.ProfileRecord, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Profiles[userID], nil
}
