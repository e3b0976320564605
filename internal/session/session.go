// Package session models authentication state explicitly: a session starts
// anonymous, becomes a user session through SignIn, and is torn down back to
// anonymous by SignOut. Subscribers are notified on every transition.
//
// The identity provider behind SignIn is deliberately an interface; the
// bundled implementation is a static token table for self-hosted use.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shelfscan/shelfscan/internal/logging"
)

var ErrInvalidToken = errors.New("session: invalid token")

// User is the resolved identity behind a token.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Session is the state attached to one token. The zero value is anonymous.
type Session struct {
	User       *User     `json:"user,omitempty"`
	SignedInAt time.Time `json:"signed_in_at,omitempty"`
}

// IsAnonymous reports whether no user is signed in.
func (s Session) IsAnonymous() bool { return s.User == nil }

// AuthProvider resolves a bearer token to a user. Opaque collaborator: swap
// in a real identity provider without touching the manager.
type AuthProvider interface {
	Resolve(ctx context.Context, token string) (*User, error)
}

// StaticProvider resolves tokens from a fixed table.
type StaticProvider struct {
	tokens map[string]User
}

func NewStaticProvider(tokens map[string]User) *StaticProvider {
	return &StaticProvider{tokens: tokens}
}

func (p *StaticProvider) Resolve(ctx context.Context, token string) (*User, error) {
	u, ok := p.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &u, nil
}

// Manager owns the token -> session table.
type Manager struct {
	provider AuthProvider
	logger   logging.Logger

	mu     sync.RWMutex
	active map[string]Session
	subs   []func(Session)
}

func NewManager(provider AuthProvider, logger logging.Logger) *Manager {
	return &Manager{
		provider: provider,
		logger:   logger.With(logging.Field{Key: "component", Value: "session"}),
		active:   make(map[string]Session),
	}
}

// Subscribe registers a callback invoked on every session transition.
func (m *Manager) Subscribe(fn func(Session)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// SignIn resolves token through the provider and establishes a session.
func (m *Manager) SignIn(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidToken
	}

	user, err := m.provider.Resolve(ctx, token)
	if err != nil {
		return Session{}, err
	}

	sess := Session{User: user, SignedInAt: time.Now().UTC()}

	m.mu.Lock()
	m.active[token] = sess
	subs := append([]func(Session){}, m.subs...)
	m.mu.Unlock()

	m.logger.Info("signed in", logging.Field{Key: "user", Value: user.ID})
	for _, fn := range subs {
		fn(sess)
	}
	return sess, nil
}

// SignOut tears the token's session down to anonymous. Unknown tokens are a
// no-op.
func (m *Manager) SignOut(token string) {
	m.mu.Lock()
	sess, ok := m.active[token]
	if ok {
		delete(m.active, token)
	}
	subs := append([]func(Session){}, m.subs...)
	m.mu.Unlock()

	if !ok {
		return
	}
	if sess.User != nil {
		m.logger.Info("signed out", logging.Field{Key: "user", Value: sess.User.ID})
	}
	for _, fn := range subs {
		fn(Session{})
	}
}

// Current returns the session for token; the anonymous session when the
// token is unknown or empty.
func (m *Manager) Current(token string) Session {
	if token == "" {
		return Session{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[token]
}
