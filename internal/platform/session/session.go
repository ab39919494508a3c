// Package session tracks whether the operator of this portal process is signed
// in. It holds the bearer token handed over by the view layer's login flow,
// reads the token's claims, and notifies subscribers when the authenticated
// state flips.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles understood by the portal.
const (
	RolePatient  = "patient"
	RoleHospital = "hospital"
	RoleAdmin    = "admin"
)

var (
	ErrEmptyToken   = errors.New("token is required")
	ErrTokenExpired = errors.New("token is expired")
)

// Claims is the subset of the backend token the portal reads.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Principal identifies the signed-in account.
type Principal struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the principal's token has passed its expiry.
// Tokens without an exp claim never expire client side.
func (p Principal) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// ParseClaims reads the token's claims without verifying the signature; the
// backend verifies every request. Opaque (non-JWT) tokens yield an empty
// principal and no error.
func ParseClaims(token string) (Principal, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Principal{}, ErrEmptyToken
	}
	if strings.Count(token, ".") != 2 {
		return Principal{}, nil
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Principal{}, err
	}

	p := Principal{
		ID:    claims.ID,
		Role:  strings.ToLower(claims.Role),
		Email: claims.Email,
	}
	if p.ID == "" {
		p.ID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Listener is notified with the new authenticated state after a transition.
type Listener func(ctx context.Context, authenticated bool)

// Session is the process-wide auth state. It implements apiclient.TokenSource.
//
// transition serializes SignIn and SignOut together with their listener
// calls, so listeners observe transitions in the order the session applied
// them. Listeners must not call SignIn or SignOut.
type Session struct {
	transition    sync.Mutex
	mu            sync.RWMutex
	token         string
	principal     Principal
	authenticated bool
	listeners     []Listener
	now           func() time.Time
}

// New returns a signed-out session.
func New() *Session {
	return &Session{now: time.Now}
}

// Subscribe registers l for future transitions.
func (s *Session) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// SignIn stores token and, if the session was signed out, notifies listeners.
// Refreshing the token of the same principal is not a transition; a token for
// a different principal is delivered as a sign-out followed by a sign-in.
func (s *Session) SignIn(ctx context.Context, token string) (Principal, error) {
	p, err := ParseClaims(token)
	if err != nil {
		return Principal{}, err
	}
	if p.Expired(s.now()) {
		return Principal{}, ErrTokenExpired
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	was, prev := s.authenticated, s.principal
	s.token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	s.principal = p
	s.authenticated = true
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	switch {
	case !was:
		notify(ctx, listeners, true)
	case prev.ID != p.ID || prev.Role != p.Role:
		notify(ctx, listeners, false)
		notify(ctx, listeners, true)
	}
	return p, nil
}

// SignOut drops the token and notifies listeners if the session was signed in.
func (s *Session) SignOut(ctx context.Context) {
	s.transition.Lock()
	defer s.transition.Unlock()
	s.signOut(ctx)
}

// Check signs the session out when its token has expired and reports whether
// it is still authenticated.
func (s *Session) Check(ctx context.Context) bool {
	if authenticated, expired := s.state(); !authenticated || !expired {
		return authenticated
	}

	s.transition.Lock()
	defer s.transition.Unlock()
	// re-read: a SignIn may have landed while waiting for transition
	authenticated, expired := s.state()
	if authenticated && expired {
		s.signOut(ctx)
		return false
	}
	return authenticated
}

func (s *Session) state() (authenticated, expired bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated, s.principal.Expired(s.now())
}

// signOut runs with transition held.
func (s *Session) signOut(ctx context.Context) {
	s.mu.Lock()
	was := s.authenticated
	s.token = ""
	s.principal = Principal{}
	s.authenticated = false
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if was {
		notify(ctx, listeners, false)
	}
}

// IsAuthenticated reports the current state without side effects.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated && !s.principal.Expired(s.now())
}

// Principal returns the signed-in principal.
func (s *Session) Principal() (Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal, s.authenticated
}

// Token implements apiclient.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated {
		return ""
	}
	return s.token
}

func (s *Session) snapshotListeners() []Listener {
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

func notify(ctx context.Context, listeners []Listener, authenticated bool) {
	for _, l := range listeners {
		l(ctx, authenticated)
	}
}
