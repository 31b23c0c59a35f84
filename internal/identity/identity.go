// Package identity carries the read-only user identity supplied by the auth
// collaborator. The feed engine consumes it and never mutates it.
package identity

import (
	"strings"
	"sync"
)

// Identity is the stable identity of the signed-in user.
type Identity struct {
	Email       string
	DisplayName string
}

// Handle derives the author handle from the email, the local part before "@"
// prefixed with "@".
func (id Identity) Handle() string {
	local, _, _ := strings.Cut(id.Email, "@")
	return "@" + local
}

// Provider exposes the current identity and a signal for identity changes.
type Provider interface {
	Current() Identity
	// OnChange registers a callback fired whenever the identity changes.
	// The returned function cancels the registration; it is safe to call
	// more than once.
	OnChange(fn func(Identity)) func()
}

// Static is a Provider backed by an in-process value. The auth collaborator
// (or a test) updates it with Set.
type Static struct {
	mu      sync.Mutex
	current Identity
	subs    map[int]func(Identity)
	next    int
}

func NewStatic(email, displayName string) *Static {
	return &Static{
		current: Identity{Email: email, DisplayName: displayName},
		subs:    make(map[int]func(Identity)),
	}
}

func (s *Static) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set replaces the identity and notifies registered callbacks.
func (s *Static) Set(id Identity) {
	s.mu.Lock()
	s.current = id
	fns := make([]func(Identity), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

func (s *Static) OnChange(fn func(Identity)) func() {
	s.mu.Lock()
	key := s.next
	s.next++
	s.subs[key] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
	}
}
