// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Core session implementation with cancellation, deadline, and context.

package session

import (
	"sync"
	"time"

	"github.com/momentics/shmipc/api"
)

// sessionImpl holds per-connection state, context, and cancellation.
type sessionImpl struct {
	id       string
	ctx      api.Context
	done     chan struct{}
	once     sync.Once
	deadline time.Time

	mu     sync.RWMutex
	status api.SessionStatus
}

// newSession creates a new session with the given unique identifier,
// already api.SessionActive: by the time server.Service creates one, the
// handshake that produced its Stream has already completed.
func newSession(id string) *sessionImpl {
	return &sessionImpl{
		id:     id,
		ctx:    NewContextStore(),
		done:   make(chan struct{}),
		status: api.SessionActive,
	}
}

// Status reports the session's current lifecycle state.
func (s *sessionImpl) Status() api.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *sessionImpl) setStatus(st api.SessionStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// ID returns the unique session identifier.
func (s *sessionImpl) ID() string {
	return s.id
}

// Context returns the underlying api.Context.
func (s *sessionImpl) Context() api.Context {
	return s.ctx
}

// Cancel signals session teardown; idempotent.
func (s *sessionImpl) Cancel() {
	s.once.Do(func() {
		s.setStatus(api.SessionClosing)
		close(s.done)
		s.setStatus(api.SessionClosed)
	})
}

// Done returns a channel closed upon cancellation.
func (s *sessionImpl) Done() <-chan struct{} {
	return s.done
}

// Deadline returns the session expiration if set.
func (s *sessionImpl) Deadline() (time.Time, bool) {
	if s.deadline.IsZero() {
		return time.Time{}, false
	}
	return s.deadline, true
}

// WithDeadline sets an absolute deadline for the session.
func (s *sessionImpl) WithDeadline(t time.Time) {
	s.deadline = t
}
