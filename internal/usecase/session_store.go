// Package usecase contains the interview application services: the session
// store, the gap analyzer, the planner, the evidence validator, the
// orchestrator and report assembly.
package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
)

type sessionEntry struct {
	sess   *domain.Session
	busy   bool
	cancel context.CancelFunc
	report *domain.Report
}

// SessionStore owns all live sessions. Each session is mutated by at most
// one request at a time: Acquire grants exclusive ownership and a second
// caller gets ErrSessionBusy instead of queueing, so a stuck model call
// never piles up concurrent writers.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]*sessionEntry{}}
}

// Put registers a new session. The caller keeps ownership until Release.
func (s *SessionStore) Put(sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("%w: session %s already exists", domain.ErrConflict, sess.ID)
	}
	s.sessions[sess.ID] = &sessionEntry{sess: sess, busy: true}
	return nil
}

// Acquire takes exclusive ownership of a session for one operation.
func (s *SessionStore) Acquire(id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	if e.busy {
		return nil, fmt.Errorf("%w: session %s has an operation in flight", domain.ErrSessionBusy, id)
	}
	e.busy = true
	return e.sess, nil
}

// Release returns ownership taken by Put or Acquire.
func (s *SessionStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		e.busy = false
		e.cancel = nil
	}
}

// BindCancel attaches the cancel function of the operation currently holding
// the session gate so Abort can reach its in-flight work. Release clears it.
func (s *SessionStore) BindCancel(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok && e.busy {
		e.cancel = cancel
	}
}

// Abort cancels the operation currently in flight for the session, if any.
// The gate holder observes the cancellation and records the outcome itself.
func (s *SessionStore) Abort(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

// Peek returns a read-only view of the session without taking ownership.
// Callers must not mutate the result.
func (s *SessionStore) Peek(id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return e.sess, nil
}

// SetReport caches the assembled report; reports are stable once generated.
func (s *SessionStore) SetReport(id string, r *domain.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok && e.report == nil {
		e.report = r
	}
}

// Report returns the cached report, if any.
func (s *SessionStore) Report(id string) (*domain.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || e.report == nil {
		return nil, false
	}
	return e.report, true
}

// Delete removes a session and its report.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
