// Package session tracks the crawl sessions running in this process, at
// most one per user.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyRunning = errors.New("a crawl session is already running for this user")
	ErrNotFound       = errors.New("no crawl session for this user")
)

type Session struct {
	ID        string
	UserID    string
	Kind      string
	Target    string
	StartedAt time.Time

	items  atomic.Int64
	cancel context.CancelFunc
}

// AddItems bumps the collected-items counter and returns the new total.
func (s *Session) AddItems(n int) int64 {
	return s.items.Add(int64(n))
}

func (s *Session) Items() int64 {
	return s.items.Load()
}

// Snapshot is a copy safe to serialise.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	Items     int64     `json:"items"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID: s.ID,
		UserID:    s.UserID,
		Kind:      s.Kind,
		Target:    s.Target,
		Items:     s.Items(),
		StartedAt: s.StartedAt,
		Uptime:    time.Since(s.StartedAt).Round(time.Second).String(),
	}
}

type Registry struct {
	mu     sync.Mutex
	byUser map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]*Session)}
}

// Start registers a session for userID. cancel is called by Stop.
func (r *Registry) Start(userID, kind, target string, cancel context.CancelFunc) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUser[userID]; ok {
		return nil, ErrAlreadyRunning
	}
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Target:    target,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
	}
	r.byUser[userID] = s
	return s, nil
}

// Stop cancels and unregisters the session of userID.
func (r *Registry) Stop(userID string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.byUser[userID]
	if ok {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	if s.cancel != nil {
		s.cancel()
	}
	return s, nil
}

// Finish unregisters s if it is still the registered session of
// its user. It reports whether anything was removed.
func (r *Registry) Finish(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byUser[s.UserID]
	if !ok || cur.ID != s.ID {
		return false
	}
	delete(r.byUser, s.UserID)
	return true
}

func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[userID]
	return s, ok
}

// List returns the running sessions ordered by start time.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.byUser))
	for _, s := range r.byUser {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}
