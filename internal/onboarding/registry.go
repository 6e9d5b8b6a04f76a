package onboarding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("onboarding session not found")

type session struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Registry keeps one controller per open wizard and expires sessions that
// have not been touched for the configured TTL.
type Registry struct {
	deps   Dependencies
	opts   Options
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry(deps Dependencies, opts Options, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		deps:     deps,
		opts:     opts,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Create opens a new session already in the basic info step.
func (r *Registry) Create() *Controller {
	id := uuid.NewString()
	ctrl := NewController(id, r.deps, r.opts, r.logger)
	_ = ctrl.Start()

	r.mu.Lock()
	r.sessions[id] = &session{ctrl: ctrl, lastSeen: r.now()}
	count := len(r.sessions)
	r.mu.Unlock()

	metrics.SetOnboardingSessions(count)
	r.logger.Info("Onboarding session opened", zap.String("session", id))
	return ctrl
}

func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastSeen = r.now()
	return s.ctrl, nil
}

// Close cancels the session and forgets it.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.ctrl.Cancel()
	metrics.SetOnboardingSessions(count)
	r.logger.Info("Onboarding session closed", zap.String("session", id))
	return nil
}

func (r *Registry) List() []Status {
	r.mu.Lock()
	ctrls := make([]*Controller, 0, len(r.sessions))
	for _, s := range r.sessions {
		ctrls = append(ctrls, s.ctrl)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(ctrls))
	for _, c := range ctrls {
		out = append(out, c.Status())
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep cancels and drops sessions idle for longer than the TTL and returns
// how many were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}

	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		s.ctrl.Cancel()
		r.logger.Info("Onboarding session expired", zap.String("session", s.ctrl.ID()))
	}
	if len(expired) > 0 {
		metrics.SetOnboardingSessions(count)
	}
	return len(expired)
}

// Run sweeps on every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Shutdown cancels every open session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range all {
		s.ctrl.Cancel()
	}
	metrics.SetOnboardingSessions(0)
}
