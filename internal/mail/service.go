// Package mail implements the mailbox semantics on top of the relational
// store and the git archive: identity resolution, message fan-out, agent
// lifecycle and the file reservation ledger. Handlers stay thin; every
// rule lives here.
package mail

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mistakeknot/courier/internal/archive"
	"github.com/mistakeknot/courier/internal/core"
	"github.com/mistakeknot/courier/internal/storage"
)

// Broadcaster is the interface for emitting events to WebSocket clients.
// Agent is empty for project-wide events.
type Broadcaster interface {
	Broadcast(project, agent string, event any)
}

// Enforcement modes for cross-project name collisions at registration.
const (
	EnforcementCoerce = "coerce"
	EnforcementStrict = "strict"
)

// Options configures a Service.
type Options struct {
	// Enforcement selects the collision policy, EnforcementCoerce by
	// default. Anything unrecognized falls back to coerce.
	Enforcement string
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Service is the mailbox facade. All operations are safe for concurrent
// use; registration and lifecycle transitions serialize internally so
// lookup-then-write sequences cannot race.
type Service struct {
	store   storage.Store
	archive *archive.Store
	bus     Broadcaster
	claims  claimStrategy
	now     func() time.Time

	registerMu  sync.Mutex
	lifecycleMu sync.Mutex
}

// New wires a Service over its two stores.
func New(store storage.Store, arch *archive.Store, opts Options) *Service {
	s := &Service{
		store:   store,
		archive: arch,
		now:     opts.Clock,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if strings.EqualFold(opts.Enforcement, EnforcementStrict) {
		s.claims = strictStrategy{}
	} else {
		s.claims = coerceStrategy{}
	}
	return s
}

// WithBroadcaster attaches the event bus. Without one, events are dropped.
func (s *Service) WithBroadcaster(b Broadcaster) *Service {
	s.bus = b
	return s
}

// Ping reports whether the relational store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) emit(project, agent string, typ core.EventType, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Broadcast(project, agent, core.Event{
		Type:    typ,
		Project: project,
		Agent:   agent,
		At:      s.now(),
		Payload: payload,
	})
}
