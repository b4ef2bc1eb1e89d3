package mail

import (
	"context"
	"log"
	"time"

	"github.com/mistakeknot/courier/internal/core"
	"github.com/mistakeknot/courier/internal/storage"
)

// ExpiryNotifier periodically broadcasts reservation.expired events for
// reservations whose expiry passed since the previous tick. It is purely
// observational: rows are never mutated, activity stays a lazy predicate
// over released_ts and expires_ts.
type ExpiryNotifier struct {
	store    storage.Store
	bus      Broadcaster
	interval time.Duration
	now      func() time.Time
	last     time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewExpiryNotifier creates a notifier. Call Start to begin ticking.
func NewExpiryNotifier(store storage.Store, bus Broadcaster, interval time.Duration) *ExpiryNotifier {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExpiryNotifier{
		store:    store,
		bus:      bus,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
}

// Start launches the tick goroutine. Expiries that predate the start are
// never replayed.
func (n *ExpiryNotifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.last = n.now()

	go func() {
		defer close(n.done)
		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.tick(ctx)
			}
		}
	}()
}

// Stop cancels the goroutine and waits for it to exit.
func (n *ExpiryNotifier) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	<-n.done
}

// tick reports reservations that expired in the window (last, now]. Each
// expiry is announced exactly once because the windows never overlap.
func (n *ExpiryNotifier) tick(ctx context.Context) {
	now := n.now()
	expired, err := n.store.ExpiredBetween(ctx, n.last, now)
	if err != nil {
		log.Printf("notifier: %v", err)
		return
	}
	n.last = now
	if len(expired) == 0 {
		return
	}

	log.Printf("notifier: %d reservation(s) expired", len(expired))
	if n.bus == nil {
		return
	}
	for _, r := range expired {
		slug := ""
		if p, err := n.store.ProjectByID(ctx, r.ProjectID); err == nil {
			slug = p.Slug
		}
		n.bus.Broadcast(slug, "", core.Event{
			Type:    core.EventReservationExpired,
			Project: slug,
			At:      now,
			Payload: map[string]any{
				"reservation_id": r.ID,
				"agent":          r.AgentName,
				"path_pattern":   r.PathPattern,
			},
		})
	}
}
