// Package watch owns the live foreground pipeline: position stream in,
// matcher and deduplication policy applied, alerts out. It also owns
// the dataset refresh timer and the watch lifecycle.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/ChenCXxx/townpass-microservice/internal/alert"
	"github.com/ChenCXxx/townpass-microservice/internal/dedup"
	"github.com/ChenCXxx/townpass-microservice/internal/geo"
	"github.com/ChenCXxx/townpass-microservice/internal/hazard"
)

const (
	// DefaultRefreshInterval is how often the construction dataset is
	// re-fetched while the watch is active.
	DefaultRefreshInterval = 10 * time.Minute

	// DefaultRadiusMeters is the alert radius around the observer.
	DefaultRadiusMeters = 300
)

// AlertDispatcher is the dispatch surface the controller drives. The
// dispatch package's Dispatcher implements it.
type AlertDispatcher interface {
	Dispatch(hits []alert.Hit, source alert.Source)
	InterruptSpeech()
}

// Options tune a controller. Zero values fall back to defaults.
type Options struct {
	RadiusMeters    float64
	RefreshInterval time.Duration
}

// Controller orchestrates the live watch: Idle until Start, Active
// until Stop. One goroutine owns position intake, the refresh timer,
// and matching, so cycles run strictly in stream order and a slow
// cycle delays, never drops, the next fix.
type Controller struct {
	logger     hclog.Logger
	cache      *hazard.Cache
	dispatcher AlertDispatcher
	source     PositionSource
	perms      PermissionChecker
	dedup      *dedup.Deduplicator
	opts       Options

	// mu serializes lifecycle transitions. The run goroutine never
	// takes it, so Stop may hold it while draining.
	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController wires a controller. The deduplicator is the shared
// instance so Stop can clear it for every producer.
func NewController(cache *hazard.Cache, dispatcher AlertDispatcher, source PositionSource,
	perms PermissionChecker, d *dedup.Deduplicator, opts Options, logger hclog.Logger) *Controller {
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = DefaultRadiusMeters
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	return &Controller{
		logger:     logger,
		cache:      cache,
		dispatcher: dispatcher,
		source:     source,
		perms:      perms,
		dedup:      d,
		opts:       opts,
	}
}

// Start transitions Idle to Active: confirms location permission,
// performs the initial dataset refresh, subscribes to the position
// stream, and starts the refresh timer. Starting an active watch is a
// no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return nil
	}

	if err := c.perms.CheckLocationPermission(); err != nil {
		return errors.Wrap(err, "cannot start watch")
	}

	ctx, cancel := context.WithCancel(context.Background())

	positions, err := c.source.Subscribe(ctx)
	if err != nil {
		cancel()
		return errors.Wrap(err, "failed to subscribe to position stream")
	}

	// Initial refresh. A fetch failure is soft: the watch starts with
	// whatever the cache already holds and the timer retries.
	if err := c.cache.Refresh(ctx); err != nil {
		c.logger.Warn("initial dataset refresh failed, watch starts with stale cache")
	}

	c.cancel = cancel
	c.done = make(chan struct{})
	c.active = true

	go c.run(ctx, positions, c.done)

	c.logger.Info("live watch started",
		"radiusMeters", c.opts.RadiusMeters,
		"refreshInterval", c.opts.RefreshInterval)
	return nil
}

// Stop transitions Active to Idle unconditionally: cancels the refresh
// timer and position subscription, waits out the in-flight cycle,
// clears deduplication state, and interrupts any speech. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}

	c.cancel()
	<-c.done

	c.dedup.Reset()
	c.dispatcher.InterruptSpeech()

	c.active = false
	c.cancel = nil
	c.done = nil
	c.logger.Info("live watch stopped")
}

// Active reports whether the watch is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) run(ctx context.Context, positions <-chan geo.Position, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Refresh failures log inside the cache and keep the
			// previous set live.
			_ = c.cache.Refresh(ctx)
		case p, ok := <-positions:
			if !ok {
				return
			}
			c.evaluate(p)
		}
	}
}

// evaluate runs one match cycle synchronously within the position
// update's processing.
func (c *Controller) evaluate(p geo.Position) {
	hits := hazard.Match(p, c.cache.Current(), c.opts.RadiusMeters)
	if len(hits) == 0 {
		return
	}
	c.dispatcher.Dispatch(hits, alert.SourceLive)
}
