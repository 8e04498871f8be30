package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenCXxx/townpass-microservice/internal/dedup"
	"github.com/ChenCXxx/townpass-microservice/internal/dispatch"
	"github.com/ChenCXxx/townpass-microservice/internal/geo"
	"github.com/ChenCXxx/townpass-microservice/internal/hazard"
	"github.com/ChenCXxx/townpass-microservice/internal/metrics"
)

// observerPos is the fixed observer used throughout these tests.
var observerPos = geo.Position{Latitude: 25.0330, Longitude: 121.5654}

type countingFetcher struct {
	mu       sync.Mutex
	features []hazard.Feature
	calls    int
}

func (f *countingFetcher) FetchFeatures(_ context.Context) ([]hazard.Feature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.features, nil
}

func (f *countingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) ShowNotification(_, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
}

func (n *countingNotifier) notifications() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

type countingSpeaker struct {
	mu    sync.Mutex
	count int
	stops int
}

func (s *countingSpeaker) Speak(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

func (s *countingSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *countingSpeaker) utterances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// pointNear builds a point feature offset north of the observer.
func pointNear(id string, meters float64) hazard.Feature {
	return hazard.Feature{
		ID:   id,
		Name: id,
		Kind: hazard.GeometryPoint,
		Anchor: geo.Coordinate{
			Lon: observerPos.Longitude,
			Lat: observerPos.Latitude + meters/111195,
		},
	}
}

type harness struct {
	controller *Controller
	feed       *Feed
	fetcher    *countingFetcher
	notifier   *countingNotifier
	speaker    *countingSpeaker
	clock      *fakeClock
	dedup      *dedup.Deduplicator
}

func newHarness(t *testing.T, features []hazard.Feature, perms PermissionChecker, opts Options) *harness {
	t.Helper()

	logger := hclog.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	fetcher := &countingFetcher{features: features}
	cache := hazard.NewCache(fetcher, logger, m)

	notifier := &countingNotifier{}
	speaker := &countingSpeaker{}
	clock := &fakeClock{t: time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)}
	dd := dedup.New(5*time.Minute, 2*time.Minute)

	dispatcher := dispatch.New(notifier, speaker, dd, logger, m)
	dispatcher.SetClock(clock.Now)

	feed := NewFeed()
	controller := NewController(cache, dispatcher, feed, perms, dd, opts, logger)
	t.Cleanup(controller.Stop)

	return &harness{
		controller: controller,
		feed:       feed,
		fetcher:    fetcher,
		notifier:   notifier,
		speaker:    speaker,
		clock:      clock,
		dedup:      dd,
	}
}

func permissionOK() PermissionChecker {
	return PermissionFunc(func() error { return nil })
}

func TestControllerStart(t *testing.T) {
	t.Run("permission failure keeps the watch idle", func(t *testing.T) {
		h := newHarness(t, nil, PermissionFunc(func() error { return ErrPermissionDenied }), Options{})

		err := h.controller.Start()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.False(t, h.controller.Active())
		assert.Zero(t, h.fetcher.callCount(), "no refresh should run without permission")
	})

	t.Run("service disabled is distinguishable from denial", func(t *testing.T) {
		h := newHarness(t, nil, PermissionFunc(func() error { return ErrServiceDisabled }), Options{})

		err := h.controller.Start()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrServiceDisabled)
		assert.NotErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("start performs the initial refresh and goes active", func(t *testing.T) {
		h := newHarness(t, nil, permissionOK(), Options{})

		require.NoError(t, h.controller.Start())
		assert.True(t, h.controller.Active())
		assert.Equal(t, 1, h.fetcher.callCount())
	})

	t.Run("starting an active watch is a no-op", func(t *testing.T) {
		h := newHarness(t, nil, permissionOK(), Options{})

		require.NoError(t, h.controller.Start())
		require.NoError(t, h.controller.Start())
		assert.Equal(t, 1, h.fetcher.callCount())
	})

	t.Run("refresh timer re-fetches the dataset", func(t *testing.T) {
		h := newHarness(t, nil, permissionOK(), Options{RefreshInterval: 20 * time.Millisecond})

		require.NoError(t, h.controller.Start())
		require.Eventually(t, func() bool { return h.fetcher.callCount() >= 3 },
			2*time.Second, 5*time.Millisecond, "ticker should keep refreshing")
	})
}

func TestControllerStop(t *testing.T) {
	t.Run("idempotent and safe when idle", func(t *testing.T) {
		h := newHarness(t, nil, permissionOK(), Options{})
		h.controller.Stop()

		require.NoError(t, h.controller.Start())
		h.controller.Stop()
		h.controller.Stop()
		assert.False(t, h.controller.Active())
	})

	t.Run("stops in-flight speech and clears dedup state", func(t *testing.T) {
		features := []hazard.Feature{pointNear("site-1", 200)}
		h := newHarness(t, features, permissionOK(), Options{RadiusMeters: 300})

		require.NoError(t, h.controller.Start())
		h.feed.Publish(observerPos)
		require.Eventually(t, func() bool { return h.notifier.notifications() == 1 },
			2*time.Second, 5*time.Millisecond)

		h.controller.Stop()
		assert.GreaterOrEqual(t, h.speaker.stops, 1, "stop should interrupt speech")

		// Restarted watch announces from a clean slate: the same
		// feature alerts again immediately. The feed releases its
		// subscriber slot asynchronously, so retry the restart.
		require.Eventually(t, func() bool { return h.controller.Start() == nil },
			2*time.Second, 5*time.Millisecond)
		h.feed.Publish(observerPos)
		require.Eventually(t, func() bool { return h.notifier.notifications() == 2 },
			2*time.Second, 5*time.Millisecond)
	})
}

// TestProximityScenario walks the full foreground flow: a construction
// point 200m away with a 300m radius alerts once, stays quiet inside
// the announcement window, and alerts again after it elapses.
func TestProximityScenario(t *testing.T) {
	features := []hazard.Feature{pointNear("site-1", 200)}
	h := newHarness(t, features, permissionOK(), Options{RadiusMeters: 300})

	require.NoError(t, h.controller.Start())

	// First fix: one notification and one utterance.
	h.feed.Publish(observerPos)
	require.Eventually(t, func() bool { return h.notifier.notifications() == 1 },
		2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.speaker.utterances() == 1 },
		2*time.Second, 5*time.Millisecond)

	// Second fix 60 seconds later at the same location: suppressed by
	// both the announcement window and the voice cooldown.
	h.clock.Advance(time.Minute)
	h.feed.Publish(observerPos)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, h.notifier.notifications(), "notification suppressed within the window")
	assert.Equal(t, 1, h.speaker.utterances(), "speech suppressed within the cooldown")

	// Third fix after the per-feature window elapsed: dispatched again.
	h.clock.Advance(5 * time.Minute)
	h.feed.Publish(observerPos)
	require.Eventually(t, func() bool { return h.notifier.notifications() == 2 },
		2*time.Second, 5*time.Millisecond, "notification dispatched again after the window")
	require.Eventually(t, func() bool { return h.speaker.utterances() == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestControllerOutsideRadius(t *testing.T) {
	features := []hazard.Feature{pointNear("site-1", 500)}
	h := newHarness(t, features, permissionOK(), Options{RadiusMeters: 300})

	require.NoError(t, h.controller.Start())
	h.feed.Publish(observerPos)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.notifier.notifications())
}
