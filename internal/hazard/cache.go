package hazard

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/ChenCXxx/townpass-microservice/internal/metrics"
)

// FeatureFetcher is the dataset source consumed by the cache. Client
// implements it; tests substitute fakes.
type FeatureFetcher interface {
	FetchFeatures(ctx context.Context) ([]Feature, error)
}

// Cache holds the latest successfully fetched feature set. The set is
// replaced wholesale on each refresh; a failed refresh leaves the
// previous set untouched.
type Cache struct {
	fetcher FeatureFetcher
	logger  hclog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu                  sync.RWMutex
	features            []Feature
	lastRefresh         time.Time
	consecutiveFailures int
}

// Status is a point-in-time snapshot of the cache for the status
// surface.
type Status struct {
	FeatureCount        int       `json:"feature_count"`
	LastRefresh         time.Time `json:"last_refresh"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// NewCache creates an empty cache. Current returns an empty set until
// the first successful Refresh.
func NewCache(fetcher FeatureFetcher, logger hclog.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		fetcher: fetcher,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Refresh fetches the dataset and atomically swaps in the active
// features. On failure the previous set stays live and the error is
// returned for the owning timer to log; it never reaches the matcher.
func (c *Cache) Refresh(ctx context.Context) error {
	c.metrics.RefreshTotal.Inc()

	fetched, err := c.fetcher.FetchFeatures(ctx)
	if err != nil {
		c.mu.Lock()
		c.consecutiveFailures++
		failures := c.consecutiveFailures
		c.mu.Unlock()

		c.metrics.RefreshFailures.Inc()
		c.logger.Warn("construction dataset refresh failed",
			"consecutiveFailures", failures,
			"error", err.Error())
		return errors.Wrap(err, "refresh failed")
	}

	today := c.now()
	active := make([]Feature, 0, len(fetched))
	for _, feature := range fetched {
		if feature.ActiveOn(today) {
			active = append(active, feature)
		}
	}

	c.mu.Lock()
	c.features = active
	c.lastRefresh = today
	c.consecutiveFailures = 0
	c.mu.Unlock()

	c.metrics.FeaturesCached.Set(float64(len(active)))
	c.logger.Info("construction dataset refreshed",
		"fetched", len(fetched),
		"active", len(active))
	return nil
}

// Current returns the latest successfully fetched feature set. The
// returned slice is shared and must be treated as read-only.
func (c *Cache) Current() []Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.features
}

// CurrentStatus reports cache health for the status endpoint.
func (c *Cache) CurrentStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		FeatureCount:        len(c.features),
		LastRefresh:         c.lastRefresh,
		ConsecutiveFailures: c.consecutiveFailures,
	}
}
