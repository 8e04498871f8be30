// Package scan implements the background proximity scan: a periodic,
// stateless pass over the host app's persisted favorite places, used
// when the live watch is not running. Scans reuse the proximity data
// already cached inside each favorite record; they never fetch.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/ChenCXxx/townpass-microservice/internal/alert"
	"github.com/ChenCXxx/townpass-microservice/internal/metrics"
	"github.com/ChenCXxx/townpass-microservice/internal/store"
)

const (
	// DefaultInterval is the desired scan period declared to the host
	// scheduler.
	DefaultInterval = 15 * time.Minute

	// DefaultDistanceThresholdMeters applies to favorites without an
	// explicit threshold.
	DefaultDistanceThresholdMeters = 100
)

// hazardDatasets are the recommendation dataset ids counted as
// construction-like.
var hazardDatasets = map[string]bool{
	"construction": true,
	"roadwork":     true,
}

// Constraints declares the scan's scheduling needs to the host's
// periodic-task mechanism.
type Constraints struct {
	Interval        time.Duration
	NetworkRequired bool
}

// DefaultConstraints returns the engine's declared scan schedule.
func DefaultConstraints() Constraints {
	return Constraints{Interval: DefaultInterval, NetworkRequired: true}
}

// FavoritePlace mirrors the host app's persisted favorite record. The
// engine only reads it.
type FavoritePlace struct {
	ID                      string           `json:"id"`
	Name                    string           `json:"name"`
	NotificationEnabled     bool             `json:"notification_enabled"`
	DistanceThresholdMeters float64          `json:"distance_threshold,omitempty"`
	NearbyRecommendations   []Recommendation `json:"nearby_recommendations,omitempty"`
}

// Recommendation is one cached nearby record embedded in a favorite.
type Recommendation struct {
	DatasetID  string         `json:"dataset_id"`
	Properties map[string]any `json:"properties,omitempty"`
}

// AlertSink consumes the scan's alerts. The dispatcher implements it.
type AlertSink interface {
	Dispatch(hits []alert.Hit, source alert.Source)
}

// Scanner is the scan function handed to the scheduler. Stateless
// between invocations.
type Scanner struct {
	logger  hclog.Logger
	kv      store.KV
	sink    AlertSink
	metrics *metrics.Metrics
}

// NewScanner creates a scanner over the host's persisted store.
func NewScanner(kv store.KV, sink AlertSink, logger hclog.Logger, m *metrics.Metrics) *Scanner {
	return &Scanner{
		logger:  logger,
		kv:      kv,
		sink:    sink,
		metrics: m,
	}
}

// Scan runs one invocation: reads the persisted favorites and per-place
// toggles, counts construction-like recommendations within each
// enabled favorite's threshold, and dispatches one alert per favorite
// with a non-zero count. A decode failure on the favorites blob is
// fatal to this invocation only.
func (s *Scanner) Scan(ctx context.Context) error {
	s.metrics.BackgroundScans.Inc()

	favorites, err := s.loadFavorites()
	if err != nil {
		s.metrics.BackgroundScanErrs.Inc()
		s.logger.Warn("background scan aborted", "error", err.Error())
		return err
	}
	if len(favorites) == 0 {
		return nil
	}

	toggles := s.loadToggles()

	alerted := 0
	for _, favorite := range favorites {
		enabled := favorite.NotificationEnabled
		if toggle, ok := toggles[favorite.ID]; ok {
			enabled = toggle
		}
		if !enabled {
			continue
		}

		count, nearest := countHazards(favorite)
		if count == 0 {
			continue
		}

		s.sink.Dispatch([]alert.Hit{{
			FeatureID:      "favorite:" + favorite.ID,
			Name:           hazardLabel(count, favorite.Name),
			DistanceMeters: nearest,
		}}, alert.SourceBackground)
		alerted++
	}

	s.logger.Debug("background scan finished",
		"favorites", len(favorites),
		"alerted", alerted)
	return nil
}

func (s *Scanner) loadFavorites() ([]FavoritePlace, error) {
	blob, err := s.kv.Get(store.KeyMapFavorites)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read favorites")
	}
	if len(blob) == 0 {
		return nil, nil
	}

	var favorites []FavoritePlace
	if err := json.Unmarshal(blob, &favorites); err != nil {
		return nil, errors.Wrap(err, "failed to decode favorites")
	}
	return favorites, nil
}

// loadToggles reads the per-place notification overrides. Absent or
// undecodable blobs default to an empty map; the favorite's own flag
// then decides.
func (s *Scanner) loadToggles() map[string]bool {
	blob, err := s.kv.Get(store.KeyPlaceNotifications)
	if err != nil || len(blob) == 0 {
		return map[string]bool{}
	}

	var toggles map[string]bool
	if err := json.Unmarshal(blob, &toggles); err != nil {
		s.logger.Warn("ignoring undecodable notification toggles", "error", err.Error())
		return map[string]bool{}
	}
	return toggles
}

// countHazards counts construction-like recommendations within the
// favorite's distance threshold and returns the nearest distance seen.
// Recommendations without a cached distance count as within range.
func countHazards(favorite FavoritePlace) (int, float64) {
	threshold := favorite.DistanceThresholdMeters
	if threshold <= 0 {
		threshold = DefaultDistanceThresholdMeters
	}

	count := 0
	nearest := 0.0
	for _, rec := range favorite.NearbyRecommendations {
		if !hazardDatasets[rec.DatasetID] {
			continue
		}
		distance, ok := rec.Properties["distance_meters"].(float64)
		if ok && distance > threshold {
			continue
		}
		count++
		if ok && (nearest == 0 || distance < nearest) {
			nearest = distance
		}
	}
	return count, nearest
}

func hazardLabel(count int, favoriteName string) string {
	if count == 1 {
		return fmt.Sprintf("1 construction site near %s", favoriteName)
	}
	return fmt.Sprintf("%d construction sites near %s", count, favoriteName)
}
