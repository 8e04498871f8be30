// Package dispatch fans deduplicated hit sets out to the host's
// notification and speech capabilities.
package dispatch

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ChenCXxx/townpass-microservice/internal/alert"
	"github.com/ChenCXxx/townpass-microservice/internal/dedup"
	"github.com/ChenCXxx/townpass-microservice/internal/metrics"
)

// notificationTitle heads every visual notification.
const notificationTitle = "Construction nearby"

// Notifier is the host's notification-rendering capability.
// Fire-and-forget: delivery failures are the host's problem.
type Notifier interface {
	ShowNotification(title, content string)
}

// Speaker is the host's speech-synthesis capability. Speak blocks until
// the utterance completes; Stop interrupts an in-flight utterance and
// is safe to call at any time.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Dispatcher applies the deduplication policy per producer source and
// emits the surviving alerts. All three producers (live watch, push
// channel, background scan) share one dispatcher and therefore one
// deduplicator.
type Dispatcher struct {
	logger   hclog.Logger
	notifier Notifier
	speaker  Speaker
	dedup    *dedup.Deduplicator
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a dispatcher.
func New(notifier Notifier, speaker Speaker, d *dedup.Deduplicator, logger hclog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		notifier: notifier,
		speaker:  speaker,
		dedup:    d,
		metrics:  m,
		now:      time.Now,
	}
}

// SetClock overrides the dispatcher's time source (useful for testing).
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Dispatch emits a hit set from the given source.
//
// Live and background hits pass through the per-feature announcement
// window first; push batches arrive already deduplicated by the server,
// so only the voice cooldown applies to them. Channel deliveries are
// fire-and-forget: the dispatcher never awaits or retries them.
func (d *Dispatcher) Dispatch(hits []alert.Hit, source alert.Source) {
	if len(hits) == 0 {
		return
	}
	now := d.now()

	if source != alert.SourcePush {
		survivors := make([]alert.Hit, 0, len(hits))
		for _, hit := range hits {
			if d.dedup.ShouldAnnounce(hit.FeatureID, now) {
				survivors = append(survivors, hit)
			} else {
				d.metrics.HitsSuppressed.Inc()
			}
		}
		if len(survivors) == 0 {
			d.logger.Debug("all hits suppressed by announcement window", "source", source)
			return
		}
		hits = survivors
	}

	summary := alert.Summarize(hits)

	d.notifier.ShowNotification(notificationTitle, summary)
	d.metrics.AlertsDispatched.WithLabelValues(string(source)).Inc()
	d.logger.Info("alert dispatched",
		"source", source,
		"hits", len(hits),
		"summary", summary)

	if d.dedup.ShouldSpeak(now) {
		d.metrics.SpeechUtterances.Inc()
		go func() {
			if err := d.speaker.Speak(context.Background(), summary); err != nil {
				d.logger.Warn("speech delivery failed", "error", err.Error())
			}
		}()
	}
}

// InterruptSpeech stops any in-flight utterance. Called when the live
// watch stops.
func (d *Dispatcher) InterruptSpeech() {
	d.speaker.Stop()
}
