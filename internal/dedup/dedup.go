// Package dedup implements the time-windowed alert deduplication
// policy: a per-feature announcement window gating all output channels,
// and a single global cooldown gating only the speech channel.
package dedup

import (
	"sync"
	"time"
)

const (
	// DefaultAnnounceWindow is the minimum time between two dispatched
	// alerts for the same feature id.
	DefaultAnnounceWindow = 5 * time.Minute

	// DefaultVoiceCooldown is the minimum time between two speech
	// utterances, irrespective of which feature triggered them.
	DefaultVoiceCooldown = 2 * time.Minute
)

// Deduplicator tracks announcement times per feature id plus the last
// speech time. One instance is shared by every alert producer so that
// co-resident producers cannot double-announce the same feature.
type Deduplicator struct {
	announceWindow time.Duration
	voiceCooldown  time.Duration

	mu           sync.Mutex
	lastAnnounce map[string]time.Time
	lastSpoken   time.Time
}

// New creates a deduplicator. Non-positive windows fall back to the
// defaults.
func New(announceWindow, voiceCooldown time.Duration) *Deduplicator {
	if announceWindow <= 0 {
		announceWindow = DefaultAnnounceWindow
	}
	if voiceCooldown <= 0 {
		voiceCooldown = DefaultVoiceCooldown
	}
	return &Deduplicator{
		announceWindow: announceWindow,
		voiceCooldown:  voiceCooldown,
		lastAnnounce:   make(map[string]time.Time),
	}
}

// ShouldAnnounce atomically checks whether the feature may be included
// in a dispatched alert at the given time, and marks it announced if
// so. Checking and marking are a single critical section so that two
// concurrent match cycles cannot both pass for the same feature.
func (d *Deduplicator) ShouldAnnounce(featureID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastAnnounce[featureID]; ok && now.Sub(last) < d.announceWindow {
		return false
	}

	d.lastAnnounce[featureID] = now
	return true
}

// ShouldSpeak atomically checks the global voice cooldown and marks a
// new utterance if it passes. Many near-simultaneous hazards therefore
// produce one utterance, not a flood.
func (d *Deduplicator) ShouldSpeak(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastSpoken.IsZero() && now.Sub(d.lastSpoken) < d.voiceCooldown {
		return false
	}

	d.lastSpoken = now
	return true
}

// Reset clears all announcement state. Called when the live watch
// stops so a restarted watch announces from a clean slate.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastAnnounce = make(map[string]time.Time)
	d.lastSpoken = time.Time{}
}
