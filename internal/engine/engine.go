// Package engine composes the proximity alert subsystems behind one
// control surface: the foreground watch, the server push channel, and
// the periodic background scan, all feeding a shared dispatcher.
package engine

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/ChenCXxx/townpass-microservice/internal/config"
	"github.com/ChenCXxx/townpass-microservice/internal/dedup"
	"github.com/ChenCXxx/townpass-microservice/internal/dispatch"
	"github.com/ChenCXxx/townpass-microservice/internal/hazard"
	"github.com/ChenCXxx/townpass-microservice/internal/metrics"
	"github.com/ChenCXxx/townpass-microservice/internal/push"
	"github.com/ChenCXxx/townpass-microservice/internal/scan"
	"github.com/ChenCXxx/townpass-microservice/internal/store"
	"github.com/ChenCXxx/townpass-microservice/internal/watch"
)

// Capabilities are the host-provided surfaces the engine delivers
// through. The daemon wires stand-ins; an embedding application wires
// its real notification, speech, location, and storage facilities.
type Capabilities struct {
	Notifier    dispatch.Notifier
	Speaker     dispatch.Speaker
	Positions   watch.PositionSource
	Permissions watch.PermissionChecker
	Store       store.KV
}

// Status is a point-in-time snapshot of the engine for the control
// surface.
type Status struct {
	WatchActive    bool          `json:"watch_active"`
	PushState      string        `json:"push_state"`
	ScanRegistered bool          `json:"scan_registered"`
	Hazards        hazard.Status `json:"hazards"`
}

// Engine owns the three alert producers and their shared plumbing.
type Engine struct {
	logger     hclog.Logger
	cfg        *config.Config
	dedup      *dedup.Deduplicator
	dispatcher *dispatch.Dispatcher
	cache      *hazard.Cache
	watch      *watch.Controller
	push       *push.Channel
	scanner    *scan.Scanner

	mu      sync.Mutex
	scanJob *scan.Job
}

// New builds an idle engine from configuration and host capabilities.
// Nothing runs until the control surface is invoked.
func New(cfg *config.Config, caps Capabilities, logger hclog.Logger, m *metrics.Metrics) *Engine {
	d := dedup.New(cfg.Dedup.AnnounceWindow, cfg.Dedup.VoiceCooldown)
	dispatcher := dispatch.New(caps.Notifier, caps.Speaker, d, logger.Named("dispatch"), m)

	client := hazard.NewClient(cfg.Hazard.BaseURL, cfg.Hazard.RequestTimeout, logger.Named("hazard"))
	cache := hazard.NewCache(client, logger.Named("hazard"), m)

	controller := watch.NewController(cache, dispatcher, caps.Positions, caps.Permissions, d,
		watch.Options{
			RadiusMeters:    cfg.Hazard.RadiusMeters,
			RefreshInterval: cfg.Hazard.RefreshInterval,
		}, logger.Named("watch"))

	channel := push.NewChannel(push.Options{
		BaseURL:           cfg.Push.BaseURL,
		HeartbeatInterval: cfg.Push.HeartbeatInterval,
		ReconnectDelay:    cfg.Push.ReconnectDelay,
	}, dispatcher, logger.Named("push"), m)

	scanner := scan.NewScanner(caps.Store, dispatcher, logger.Named("scan"), m)

	return &Engine{
		logger:     logger,
		cfg:        cfg,
		dedup:      d,
		dispatcher: dispatcher,
		cache:      cache,
		watch:      controller,
		push:       channel,
		scanner:    scanner,
	}
}

// StartWatch activates the foreground proximity watch.
func (e *Engine) StartWatch() error {
	return e.watch.Start()
}

// StopWatch deactivates the watch, clears announcement history, and
// interrupts in-flight speech. Stopping an idle watch is a no-op.
func (e *Engine) StopWatch() {
	e.watch.Stop()
}

// ConnectPush opens the server push channel for the given external
// identity.
func (e *Engine) ConnectPush(identity string) error {
	return e.push.Connect(identity)
}

// DisconnectPush tears the push channel down and cancels any pending
// reconnect.
func (e *Engine) DisconnectPush() {
	e.push.Disconnect()
}

// RegisterBackgroundScan schedules the periodic favorites scan.
// Registering twice keeps the existing schedule.
func (e *Engine) RegisterBackgroundScan() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.scanJob != nil {
		return
	}
	e.scanJob = scan.StartJob(e.scanner, scan.Constraints{
		Interval:        e.cfg.Scan.Interval,
		NetworkRequired: true,
	}, e.logger.Named("scan"))
}

// CancelBackgroundScan removes the periodic scan. Cancelling when
// nothing is registered is a no-op.
func (e *Engine) CancelBackgroundScan() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.scanJob == nil {
		return
	}
	_ = e.scanJob.Close()
	e.scanJob = nil
}

// Status reports the current state of all three producers.
func (e *Engine) Status() Status {
	e.mu.Lock()
	registered := e.scanJob != nil
	e.mu.Unlock()

	return Status{
		WatchActive:    e.watch.Active(),
		PushState:      e.push.CurrentState().String(),
		ScanRegistered: registered,
		Hazards:        e.cache.CurrentStatus(),
	}
}

// Close shuts everything down. Safe to call on a partially started
// engine.
func (e *Engine) Close() {
	e.StopWatch()
	e.DisconnectPush()
	e.CancelBackgroundScan()
}
