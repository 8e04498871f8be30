// Command proximityd runs the proximity alert engine as a standalone
// daemon. Host capabilities that a real embedding application would
// provide (notification rendering, speech synthesis) are backed by the
// log, and positions arrive over the control API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChenCXxx/townpass-microservice/internal/api"
	"github.com/ChenCXxx/townpass-microservice/internal/config"
	"github.com/ChenCXxx/townpass-microservice/internal/engine"
	"github.com/ChenCXxx/townpass-microservice/internal/metrics"
	"github.com/ChenCXxx/townpass-microservice/internal/store"
	"github.com/ChenCXxx/townpass-microservice/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// logNotifier renders notifications into the daemon log.
type logNotifier struct {
	logger hclog.Logger
}

func (n *logNotifier) ShowNotification(title, content string) {
	n.logger.Info("notification", "title", title, "content", content)
}

// logSpeaker stands in for a speech synthesizer. Speak returns when the
// context is canceled or immediately once the utterance is logged.
type logSpeaker struct {
	logger hclog.Logger
}

func (s *logSpeaker) Speak(ctx context.Context, text string) error {
	s.logger.Info("speech", "text", text)
	return nil
}

func (s *logSpeaker) Stop() {}

func main() {
	configPath := flag.String("config", "", "directory containing config.yaml")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "proximityd",
		Level: hclog.LevelFromString(*logLevel),
	})

	if err := run(*configPath, logger); err != nil {
		logger.Error("daemon exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(configPath string, logger hclog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	kv, err := store.NewFile(cfg.Store.Dir)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	feed := watch.NewFeed()
	caps := engine.Capabilities{
		Notifier:  &logNotifier{logger: logger.Named("notify")},
		Speaker:   &logSpeaker{logger: logger.Named("speech")},
		Positions: feed,
		Permissions: watch.PermissionFunc(func() error {
			if !cfg.Location.Enabled {
				return watch.ErrServiceDisabled
			}
			return nil
		}),
		Store: kv,
	}

	eng := engine.New(cfg, caps, logger, m)
	defer eng.Close()

	router := api.NewRouter(eng, feed, logger.Named("api"),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control API listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
