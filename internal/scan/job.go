package scan

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Job is a running periodic scan registration. In a hosted deployment
// the platform's own task mechanism invokes the scanner; the daemon
// stands in with this ticker-driven job.
type Job struct {
	logger  hclog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	closeMu sync.Once
}

// StartJob registers the scanner under the given constraints and
// begins invoking it. A scan failure is logged and the next scheduled
// invocation proceeds independently.
func StartJob(scanner *Scanner, constraints Constraints, logger hclog.Logger) *Job {
	if constraints.Interval <= 0 {
		constraints.Interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(job.done)

		ticker := time.NewTicker(constraints.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := scanner.Scan(ctx); err != nil {
					// The failed invocation already logged itself;
					// the scheduler keeps going.
					continue
				}
			}
		}
	}()

	logger.Info("background scan registered",
		"interval", constraints.Interval,
		"networkRequired", constraints.NetworkRequired)
	return job
}

// Close cancels the registration and waits for an in-flight scan to
// finish. Idempotent.
func (j *Job) Close() error {
	j.closeMu.Do(func() {
		j.cancel()
		<-j.done
		j.logger.Info("background scan canceled")
	})
	return nil
}
