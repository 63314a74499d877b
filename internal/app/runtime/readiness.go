package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/sentinel/internal/config"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// Check is one dependency probed before a process starts.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// WaitReady pings every check until all succeed. Each round is bounded by
// cfg.Timeout and rounds are cfg.Interval apart; after cfg.Retries failed
// retries the last error is returned.
func WaitReady(ctx context.Context, cfg config.ReadinessConfig, log *logging.Logger, checks ...Check) error {
	if log == nil {
		log = logging.NewDefault("readiness")
	}
	pending := checks
	for attempt := 0; ; attempt++ {
		var failed []Check
		var lastErr error
		for _, c := range pending {
			pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				log.WithError(err).WithField("dependency", c.Name).WithField("attempt", attempt+1).Warn("dependency not ready")
				failed = append(failed, c)
				lastErr = fmt.Errorf("%s: %w", c.Name, err)
				continue
			}
			log.WithField("dependency", c.Name).Info("dependency ready")
		}
		if len(failed) == 0 {
			return nil
		}
		if attempt >= cfg.Retries {
			return fmt.Errorf("dependencies not ready after %d attempts: %w", attempt+1, lastErr)
		}
		pending = failed

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
