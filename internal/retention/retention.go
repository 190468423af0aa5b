// Package retention prunes messages older than the configured period on
// a cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"memodb/pkg/config"
	"memodb/pkg/logger"
	"memodb/pkg/store"
)

// Start launches the retention scheduler if enabled. Returns a cancel
// func; no-op when retention is disabled.
func Start(ctx context.Context, cfg config.Config, st *store.Store) (context.CancelFunc, error) {
	if !cfg.Retention.Enabled {
		logger.Log.Info("retention_disabled")
		return func() {}, nil
	}

	period, err := config.ParsePeriod(cfg.Retention.Period)
	if err != nil {
		return nil, fmt.Errorf("invalid retention period: %w", err)
	}

	cronExpr := cfg.Retention.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Log.Error("retention_invalid_cron", zap.String("cron", cronExpr))
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}

	logger.Log.Info("retention_enabled", zap.String("cron", cronExpr), zap.Duration("period", period))
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr, period)
	return cancel, nil
}

// RunOnce prunes immediately. Exposed for admin triggers and tests.
func RunOnce(st *store.Store, period time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-period).UnixNano()
	return st.PruneBefore(cutoff)
}

// runScheduler computes the next cron tick via gronx and sleeps until it.
func runScheduler(ctx context.Context, st *store.Store, cronExpr string, period time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Log.Error("retention_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if n, err := RunOnce(st, period); err != nil {
				logger.Log.Error("retention_run_error", zap.Error(err))
			} else if n > 0 {
				logger.Log.Info("retention_run_complete", zap.Int("pruned", n))
			}
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		}
	}
}
