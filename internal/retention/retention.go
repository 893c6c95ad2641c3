// Package retention runs a scheduled Deliberation Store maintenance job: a
// key-space row-count report followed by a pebble compaction, on a cron
// schedule validated and computed with gronx.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/intercooperative/agoranet/pkg/config"
	"github.com/intercooperative/agoranet/pkg/logger"
	"github.com/intercooperative/agoranet/pkg/store"
)

var storedEff *config.Effective

// SetEffectiveConfig stores the effective config so tests (or admin triggers)
// can invoke retention runs on-demand. This is intended for testing only.
func SetEffectiveConfig(eff config.Effective) {
	storedEff = &eff
}

// RunImmediate triggers a single retention run using the stored effective
// config. Returns an error if no effective config was registered.
func RunImmediate() error {
	if storedEff == nil {
		return fmt.Errorf("no effective config registered for retention run")
	}
	return runOnce()
}

// Start starts the retention scheduler if enabled. Returns a no-op cancel
// func when retention is disabled.
func Start(ctx context.Context, eff config.Effective) (context.CancelFunc, error) {
	storedEff = &eff
	ret := eff.Config.Retention

	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr)
	logger.Info("retention_scheduler_started")
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time, supporting full cron syntax rather
// than a hand-rolled minute/hour matcher.
func runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := runOnce(); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// runOnce scans each key space for a row count, logs the report (to the
// audit sink if attached), and requests a full-keyspace compaction.
func runOnce() error {
	runID := fmt.Sprintf("%d", time.Now().UTC().UnixNano())
	logger.Info("retention_run_start", "run_id", runID)

	counts, err := store.CountKeySpaces()
	if err != nil {
		logger.Error("retention_count_failed", "run_id", runID, "error", err)
		return fmt.Errorf("count key spaces: %w", err)
	}

	report := map[string]interface{}{
		"run_id":           runID,
		"threads":          counts.Threads,
		"messages":         counts.Messages,
		"reactions":        counts.Reactions,
		"credential_links": counts.CredentialLinks,
		"verified_creds":   counts.VerifiedCreds,
	}
	if logger.Audit != nil {
		logger.Audit.Info("retention_audit_report", "report", report)
	} else {
		logger.Info("retention_audit_report", "report", report)
	}

	if err := store.Compact(); err != nil {
		logger.Error("retention_compact_failed", "run_id", runID, "error", err)
		return fmt.Errorf("compact: %w", err)
	}
	logger.Info("retention_run_complete", "run_id", runID)
	return nil
}
