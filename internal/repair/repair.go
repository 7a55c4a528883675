// Package repair periodically sweeps every table's log for orphaned chunk
// messages left behind by partial deletes and purges them.
package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatdb/pkg/logger"
	"chatdb/pkg/store"
)

// Start launches the repair scheduler when enabled. The cron expression
// defaults to daily at 03:00. It returns a cancel func stopping the
// scheduler.
func Start(ctx context.Context, st *store.Store, enabled bool, cronExpr string) (context.CancelFunc, error) {
	if !enabled {
		logger.Info("repair_disabled")
		return func() {}, nil
	}
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid repair cron expression: %s", cronExpr)
	}
	logger.Info("repair_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr)
	return cancel, nil
}

// runScheduler sleeps until the next cron tick and triggers a sweep.
func runScheduler(ctx context.Context, st *store.Store, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("repair_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("repair_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ctx, st); err != nil {
				logger.Error("repair_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("repair_scheduler_stopping")
			return
		}
	}
}

// RunOnce sweeps every known table once.
func RunOnce(ctx context.Context, st *store.Store) error {
	schemas, err := st.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, schema := range schemas {
		purged, err := st.RepairTable(ctx, schema.Table)
		if err != nil {
			logger.Error("repair_table_failed", "table", schema.Table, "error", err)
			continue
		}
		if len(purged) > 0 {
			logger.Info("repair_table_done", "table", schema.Table, "purged", len(purged))
		}
	}
	return nil
}
