package lifecycle

import (
	"context"

	apperrors "github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
)

// Reconciler runs the machine status sync on a schedule. Crashes between an
// order update and its machine update leave drift behind; the reconciler is
// the self-healing loop that repairs it without operator involvement.
type Reconciler struct {
	controller *Controller
	cron       *cron.Cron
	schedule   string
	logger     Logger
}

// NewReconciler schedules controller.SyncMachines. schedule takes the cron
// spec syntax, including descriptors like "@every 1m" (the default).
func NewReconciler(controller *Controller, schedule string, logger Logger) *Reconciler {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &Reconciler{
		controller: controller,
		cron:       cron.New(),
		schedule:   schedule,
		logger:     logger,
	}
}

// Start registers the sync job and launches the scheduler. The job inherits
// ctx, so an in-flight sync is abandoned on shutdown.
func (r *Reconciler) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		summary, err := r.controller.SyncMachines(ctx)
		if err != nil {
			r.logger.Error("scheduled status sync: %v", err)
			return
		}
		if len(summary.Corrections) > 0 {
			r.logger.Info("scheduled status sync checked %d machines, corrected %d",
				summary.Checked, len(summary.Corrections))
		}
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryValidation, "invalid sync schedule").
			WithMetadata(map[string]any{"schedule": r.schedule})
	}
	r.cron.Start()
	r.logger.Info("machine status reconciler running on schedule %q", r.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running sync to finish.
func (r *Reconciler) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
