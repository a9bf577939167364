// Package jobs schedules the duplicate admin grant reconciler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/PaulFidika/prokit/entitlements"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule runs the reconciler hourly.
const DefaultSchedule = "@hourly"

// ReconcileRunner is satisfied by *entitlements.Reconciler.
type ReconcileRunner interface {
	Run(ctx context.Context) (entitlements.ReconcileReport, error)
}

// ReconcileArgs enqueues one reconcile pass.
type ReconcileArgs struct{}

func (ReconcileArgs) Kind() string { return "reconcile_admin_grants" }

func (ReconcileArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 3,
		UniqueOpts:  river.UniqueOpts{ByPeriod: time.Minute},
	}
}

// ReconcileWorker runs the reconciler inside a river job.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]
	Reconciler ReconcileRunner
	Log        logrus.FieldLogger
}

func (w *ReconcileWorker) Work(ctx context.Context, job *river.Job[ReconcileArgs]) error {
	rep, err := w.Reconciler.Run(ctx)
	if w.Log != nil {
		w.Log.WithFields(logrus.Fields{
			"job_id":           job.ID,
			"attempt":          job.Attempt,
			"duplicates_found": rep.DuplicatesFound,
			"grants_revoked":   rep.GrantsRevoked,
		}).Info("reconcile job done")
	}
	if err != nil {
		return fmt.Errorf("reconcile admin grants: %w", err)
	}
	return nil
}

func (w *ReconcileWorker) Timeout(*river.Job[ReconcileArgs]) time.Duration { return 5 * time.Minute }

// NewClient builds a river client that runs ReconcileWorker on the given cron
// schedule. An empty schedule uses DefaultSchedule.
func NewClient(pool *pgxpool.Pool, rec ReconcileRunner, schedule string, log logrus.FieldLogger) (*river.Client[pgx.Tx], error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse reconcile schedule %q: %w", schedule, err)
	}
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, &ReconcileWorker{Reconciler: rec, Log: log}); err != nil {
		return nil, err
	}
	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 1},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(sched, func() (river.JobArgs, *river.InsertOpts) {
				return ReconcileArgs{}, nil
			}, nil),
		},
	})
}

// MigrateRiver applies river's own schema migrations.
func MigrateRiver(ctx context.Context, pool *pgxpool.Pool, log logrus.FieldLogger) error {
	m, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("river migrator: %w", err)
	}
	res, err := m.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate: %w", err)
	}
	for _, v := range res.Versions {
		log.WithField("version", v.Version).Info("river migration applied")
	}
	return nil
}
