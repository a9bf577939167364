package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronScheduler runs the reconciler in-process. Used when no Postgres queue
// is available.
type CronScheduler struct {
	c   *cron.Cron
	rec ReconcileRunner
	log logrus.FieldLogger
}

func NewCronScheduler(rec ReconcileRunner, schedule string, log logrus.FieldLogger) (*CronScheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &CronScheduler{
		c:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		rec: rec,
		log: log,
	}
	if _, err := s.c.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule reconcile %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs a single pass and logs the outcome.
func (s *CronScheduler) RunOnce() {
	rep, err := s.rec.Run(context.Background())
	if err != nil {
		s.log.WithError(err).WithField("failed", rep.Failed).Error("scheduled reconcile failed")
	}
}

func (s *CronScheduler) Start() { s.c.Start() }

// Stop waits for a running pass to finish or ctx to end.
func (s *CronScheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
