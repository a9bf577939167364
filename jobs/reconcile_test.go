package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/PaulFidika/prokit/entitlements"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"
)

type fakeRunner struct {
	calls int
	rep   entitlements.ReconcileReport
	err   error
}

func (f *fakeRunner) Run(context.Context) (entitlements.ReconcileReport, error) {
	f.calls++
	return f.rep, f.err
}

func job() *river.Job[ReconcileArgs] {
	return &river.Job[ReconcileArgs]{JobRow: &rivertype.JobRow{ID: 7, Attempt: 1}, Args: ReconcileArgs{}}
}

func TestReconcileWorker_RunsReconciler(t *testing.T) {
	r := &fakeRunner{rep: entitlements.ReconcileReport{DuplicatesFound: 1, GrantsRevoked: 2}}
	w := &ReconcileWorker{Reconciler: r, Log: logrus.New()}
	if err := w.Work(context.Background(), job()); err != nil {
		t.Fatalf("work: %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("expected one run, got %d", r.calls)
	}
}

func TestReconcileWorker_PropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	w := &ReconcileWorker{Reconciler: &fakeRunner{err: boom}}
	if err := w.Work(context.Background(), job()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestReconcileArgs_Kind(t *testing.T) {
	if k := (ReconcileArgs{}).Kind(); k != "reconcile_admin_grants" {
		t.Fatalf("kind = %q", k)
	}
}

func TestCronScheduler(t *testing.T) {
	if _, err := NewCronScheduler(&fakeRunner{}, "not a schedule", nil); err == nil {
		t.Fatalf("expected invalid schedule to be rejected")
	}
	r := &fakeRunner{err: errors.New("store down")}
	s, err := NewCronScheduler(r, "*/5 * * * *", logrus.New())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.RunOnce()
	if r.calls != 1 {
		t.Fatalf("expected one run, got %d", r.calls)
	}
	s.Start()
	s.Stop(context.Background())
}
