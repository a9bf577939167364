// Package metrics exports entitlement counters to Prometheus.
package metrics

import (
	"github.com/PaulFidika/prokit/entitlements"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements entitlements.Recorder.
type Recorder struct {
	resolutions      *prometheus.CounterVec
	resolutionErrors prometheus.Counter
	grantActions     *prometheus.CounterVec
	reconcileRevoked prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prokit",
			Subsystem: "entitlement",
			Name:      "resolutions_total",
			Help:      "Entitlement resolutions by granting source (none when not Pro).",
		}, []string{"source"}),
		resolutionErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "prokit",
			Subsystem: "entitlement",
			Name:      "resolution_errors_total",
			Help:      "Resolutions that fell back to not Pro because a source failed to load.",
		}),
		grantActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prokit",
			Subsystem: "admin",
			Name:      "grant_actions_total",
			Help:      "Manual admin grant and revoke actions.",
		}, []string{"action"}),
		reconcileRevoked: f.NewCounter(prometheus.CounterOpts{
			Namespace: "prokit",
			Subsystem: "grant_reconcile",
			Name:      "revocations_total",
			Help:      "Duplicate admin grants revoked by the reconciler.",
		}),
	}
}

func (r *Recorder) ObserveResolution(source entitlements.Source) {
	label := string(source)
	if label == "" {
		label = "none"
	}
	r.resolutions.WithLabelValues(label).Inc()
}

func (r *Recorder) IncResolutionError() { r.resolutionErrors.Inc() }

func (r *Recorder) IncGrantAction(action string) { r.grantActions.WithLabelValues(action).Inc() }

func (r *Recorder) AddReconcileRevocations(n int) {
	if n > 0 {
		r.reconcileRevoked.Add(float64(n))
	}
}
