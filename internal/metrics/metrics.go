// Package metrics tracks pipeline counters with prometheus
// client_golang, grounded on the ledger/transaction service in the
// retrieval pack that counts and times its operations the same way.
// Nothing here starts an HTTP listener — network transport is out of
// scope — the Reporter simply reads the registry each tick with
// Gather, the same call an exporter handler would make.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the claim-pipeline counters and gauges. One Registry
// is constructed per pipeline run so tests don't collide on the
// global default registerer.
type Registry struct {
	reg *prometheus.Registry

	ClaimsIngested  prometheus.Counter
	ClaimsSubmitted *prometheus.CounterVec
	ClaimsResolved  *prometheus.CounterVec
	OpenClaims      prometheus.Gauge
}

// New builds and registers a fresh Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ClaimsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimflow_claims_ingested_total",
			Help: "Claims successfully parsed and emitted by the Reader.",
		}),
		ClaimsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimflow_claims_submitted_total",
			Help: "Claims the Clearinghouse dispatched to a payer, labeled by payer_id.",
		}, []string{"payer_id"}),
		ClaimsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimflow_claims_resolved_total",
			Help: "Claims closed by the Clearinghouse, labeled by outcome.",
		}, []string{"outcome"}),
		OpenClaims: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "claimflow_open_claims",
			Help: "Claims currently awaiting remittance.",
		}),
	}

	reg.MustRegister(r.ClaimsIngested, r.ClaimsSubmitted, r.ClaimsResolved, r.OpenClaims)
	return r
}

// Snapshot gathers the current values into a flat map keyed by metric
// name (and label, where present), the way the Reporter folds them
// into its printed report without standing up a /metrics endpoint.
func (r *Registry) Snapshot() map[string]float64 {
	families, err := r.reg.Gather()
	if err != nil {
		return nil
	}
	out := make(map[string]float64)
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			key := fam.GetName()
			for _, lbl := range m.GetLabel() {
				key += "{" + lbl.GetName() + "=" + lbl.GetValue() + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}
