// Package monitoring wraps newrelic/go-agent: one application instance
// built by New, nil-safe so instrumentation is a no-op when no license
// key is configured.
package monitoring

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
	log "github.com/sirupsen/logrus"
)

// Monitor wraps an optional *newrelic.Application. The zero value is
// a valid no-op monitor.
type Monitor struct {
	app *newrelic.Application
}

// New builds a Monitor. If licenseKey is empty, every method on the
// returned Monitor is a no-op — the expected case for local and test
// runs.
func New(appName, licenseKey string) *Monitor {
	if licenseKey == "" {
		return &Monitor{}
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(appName),
		newrelic.ConfigLicense(licenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		log.WithError(err).Warn("monitoring: failed to start newrelic application, continuing uninstrumented")
		return &Monitor{}
	}
	return &Monitor{app: app}
}

// segment is returned by StartSegment; calling End on a nil segment
// (the no-op case) is always safe.
type segment struct {
	txn *newrelic.Transaction
	seg *newrelic.Segment
}

// End closes the segment. It does not end the transaction; the
// function StartStageSegment returns does that after calling End.
func (s *segment) End() {
	if s == nil {
		return
	}
	if s.seg != nil {
		s.seg.End()
	}
}

// StartStageSegment instruments one unit of work within a pipeline
// stage (e.g. one claim's trip through the Clearinghouse). It is a
// no-op when m has no backing application.
func (m *Monitor) StartStageSegment(ctx context.Context, stage, name string) func() {
	if m == nil || m.app == nil {
		return func() {}
	}
	txn := m.app.StartTransaction(stage)
	seg := txn.StartSegment(name)
	s := &segment{txn: txn, seg: seg}
	return func() {
		s.End()
		txn.End()
	}
}

// Shutdown flushes any buffered telemetry. No-op without a backing
// application.
func (m *Monitor) Shutdown(ctx context.Context) {
	if m == nil || m.app == nil {
		return
	}
	m.app.Shutdown(5e9)
}
