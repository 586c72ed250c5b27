// Package pipeline wires the five claim-processing stages together
// and supervises their concurrent lifetime: it builds the channels
// connecting Reader, Biller, Clearinghouse, the Payer set, and
// Reporter, runs the first four under an errgroup, lets the Reporter
// follow their completion on its own derived context, and aggregates
// shutdown errors.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/CMSgov/claimflow/internal/biller"
	"github.com/CMSgov/claimflow/internal/claims"
	"github.com/CMSgov/claimflow/internal/clearinghouse"
	"github.com/CMSgov/claimflow/internal/log"
	"github.com/CMSgov/claimflow/internal/metrics"
	"github.com/CMSgov/claimflow/internal/monitoring"
	"github.com/CMSgov/claimflow/internal/payer"
	"github.com/CMSgov/claimflow/internal/reader"
	"github.com/CMSgov/claimflow/internal/reporter"
)

// PayerConfig describes one logical payer the Clearinghouse can route
// to.
type PayerConfig struct {
	ID                 string
	MinDelay, MaxDelay time.Duration
	Concurrency        int
}

// Config is everything needed to build a Pipeline.
type Config struct {
	InputPath string
	Rate      float64
	Payers    []PayerConfig

	ReportInterval    time.Duration
	GroupAgingByPayer bool

	// DrainDeadline bounds how long the Biller waits, after the
	// Reader closes, for outstanding remittances before giving up.
	DrainDeadline time.Duration

	Monitor *monitoring.Monitor
	Metrics *metrics.Registry
}

// Pipeline owns every stage and the channels between them.
type Pipeline struct {
	cfg Config

	Ledger   *claims.Ledger
	Reader   *reader.Reader
	Biller   *biller.Biller
	CH       *clearinghouse.Clearinghouse
	Payers   []*payer.Payer
	Reporter *reporter.Reporter
}

// Build constructs every stage and the channels connecting them, but
// does not start any goroutines.
func Build(cfg Config) *Pipeline {
	ledger := claims.NewLedger()

	ingest := make(chan claims.Claim)
	submissions := make(chan biller.Submission)
	remit := make(chan claims.Remittance)

	routes := make(map[string]chan<- payer.Request, len(cfg.Payers))
	payers := make([]*payer.Payer, 0, len(cfg.Payers))
	for _, pc := range cfg.Payers {
		in := make(chan payer.Request)
		routes[pc.ID] = in
		payers = append(payers, &payer.Payer{
			ID:          pc.ID,
			In:          in,
			Out:         remit,
			MinDelay:    pc.MinDelay,
			MaxDelay:    pc.MaxDelay,
			Concurrency: pc.Concurrency,
			Log:         log.For("payer").WithField("payer_id", pc.ID),
		})
	}

	p := &Pipeline{
		cfg:    cfg,
		Ledger: ledger,
		Reader: &reader.Reader{
			Path:    cfg.InputPath,
			Out:     ingest,
			Log:     log.For("reader"),
			Metrics: cfg.Metrics,
		},
		Biller: &biller.Biller{
			In:            ingest,
			Out:           submissions,
			Rate:          cfg.Rate,
			DrainDeadline: cfg.DrainDeadline,
			Log:           log.For("biller"),
		},
		CH: &clearinghouse.Clearinghouse{
			In:      submissions,
			Remit:   remit,
			Routes:  routes,
			Ledger:  ledger,
			Metrics: cfg.Metrics,
			Log:     log.For("clearinghouse"),
		},
		Payers: payers,
		Reporter: &reporter.Reporter{
			Ledger:            ledger,
			Interval:          cfg.ReportInterval,
			GroupAgingByPayer: cfg.GroupAgingByPayer,
			Log:               log.For("reporter"),
			Metrics:           cfg.Metrics,
		},
	}
	return p
}

// Run starts every stage and blocks until the Reader reaches
// end-of-input and every downstream stage has drained, or ctx is
// cancelled. Stage errors are aggregated; a non-nil return means at
// least one stage reported a fatal condition.
//
// The Reporter is not part of the errgroup that supervises
// Reader/Biller/Clearinghouse/Payers: errgroup.WithContext only
// cancels its derived context when a grouped goroutine returns a
// non-nil error, and on a clean, fully-drained run every processing
// stage returns nil. Waiting on that group together with the Reporter
// would then block forever, since the Reporter only exits on its own
// ticker or context cancellation. Instead the four processing stages
// are waited on alone; once they've all finished (successfully or
// not), reporterCtx is cancelled explicitly, which is what drives the
// Reporter's final tick and return on a normal completion. An external
// cancellation of ctx still reaches the Reporter immediately too,
// since reporterCtx is derived from it directly.
func (p *Pipeline) Run(ctx context.Context) error {
	var mu sync.Mutex
	var errs error
	collect := func(stage string, err error) error {
		if err == nil {
			return nil
		}
		wrapped := fmt.Errorf("%s: %w", stage, err)
		mu.Lock()
		errs = multierr.Append(errs, wrapped)
		mu.Unlock()
		return wrapped
	}

	run := func(runCtx context.Context, stage string, fn func(context.Context) error) func() error {
		return func() error {
			end := p.cfg.Monitor.StartStageSegment(runCtx, "pipeline", stage)
			defer end()
			return collect(stage, fn(runCtx))
		}
	}

	procGroup, procCtx := errgroup.WithContext(ctx)
	procGroup.Go(run(procCtx, "reader", p.Reader.Run))
	procGroup.Go(run(procCtx, "biller", p.Biller.Run))
	procGroup.Go(run(procCtx, "clearinghouse", p.CH.Run))
	for _, pay := range p.Payers {
		pay := pay
		procGroup.Go(run(procCtx, "payer:"+pay.ID, pay.Run))
	}

	reporterCtx, cancelReporter := context.WithCancel(ctx)
	defer cancelReporter()

	reporterDone := make(chan error, 1)
	go func() {
		reporterDone <- run(reporterCtx, "reporter", p.Reporter.Run)()
	}()

	_ = procGroup.Wait()
	cancelReporter()
	<-reporterDone

	return errs
}
