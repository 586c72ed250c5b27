// Package biller implements the Biller stage: it paces ingestion at a
// configured rate and allocates a single-use return handle for every
// claim it forwards to the Clearinghouse, so a later remittance can
// find its way back without the Clearinghouse knowing anything about
// the Biller's internals.
package biller

import (
	"context"
	"sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/CMSgov/claimflow/internal/claims"
	"github.com/CMSgov/claimflow/internal/log"
)

// Submission is what the Biller hands to the Clearinghouse: a claim
// plus the opaque return handle the Clearinghouse uses to deliver the
// matching Remittance, without needing to know how the Biller
// correlates it.
type Submission struct {
	Claim  claims.Claim
	Return chan<- claims.Remittance
}

// Biller paces claims from In onto Out at Rate claims/second and
// tracks outstanding return handles until DrainDeadline elapses or
// every handle has resolved.
type Biller struct {
	In   <-chan claims.Claim
	Out  chan<- Submission
	Rate float64

	// DrainDeadline bounds how long Run waits, after In closes, for
	// outstanding return handles to resolve before giving up and
	// closing Out anyway. Zero means wait indefinitely.
	DrainDeadline time.Duration

	Log logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]chan claims.Remittance
}

// ErrDrainDeadlineExceeded is returned by Run when claims were still
// outstanding at DrainDeadline. Non-fatal: the caller
// is expected to let the Reporter's final tick report the remainder
// and surface a non-zero exit code.
type ErrDrainDeadlineExceeded struct {
	Outstanding int
}

func (e *ErrDrainDeadlineExceeded) Error() string {
	return "biller: drain deadline exceeded with claims still outstanding"
}

// Run forwards every claim from In to Out, rate-limited, until In
// closes and every allocated return handle has resolved (or the
// drain deadline elapses). It always closes Out before returning.
func (b *Biller) Run(ctx context.Context) error {
	defer close(b.Out)
	b.pending = make(map[string]chan claims.Remittance)

	limiter := rate.NewLimiter(rate.Limit(b.Rate), 1)

	var wg sync.WaitGroup

loop:
	for {
		select {
		case claim, ok := <-b.In:
			if !ok {
				break loop
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			b.submit(ctx, claim, &wg)
		case <-ctx.Done():
			return nil
		}
	}

	// Every wg.Add(1) happens synchronously inside submit, which is only
	// called from the loop above, so wg's count is final now that the
	// loop has exited — safe to start the drain-monitor goroutine here.
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	if b.DrainDeadline <= 0 {
		<-drained
		return nil
	}

	select {
	case <-drained:
		return nil
	case <-time.After(b.DrainDeadline):
		b.mu.Lock()
		outstanding := len(b.pending)
		b.mu.Unlock()
		b.log().WithField("outstanding", outstanding).
			Warn("biller: drain deadline exceeded, closing submissions with claims still open")
		return &ErrDrainDeadlineExceeded{Outstanding: outstanding}
	}
}

func (b *Biller) submit(ctx context.Context, claim claims.Claim, wg *sync.WaitGroup) {
	ret := make(chan claims.Remittance, 1)
	handle := uuid.NewRandom().String()

	b.mu.Lock()
	b.pending[claim.ClaimID] = ret
	b.mu.Unlock()

	// Stash claim_id/handle on the context so awaitReturn's log entry
	// carries them without needing its own parameter for each field,
	// mirroring bcdaworker/log's context-carried request fields.
	returnCtx := log.WithFields(ctx, logrus.Fields{"claim_id": claim.ClaimID, "handle": handle})

	wg.Add(1)
	go b.awaitReturn(returnCtx, claim.ClaimID, ret, wg)

	select {
	case b.Out <- Submission{Claim: claim, Return: ret}:
	case <-ctx.Done():
	}
}

func (b *Biller) awaitReturn(ctx context.Context, claimID string, ret <-chan claims.Remittance, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.pending, claimID)
		b.mu.Unlock()
	}()

	select {
	case _, ok := <-ret:
		if ok {
			b.log().WithFields(log.FieldsFrom(ctx)).
				Debug("biller: remittance returned, claim resolved")
		}
	case <-ctx.Done():
	}
}

// Outstanding reports the number of claims awaiting a remittance.
func (b *Biller) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Biller) log() logrus.FieldLogger {
	if b.Log != nil {
		return b.Log
	}
	return logrus.StandardLogger()
}
