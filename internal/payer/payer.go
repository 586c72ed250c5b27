// Package payer implements the Payer stage: each Payer value is one
// logical payer (one payer_id) that adjudicates claims concurrently,
// applying a fixed allocation policy and a randomized processing
// delay before returning a Remittance.
package payer

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/CMSgov/claimflow/internal/claims"
)

// Request is what the Clearinghouse sends a Payer: a single claim
// awaiting adjudication.
type Request struct {
	Claim claims.Claim
}

// Allocation is the fixed percentage split applied to every billed
// service line's charge. It does not vary by procedure code or payer;
// a real adjudication engine would, but that is explicitly out of
// scope (real medical-coding validation is not simulated here).
type Allocation struct {
	PayerPaid   float64
	Coinsurance float64
	Copay       float64
	Deductible  float64
	NotAllowed  float64
}

// DefaultAllocation is the split every Payer uses: 80% payer-paid,
// 10% coinsurance, 5% copay, 3% deductible, 2% not allowed.
var DefaultAllocation = Allocation{
	PayerPaid:   0.80,
	Coinsurance: 0.10,
	Copay:       0.05,
	Deductible:  0.03,
	NotAllowed:  0.02,
}

// Payer adjudicates every Request it receives on In, waiting a random
// duration in [MinDelay, MaxDelay) to simulate processing latency, and
// writes the resulting Remittance to Out. Out is a fan-in shared by
// every Payer in the pipeline; Payer never closes it.
type Payer struct {
	ID  string
	In  <-chan Request
	Out chan<- claims.Remittance

	MinDelay, MaxDelay time.Duration
	Allocation         Allocation

	// Concurrency bounds how many claims this payer adjudicates at
	// once. Values below 1 are treated as 1 (one claim at a time).
	Concurrency int

	Log logrus.FieldLogger

	rng *rand.Rand
}

// Run adjudicates every request from In until In closes or ctx is
// cancelled, then waits for in-flight adjudications to finish.
func (p *Payer) Run(ctx context.Context) error {
	if p.Allocation == (Allocation{}) {
		p.Allocation = DefaultAllocation
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(p.ID))))
	}

	wp := pool.New().WithMaxGoroutines(max(1, p.Concurrency))
	defer wp.Wait()

	for {
		select {
		case req, ok := <-p.In:
			if !ok {
				return nil
			}
			wp.Go(func() { p.adjudicate(ctx, req.Claim) })
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Payer) adjudicate(ctx context.Context, claim claims.Claim) {
	delay := p.delay()
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}

	rem := p.Remit(claim)

	select {
	case p.Out <- rem:
	case <-ctx.Done():
	}
}

// Remit computes the Remittance for claim under this Payer's
// allocation policy. Exported for direct use by tests that need
// deterministic adjudication without the delay and channel plumbing.
func (p *Payer) Remit(claim claims.Claim) claims.Remittance {
	alloc := p.Allocation
	if alloc == (Allocation{}) {
		alloc = DefaultAllocation
	}

	lines := make([]claims.LineRemittance, 0, len(claim.ServiceLines))
	for _, sl := range claim.ServiceLines {
		if sl.DoNotBill {
			continue
		}
		billed := sl.BilledAmount()
		coins := round2(billed * alloc.Coinsurance)
		copay := round2(billed * alloc.Copay)
		deduct := round2(billed * alloc.Deductible)
		notAllowed := round2(billed * alloc.NotAllowed)
		lines = append(lines, claims.LineRemittance{
			ServiceLineID:     sl.ServiceLineID,
			PayerPaidAmount:   residual(billed, coins, copay, deduct, notAllowed),
			CoinsuranceAmount: coins,
			CopayAmount:       copay,
			DeductibleAmount:  deduct,
			NotAllowedAmount:  notAllowed,
		})
	}

	return claims.Remittance{ClaimID: claim.ClaimID, Lines: lines}
}

// residual assigns payer-paid as whatever is left over after rounding
// the four patient/rejection shares, so the line always sums exactly
// to the billed amount regardless of floating point rounding on the
// other components. Payer-paid is by construction the largest share
// of DefaultAllocation, so it absorbs the rounding residual without
// risk of going negative for any non-trivial billed amount.
func residual(billed, coins, copay, deduct, notAllowed float64) float64 {
	remainder := billed - coins - copay - deduct - notAllowed
	if remainder < 0 {
		remainder = 0
	}
	return remainder
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func (p *Payer) delay() time.Duration {
	if p.MaxDelay <= p.MinDelay {
		return p.MinDelay
	}
	span := p.MaxDelay - p.MinDelay
	return p.MinDelay + time.Duration(p.rng.Int63n(int64(span)))
}
