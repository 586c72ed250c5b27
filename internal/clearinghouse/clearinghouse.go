// Package clearinghouse implements the central routing and
// correlation hub: it owns the shared claim Ledger, routes each
// submission to the payer named by its payer_id, and delivers each
// resulting remittance back through the return handle the Biller
// allocated for it.
package clearinghouse

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CMSgov/claimflow/internal/biller"
	"github.com/CMSgov/claimflow/internal/claims"
	"github.com/CMSgov/claimflow/internal/metrics"
	"github.com/CMSgov/claimflow/internal/payer"
)

// Clearinghouse routes claims from In to the payer stream named by
// their payer_id, and routes remittances on Remit back to the
// originating Biller return handle.
type Clearinghouse struct {
	In    <-chan biller.Submission
	Remit <-chan claims.Remittance

	// Routes maps payer id to that payer's inbound stream. Built once
	// at construction and read-only thereafter.
	Routes map[string]chan<- payer.Request

	Ledger  *claims.Ledger
	Metrics *metrics.Registry
	Log     logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]chan<- claims.Remittance
}

// Run processes submissions and remittances until In has closed and
// every pending claim has resolved, or a duplicate claim id is
// observed (treated as fatal). It closes every payer route before
// returning, cascading shutdown to the Payer stage.
//
// The exit condition is in==nil && pending empty, not in==nil &&
// Remit==nil: Remit is a fan-in shared by every Payer and, by design,
// nothing ever closes it. Waiting on pending instead lets a
// submission-stream close that still has claims in flight keep
// servicing Remit until those claims resolve, then exit — matching
// "Clearinghouse waits until submissions are closed AND pending is
// empty" exactly. Cancellation of ctx ends Run at once, pending claims
// or not; in the pipeline, the Biller's drain-deadline error cancels
// ctx this way.
func (ch *Clearinghouse) Run(ctx context.Context) error {
	ch.pending = make(map[string]chan<- claims.Remittance)
	defer ch.closeRoutes()

	in := ch.In
	remit := ch.Remit
	for {
		if in == nil && ch.PendingCount() == 0 {
			return nil
		}
		select {
		case sub, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			if err := ch.handleSubmission(ctx, sub); err != nil {
				return err
			}

		case rem, ok := <-remit:
			if !ok {
				remit = nil
				continue
			}
			ch.handleRemittance(rem)

		case <-ctx.Done():
			return nil
		}
	}
}

func (ch *Clearinghouse) handleSubmission(ctx context.Context, sub biller.Submission) error {
	claim := sub.Claim
	log := ch.log().WithField("claim_id", claim.ClaimID)

	rec := claims.Record{
		ClaimID:         claim.ClaimID,
		PatientMemberID: claim.PatientMemberID,
		PayerID:         claim.PayerID,
		TotalBilled:     claim.TotalBilled(),
		SubmittedAt:     time.Now(),
	}

	if !ch.Ledger.Insert(rec) {
		log.Error("clearinghouse: duplicate claim id")
		sub.Return <- claims.ErrorRemittance(claim)
		return &claims.DuplicateClaimError{ClaimID: claim.ClaimID}
	}

	route, ok := ch.Routes[claim.PayerID]
	if !ok {
		log.WithField("payer_id", claim.PayerID).Warn("clearinghouse: unknown payer, synthesizing rejection")
		rejection := claims.ErrorRemittance(claim)
		ch.Ledger.Resolve(claim.ClaimID, rejection, time.Now())
		sub.Return <- rejection
		if ch.Metrics != nil {
			ch.Metrics.ClaimsResolved.WithLabelValues("unknown_payer").Inc()
		}
		return nil
	}

	ch.mu.Lock()
	ch.pending[claim.ClaimID] = sub.Return
	ch.mu.Unlock()

	if ch.Metrics != nil {
		ch.Metrics.ClaimsSubmitted.WithLabelValues(claim.PayerID).Inc()
		ch.Metrics.OpenClaims.Inc()
	}

	select {
	case route <- payer.Request{Claim: claim}:
	case <-ctx.Done():
	}
	return nil
}

func (ch *Clearinghouse) handleRemittance(rem claims.Remittance) {
	log := ch.log().WithField("claim_id", rem.ClaimID)

	ch.mu.Lock()
	ret, ok := ch.pending[rem.ClaimID]
	if ok {
		delete(ch.pending, rem.ClaimID)
	}
	ch.mu.Unlock()

	if !ok {
		log.Warn("clearinghouse: remittance for unknown or already-resolved claim, dropping")
		return
	}

	rec, exists := ch.Ledger.Get(rem.ClaimID)
	if !exists {
		log.Error("clearinghouse: remittance for claim missing from ledger")
		return
	}

	final := rem
	if !validatesAgainst(rec, rem) {
		log.WithError(&claims.InvariantViolationError{ClaimID: rem.ClaimID}).
			Error("clearinghouse: remittance failed summation invariant, replacing with error remittance")
		final = claims.Remittance{
			ClaimID: rem.ClaimID,
			Lines:   []claims.LineRemittance{{ServiceLineID: "*", NotAllowedAmount: rec.TotalBilled}},
		}
	}

	ch.Ledger.Resolve(rem.ClaimID, final, time.Now())
	if ch.Metrics != nil {
		ch.Metrics.OpenClaims.Dec()
		outcome := "paid"
		if final.TotalPayerPaid() == 0 {
			outcome = "rejected"
		}
		ch.Metrics.ClaimsResolved.WithLabelValues(outcome).Inc()
	}

	ret <- final
}

// validatesAgainst checks the remittance's line amounts are
// non-negative and sum to the claim's total billed amount, the only
// invariant the Clearinghouse can re-check without the original
// per-line claim detail, which the Record does not carry. Individual
// lines are not checked against their own billed amounts.
func validatesAgainst(rec claims.Record, rem claims.Remittance) bool {
	var total float64
	for _, l := range rem.Lines {
		if l.PayerPaidAmount < 0 || l.CopayAmount < 0 || l.CoinsuranceAmount < 0 ||
			l.DeductibleAmount < 0 || l.NotAllowedAmount < 0 {
			return false
		}
		total += l.PayerPaidAmount + l.CopayAmount + l.CoinsuranceAmount + l.DeductibleAmount + l.NotAllowedAmount
	}
	diff := total - rec.TotalBilled
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1e-6
}

// PendingCount returns the number of submissions awaiting a
// remittance. At any instant this equals the count of Open
// ClaimRecords in the ledger.
func (ch *Clearinghouse) PendingCount() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.pending)
}

func (ch *Clearinghouse) closeRoutes() {
	for _, route := range ch.Routes {
		close(route)
	}
}

func (ch *Clearinghouse) log() logrus.FieldLogger {
	if ch.Log != nil {
		return ch.Log
	}
	return logrus.StandardLogger()
}
