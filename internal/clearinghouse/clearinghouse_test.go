package clearinghouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CMSgov/claimflow/internal/biller"
	"github.com/CMSgov/claimflow/internal/claims"
	"github.com/CMSgov/claimflow/internal/payer"
)

func sampleClaim(id, payerID string) claims.Claim {
	return claims.Claim{
		ClaimID:         id,
		PayerID:         payerID,
		PatientMemberID: "M1",
		ServiceLines: []claims.ServiceLine{
			{ServiceLineID: "sl1", Units: 1, UnitChargeAmount: 100},
		},
	}
}

func newHarness(routes map[string]chan<- payer.Request) (*Clearinghouse, chan biller.Submission, chan claims.Remittance) {
	in := make(chan biller.Submission)
	remit := make(chan claims.Remittance)
	ch := &Clearinghouse{
		In:     in,
		Remit:  remit,
		Routes: routes,
		Ledger: claims.NewLedger(),
	}
	return ch, in, remit
}

func TestClearinghouseRoutesKnownPayerAndResolvesOnRemittance(t *testing.T) {
	payerIn := make(chan payer.Request, 1)
	ch, in, remit := newHarness(map[string]chan<- payer.Request{"P1": payerIn})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	ret := make(chan claims.Remittance, 1)
	claim := sampleClaim("C1", "P1")
	in <- biller.Submission{Claim: claim, Return: ret}

	var req payer.Request
	select {
	case req = <-payerIn:
	case <-time.After(time.Second):
		t.Fatal("clearinghouse did not route to payer")
	}
	assert.Equal(t, "C1", req.Claim.ClaimID)

	rec, ok := ch.Ledger.Get("C1")
	require.True(t, ok)
	assert.Equal(t, claims.Open, rec.Status())

	remit <- claims.Remittance{
		ClaimID: "C1",
		Lines:   []claims.LineRemittance{{ServiceLineID: "sl1", PayerPaidAmount: 100}},
	}

	select {
	case got := <-ret:
		assert.Equal(t, "C1", got.ClaimID)
	case <-time.After(time.Second):
		t.Fatal("clearinghouse did not deliver remittance back")
	}

	rec, ok = ch.Ledger.Get("C1")
	require.True(t, ok)
	assert.Equal(t, claims.Closed, rec.Status())
}

func TestClearinghouseRejectsUnknownPayerImmediately(t *testing.T) {
	ch, in, _ := newHarness(map[string]chan<- payer.Request{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	ret := make(chan claims.Remittance, 1)
	claim := sampleClaim("C1", "unknown")
	in <- biller.Submission{Claim: claim, Return: ret}

	select {
	case got := <-ret:
		assert.Equal(t, 100.0, got.TotalNotAllowed())
		assert.Equal(t, 0.0, got.TotalPayerPaid())
	case <-time.After(time.Second):
		t.Fatal("clearinghouse did not reject unknown payer claim")
	}

	rec, ok := ch.Ledger.Get("C1")
	require.True(t, ok)
	assert.Equal(t, claims.Closed, rec.Status())
}

func TestClearinghouseDuplicateClaimIsFatal(t *testing.T) {
	payerIn := make(chan payer.Request, 2)
	ch, in, _ := newHarness(map[string]chan<- payer.Request{"P1": payerIn})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	ret1 := make(chan claims.Remittance, 1)
	ret2 := make(chan claims.Remittance, 1)
	in <- biller.Submission{Claim: sampleClaim("C1", "P1"), Return: ret1}
	<-payerIn

	in <- biller.Submission{Claim: sampleClaim("C1", "P1"), Return: ret2}

	select {
	case err := <-done:
		require.Error(t, err)
		var dupErr *claims.DuplicateClaimError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, "C1", dupErr.ClaimID)
	case <-time.After(time.Second):
		t.Fatal("clearinghouse did not treat duplicate claim id as fatal")
	}
}

func TestClearinghouseReplacesInvalidRemittanceWithErrorRemittance(t *testing.T) {
	payerIn := make(chan payer.Request, 1)
	ch, in, remit := newHarness(map[string]chan<- payer.Request{"P1": payerIn})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	ret := make(chan claims.Remittance, 1)
	in <- biller.Submission{Claim: sampleClaim("C1", "P1"), Return: ret}
	<-payerIn

	// Payer misbehaves: only allocates half the billed amount.
	remit <- claims.Remittance{
		ClaimID: "C1",
		Lines:   []claims.LineRemittance{{ServiceLineID: "sl1", PayerPaidAmount: 50}},
	}

	select {
	case got := <-ret:
		assert.Equal(t, 100.0, got.TotalNotAllowed())
	case <-time.After(time.Second):
		t.Fatal("clearinghouse did not deliver replacement remittance")
	}
}
