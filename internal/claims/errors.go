package claims

import "fmt"

// DuplicateClaimError is fatal: it indicates the Reader (or whatever
// produced it) emitted the same claim id twice.
type DuplicateClaimError struct {
	ClaimID string
}

func (e *DuplicateClaimError) Error() string {
	return fmt.Sprintf("duplicate claim id %q: already present in ledger", e.ClaimID)
}

// UnknownPayerError is recoverable: the Clearinghouse synthesizes an
// error remittance and closes the claim instead of propagating this.
type UnknownPayerError struct {
	ClaimID string
	PayerID string
}

func (e *UnknownPayerError) Error() string {
	return fmt.Sprintf("claim %q: no route for payer %q", e.ClaimID, e.PayerID)
}

// InvariantViolationError is recoverable: the Clearinghouse replaces
// the offending remittance with an error remittance and logs this.
type InvariantViolationError struct {
	ClaimID string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("claim %q: remittance failed summation invariant", e.ClaimID)
}
