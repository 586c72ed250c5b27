package claims

import "math"

// summationTolerance absorbs floating-point rounding noise when
// validating that a line's five buckets reconstruct the billed amount.
const summationTolerance = 1e-6

// LineRemittance is a payer's adjudication of a single service line.
// The five amounts must sum to the line's billed amount; Valid()
// checks that invariant for one line.
type LineRemittance struct {
	ServiceLineID     string
	PayerPaidAmount   float64
	CopayAmount       float64
	CoinsuranceAmount float64
	DeductibleAmount  float64
	NotAllowedAmount  float64
}

func (lr LineRemittance) sum() float64 {
	return lr.PayerPaidAmount + lr.CopayAmount + lr.CoinsuranceAmount + lr.DeductibleAmount + lr.NotAllowedAmount
}

// Valid reports whether lr's five buckets are non-negative and sum to
// billed within summationTolerance.
func (lr LineRemittance) Valid(billed float64) bool {
	if lr.PayerPaidAmount < 0 || lr.CopayAmount < 0 || lr.CoinsuranceAmount < 0 ||
		lr.DeductibleAmount < 0 || lr.NotAllowedAmount < 0 {
		return false
	}
	return math.Abs(lr.sum()-billed) <= summationTolerance
}

// Remittance is a payer's response to a Claim.
type Remittance struct {
	ClaimID string
	Lines   []LineRemittance
}

// TotalPayerPaid sums PayerPaidAmount across every line.
func (r Remittance) TotalPayerPaid() float64 {
	var total float64
	for _, l := range r.Lines {
		total += l.PayerPaidAmount
	}
	return total
}

// TotalPatientResponsibility sums copay+coinsurance+deductible across
// every line (not-allowed amounts are owed by neither party).
func (r Remittance) TotalPatientResponsibility() float64 {
	var total float64
	for _, l := range r.Lines {
		total += l.CopayAmount + l.CoinsuranceAmount + l.DeductibleAmount
	}
	return total
}

// TotalCopay sums CopayAmount across every line.
func (r Remittance) TotalCopay() float64 {
	var total float64
	for _, l := range r.Lines {
		total += l.CopayAmount
	}
	return total
}

// TotalCoinsurance sums CoinsuranceAmount across every line.
func (r Remittance) TotalCoinsurance() float64 {
	var total float64
	for _, l := range r.Lines {
		total += l.CoinsuranceAmount
	}
	return total
}

// TotalDeductible sums DeductibleAmount across every line.
func (r Remittance) TotalDeductible() float64 {
	var total float64
	for _, l := range r.Lines {
		total += l.DeductibleAmount
	}
	return total
}

// TotalNotAllowed sums NotAllowedAmount across every line.
func (r Remittance) TotalNotAllowed() float64 {
	var total float64
	for _, l := range r.Lines {
		total += l.NotAllowedAmount
	}
	return total
}

// ValidateAgainst checks that every line of r satisfies the
// summation invariant against the corresponding billed line of c. A
// line-count mismatch is itself a violation.
func (r Remittance) ValidateAgainst(c Claim) bool {
	if len(r.Lines) != billableLineCount(c) {
		return false
	}
	idx := 0
	for _, sl := range c.ServiceLines {
		if sl.DoNotBill {
			continue
		}
		if !r.Lines[idx].Valid(sl.BilledAmount()) {
			return false
		}
		idx++
	}
	return true
}

func billableLineCount(c Claim) int {
	n := 0
	for _, sl := range c.ServiceLines {
		if !sl.DoNotBill {
			n++
		}
	}
	return n
}

// ErrorRemittance synthesizes the all-not-allowed remittance the
// clearinghouse package uses for an unknown-payer rejection and for a
// duplicate-claim reply. Every billable line's entire charge lands in
// NotAllowedAmount, satisfying the summation invariant trivially. The
// clearinghouse's invariant-violation replacement does not use it: that
// path has only the Record, and builds a single "*" line carrying the
// record's whole TotalBilled as not allowed, with no per-service-line
// breakdown.
func ErrorRemittance(c Claim) Remittance {
	lines := make([]LineRemittance, 0, len(c.ServiceLines))
	for _, sl := range c.ServiceLines {
		if sl.DoNotBill {
			continue
		}
		lines = append(lines, LineRemittance{
			ServiceLineID:    sl.ServiceLineID,
			NotAllowedAmount: sl.BilledAmount(),
		})
	}
	return Remittance{ClaimID: c.ClaimID, Lines: lines}
}
