// Package claims holds the domain types shared by every stage of the
// pipeline: the immutable Claim as it arrives from the Reader, the
// Remittance a Payer produces, and the ClaimRecord the Clearinghouse
// keeps in the Ledger for the lifetime of a claim.
package claims

// ServiceLine is a single billed line item on a Claim.
type ServiceLine struct {
	ServiceLineID    string
	ProcedureCode    string
	Units            int
	UnitChargeAmount float64
	DoNotBill        bool
}

// BilledAmount returns units * unit charge, or zero if the line is
// flagged do-not-bill.
func (sl ServiceLine) BilledAmount() float64 {
	if sl.DoNotBill {
		return 0
	}
	return float64(sl.Units) * sl.UnitChargeAmount
}

// Patient carries the demographic fields the pipeline needs; contact
// details are optional and carried only for completeness.
type Patient struct {
	FirstName string
	LastName  string
	Gender    string
	DOB       string
	Email     string
}

// Claim is immutable once constructed by the Reader. PayerID is the
// Clearinghouse routing key; PatientMemberID correlates remittance
// line items back to a patient for the Reporter's summary.
type Claim struct {
	ClaimID         string
	PayerID         string
	PatientMemberID string
	Patient         Patient
	ServiceLines    []ServiceLine
}

// TotalBilled sums BilledAmount across every service line.
func (c Claim) TotalBilled() float64 {
	var total float64
	for _, sl := range c.ServiceLines {
		total += sl.BilledAmount()
	}
	return total
}
