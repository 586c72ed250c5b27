// Package wire decodes the line-delimited JSON claim record format
// the pipeline ingests. Parsing this format sits at the edge of the
// core pipeline, but something has to turn a line of JSON into a
// claims.Claim, so this package does the minimum: unmarshal, validate
// the required fields are present, and project into the domain type.
// Unknown fields are ignored by encoding/json's default behavior.
package wire

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/CMSgov/claimflow/internal/claims"
)

// record mirrors the wire schema's nesting: insurance{payer_id,
// patient_member_id}, patient{...}, service_lines[...]. Field names
// match the standard payer-claim wire layout.
type record struct {
	ClaimID   string `json:"claim_id"`
	Insurance struct {
		PayerID         string `json:"payer_id"`
		PatientMemberID string `json:"patient_member_id"`
	} `json:"insurance"`
	Patient struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Gender    string `json:"gender"`
		DOB       string `json:"dob"`
		Email     string `json:"email"`
	} `json:"patient"`
	ServiceLines []serviceLine `json:"service_lines"`
}

type serviceLine struct {
	ServiceLineID    string  `json:"service_line_id"`
	ProcedureCode    string  `json:"procedure_code"`
	Units            int     `json:"units"`
	UnitChargeAmount float64 `json:"unit_charge_amount"`
	DoNotBill        *bool   `json:"do_not_bill"`
}

// ParseLine decodes one line of the input file into a claims.Claim.
// A missing required field (claim_id, payer_id, patient_member_id, or
// an empty service_lines slice) is reported as an error; the Reader
// logs and skips such lines rather than tearing down the stream.
func ParseLine(line []byte) (claims.Claim, error) {
	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return claims.Claim{}, errors.Wrap(err, "invalid JSON")
	}

	if r.ClaimID == "" {
		return claims.Claim{}, errors.New("missing claim_id")
	}
	if r.Insurance.PayerID == "" {
		return claims.Claim{}, errors.New("missing insurance.payer_id")
	}
	if r.Insurance.PatientMemberID == "" {
		return claims.Claim{}, errors.New("missing insurance.patient_member_id")
	}
	if len(r.ServiceLines) == 0 {
		return claims.Claim{}, errors.New("missing service_lines")
	}

	lines := make([]claims.ServiceLine, 0, len(r.ServiceLines))
	for i, sl := range r.ServiceLines {
		if sl.ServiceLineID == "" {
			return claims.Claim{}, errors.Errorf("service_lines[%d]: missing service_line_id", i)
		}
		lines = append(lines, claims.ServiceLine{
			ServiceLineID:    sl.ServiceLineID,
			ProcedureCode:    sl.ProcedureCode,
			Units:            sl.Units,
			UnitChargeAmount: sl.UnitChargeAmount,
			DoNotBill:        sl.DoNotBill != nil && *sl.DoNotBill,
		})
	}

	return claims.Claim{
		ClaimID:         r.ClaimID,
		PayerID:         r.Insurance.PayerID,
		PatientMemberID: r.Insurance.PatientMemberID,
		Patient: claims.Patient{
			FirstName: r.Patient.FirstName,
			LastName:  r.Patient.LastName,
			Gender:    r.Patient.Gender,
			DOB:       r.Patient.DOB,
			Email:     r.Patient.Email,
		},
		ServiceLines: lines,
	}, nil
}
