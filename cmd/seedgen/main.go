// Command seedgen writes a synthetic line-delimited JSON claim file
// suitable for feeding to claimflow, using randomdata the way
// bcda/alr/gen generates synthetic ALR rows.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	randomdata "github.com/Pallinder/go-randomdata"
	"github.com/pborman/uuid"
	"github.com/urfave/cli"
)

type wireServiceLine struct {
	ServiceLineID    string  `json:"service_line_id"`
	ProcedureCode    string  `json:"procedure_code"`
	Units            int     `json:"units"`
	UnitChargeAmount float64 `json:"unit_charge_amount"`
	DoNotBill        bool    `json:"do_not_bill,omitempty"`
}

type wireClaim struct {
	ClaimID   string `json:"claim_id"`
	Insurance struct {
		PayerID         string `json:"payer_id"`
		PatientMemberID string `json:"patient_member_id"`
	} `json:"insurance"`
	Patient struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Gender    string `json:"gender"`
		Email     string `json:"email"`
	} `json:"patient"`
	ServiceLines []wireServiceLine `json:"service_lines"`
}

var procedureCodes = []string{"99213", "99214", "80050", "71045", "93000", "36415"}

func randomClaim(payerIDs []string, patientPoolSize int) wireClaim {
	var c wireClaim
	c.ClaimID = uuid.New()
	c.Insurance.PayerID = randomdata.StringSample(payerIDs...)
	c.Insurance.PatientMemberID = "M" + strconv.Itoa(randomdata.Number(patientPoolSize))

	gender := randomdata.RandomGender
	c.Patient.FirstName = randomdata.FirstName(gender)
	c.Patient.LastName = randomdata.LastName()
	c.Patient.Gender = randomdata.StringSample("M", "F")
	c.Patient.Email = randomdata.Email()

	n := 1 + randomdata.Number(4)
	c.ServiceLines = make([]wireServiceLine, 0, n)
	for i := 0; i < n; i++ {
		c.ServiceLines = append(c.ServiceLines, wireServiceLine{
			ServiceLineID:    "sl" + strconv.Itoa(i+1),
			ProcedureCode:    randomdata.StringSample(procedureCodes...),
			Units:            1 + randomdata.Number(3),
			UnitChargeAmount: randomdata.Decimal(2, 10, 500),
			DoNotBill:        randomdata.Number(10) == 0,
		})
	}
	return c
}

func generate(path string, count int, payerIDs []string, patientPoolSize int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	enc := json.NewEncoder(w)
	for i := 0; i < count; i++ {
		if err := enc.Encode(randomClaim(payerIDs, patientPoolSize)); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "seedgen"
	app.Usage = "Generate a synthetic line-delimited JSON claim file for claimflow"

	var out string
	var count, patients int
	var payers cli.StringSlice

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "out",
			Usage:       "output file path",
			Value:       "claims.ndjson",
			Destination: &out,
		},
		cli.IntFlag{
			Name:        "count",
			Usage:       "number of claims to generate",
			Value:       100,
			Destination: &count,
		},
		cli.IntFlag{
			Name:        "patients",
			Usage:       "size of the synthetic patient pool",
			Value:       25,
			Destination: &patients,
		},
		cli.StringSliceFlag{
			Name:  "payer",
			Usage: "payer id to include in the generated pool (repeatable)",
			Value: &payers,
		},
	}

	app.Action = func(c *cli.Context) error {
		payerIDs := payers.Value()
		if len(payerIDs) == 0 {
			payerIDs = []string{"P1", "P2", "P3"}
		}
		if err := generate(out, count, payerIDs, patients); err != nil {
			return err
		}
		fmt.Printf("wrote %d claims to %s\n", count, out)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
