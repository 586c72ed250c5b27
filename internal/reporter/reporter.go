// Package reporter implements the Reporter stage: on a fixed cadence
// it snapshots the shared claim Ledger and prints accounts-receivable
// aging buckets and a per-patient financial summary.
package reporter

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/CMSgov/claimflow/internal/claims"
	"github.com/CMSgov/claimflow/internal/metrics"
)

// AgingBucket is one [lowSeconds, highSeconds) window of claim age,
// measured from submitted_at to now. The fifth bucket is open-ended.
type AgingBucket struct {
	Label string
	Low   time.Duration
	High  time.Duration // zero means unbounded
}

// Buckets are the five fixed aging windows, in seconds.
var Buckets = []AgingBucket{
	{Label: "0-60s", Low: 0, High: 60 * time.Second},
	{Label: "60-120s", Low: 60 * time.Second, High: 120 * time.Second},
	{Label: "120-180s", Low: 120 * time.Second, High: 180 * time.Second},
	{Label: "180-240s", Low: 180 * time.Second, High: 240 * time.Second},
	{Label: "240s+", Low: 240 * time.Second, High: 0},
}

// Reporter reads Ledger on Interval and writes a report to Out until
// ctx is cancelled, emitting one final report before returning.
type Reporter struct {
	Ledger   *claims.Ledger
	Interval time.Duration
	Out      io.Writer
	Log      logrus.FieldLogger
	Metrics  *metrics.Registry

	// GroupAgingByPayer additionally breaks each aging bucket down by
	// payer_id, a supplement beyond the base per-bucket count.
	GroupAgingByPayer bool

	now func() time.Time
}

// Run blocks emitting reports every Interval until ctx is cancelled,
// then emits one final report and returns.
func (r *Reporter) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		r.Interval = time.Minute
	}
	if r.now == nil {
		r.now = time.Now
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.emit()
		case <-ctx.Done():
			r.emit()
			return nil
		}
	}
}

func (r *Reporter) emit() {
	snapshot := r.Ledger.Snapshot()
	now := r.now()

	out := r.out()
	fmt.Fprintf(out, "\n=== claim report @ %s ===\n", now.Format(time.RFC3339))
	r.writeAging(out, snapshot, now)
	r.writePatientSummary(out, snapshot)
	r.writeMetrics(out)
}

// writeMetrics folds the in-process counter/gauge registry into the
// printed report, the same values an exporter would serve without
// this pipeline ever standing up a /metrics listener.
func (r *Reporter) writeMetrics(out io.Writer) {
	if r.Metrics == nil {
		return
	}
	snap := r.Metrics.Snapshot()
	if len(snap) == 0 {
		return
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(out, "metrics:")
	for _, k := range keys {
		fmt.Fprintf(out, "  %-45s %v\n", k, snap[k])
	}
}

func (r *Reporter) writeAging(out io.Writer, snapshot []claims.Record, now time.Time) {
	counts := make(map[string]int, len(Buckets))
	byPayerBucket := make(map[string]map[string]int)

	var openTotal int
	for _, rec := range snapshot {
		if rec.Status() != claims.Open {
			continue
		}
		openTotal++
		age := now.Sub(rec.SubmittedAt)
		b := bucketFor(age)
		counts[b.Label]++
		if r.GroupAgingByPayer {
			if byPayerBucket[rec.PayerID] == nil {
				byPayerBucket[rec.PayerID] = make(map[string]int)
			}
			byPayerBucket[rec.PayerID][b.Label]++
		}
	}

	fmt.Fprintf(out, "open claims: %d\n", openTotal)
	fmt.Fprintln(out, "aging:")
	for _, b := range Buckets {
		fmt.Fprintf(out, "  %-10s %d\n", b.Label, counts[b.Label])
	}

	if r.GroupAgingByPayer && len(byPayerBucket) > 0 {
		payerIDs := make([]string, 0, len(byPayerBucket))
		for id := range byPayerBucket {
			payerIDs = append(payerIDs, id)
		}
		sort.Strings(payerIDs)
		fmt.Fprintln(out, "aging by payer:")
		for _, id := range payerIDs {
			fmt.Fprintf(out, "  %s:\n", id)
			for _, b := range Buckets {
				if n := byPayerBucket[id][b.Label]; n > 0 {
					fmt.Fprintf(out, "    %-10s %d\n", b.Label, n)
				}
			}
		}
	}
}

func bucketFor(age time.Duration) AgingBucket {
	for _, b := range Buckets {
		if b.High == 0 {
			return b
		}
		if age >= b.Low && age < b.High {
			return b
		}
	}
	return Buckets[len(Buckets)-1]
}

// writePatientSummary tabulates, per patient_member_id, the claim
// count, total billed, total payer-paid, and each patient-
// responsibility component (copay, coinsurance, deductible) summed
// separately, across Closed claims only, using gota to do the
// grouping and aggregation rather than hand-rolled accumulation.
func (r *Reporter) writePatientSummary(out io.Writer, snapshot []claims.Record) {
	members := make([]string, 0, len(snapshot))
	billed := make([]float64, 0, len(snapshot))
	paid := make([]float64, 0, len(snapshot))
	copay := make([]float64, 0, len(snapshot))
	coinsurance := make([]float64, 0, len(snapshot))
	deductible := make([]float64, 0, len(snapshot))

	for _, rec := range snapshot {
		if rec.Status() != claims.Closed {
			continue
		}
		members = append(members, rec.PatientMemberID)
		billed = append(billed, rec.TotalBilled)
		paid = append(paid, rec.Remittance.TotalPayerPaid())
		copay = append(copay, rec.Remittance.TotalCopay())
		coinsurance = append(coinsurance, rec.Remittance.TotalCoinsurance())
		deductible = append(deductible, rec.Remittance.TotalDeductible())
	}

	if len(members) == 0 {
		fmt.Fprintln(out, "patients: (no closed claims)")
		return
	}

	df := dataframe.New(
		series.New(members, series.String, "member"),
		series.New(billed, series.Float, "billed"),
		series.New(paid, series.Float, "paid"),
		series.New(copay, series.Float, "copay"),
		series.New(coinsurance, series.Float, "coinsurance"),
		series.New(deductible, series.Float, "deductible"),
	)

	p := message.NewPrinter(language.AmericanEnglish)
	fmt.Fprintln(out, "patients:")
	for _, member := range uniqueSorted(members) {
		sub := df.Filter(dataframe.F{Colname: "member", Comparator: series.Eq, Comparando: member})
		p.Fprintf(out, "  %-12s claims %d  billed $%.2f  paid $%.2f  copay $%.2f  coinsurance $%.2f  deductible $%.2f\n",
			member, sub.Nrow(),
			sub.Col("billed").Sum(),
			sub.Col("paid").Sum(),
			sub.Col("copay").Sum(),
			sub.Col("coinsurance").Sum(),
			sub.Col("deductible").Sum())
	}
}

func uniqueSorted(vals []string) []string {
	seen := make(map[string]struct{}, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (r *Reporter) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return colorable.NewColorableStdout()
}
