package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CMSgov/claimflow/internal/claims"
)

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "claims.ndjson")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const lineTemplate = `{"claim_id":"%s","insurance":{"payer_id":"%s","patient_member_id":"M1"},"patient":{"first_name":"Jane","last_name":"Doe"},"service_lines":[{"service_line_id":"sl1","units":1,"unit_charge_amount":100}]}`

func TestPipelineProcessesEveryClaimToClosure(t *testing.T) {
	path := writeInput(t,
		sprintfLine("C1", "P1"),
		sprintfLine("C2", "P1"),
		sprintfLine("C3", "unknown-payer"),
	)

	cfg := Config{
		InputPath: path,
		Rate:      1000,
		Payers: []PayerConfig{
			{ID: "P1", MinDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Concurrency: 4},
		},
		ReportInterval: time.Hour,
	}
	p := Build(cfg)

	// No timeout on this context: with ReportInterval set to an hour,
	// the only thing that can make Run return is the Reporter noticing
	// the four processing stages have finished on their own and
	// performing its final tick. A context.WithTimeout here would mask
	// a pipeline that never completes without an external cancellation.
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not complete on its own once every claim closed")
	}

	snapshot := p.Ledger.Snapshot()
	require.Len(t, snapshot, 3)
	for _, rec := range snapshot {
		assert.Equal(t, claims.Closed, rec.Status(), "claim %s should be closed", rec.ClaimID)
	}
}

func TestPipelineStopsOnContextCancellation(t *testing.T) {
	path := writeInput(t, sprintfLine("C1", "P1"))

	cfg := Config{
		InputPath: path,
		Rate:      1,
		Payers: []PayerConfig{
			{ID: "P1", MinDelay: time.Hour, MaxDelay: time.Hour, Concurrency: 1},
		},
		ReportInterval: time.Hour,
	}
	p := Build(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not honor cancellation")
	}
}

func sprintfLine(claimID, payerID string) string {
	return fmt.Sprintf(lineTemplate, claimID, payerID)
}
