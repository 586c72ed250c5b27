package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CMSgov/claimflow/internal/claims"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "claims.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const validLine = `{"claim_id":"C1","insurance":{"payer_id":"P1","patient_member_id":"M1"},"patient":{"first_name":"Jane","last_name":"Doe"},"service_lines":[{"service_line_id":"sl1","units":2,"unit_charge_amount":50}]}`

func TestReaderEmitsParsedClaimsInOrder(t *testing.T) {
	path := writeTempFile(t, validLine+"\n"+
		`{"claim_id":"C2","insurance":{"payer_id":"P1","patient_member_id":"M2"},"patient":{},"service_lines":[{"service_line_id":"sl1","units":1,"unit_charge_amount":1}]}`+"\n")

	out := make(chan claims.Claim, 10)
	r := &Reader{Path: path, Out: out}
	require.NoError(t, r.Run(context.Background()))

	var got []string
	for c := range out {
		got = append(got, c.ClaimID)
	}
	assert.Equal(t, []string{"C1", "C2"}, got)
}

func TestReaderSkipsUnparseableLines(t *testing.T) {
	path := writeTempFile(t, "not json\n"+validLine+"\n"+`{"claim_id":""}`+"\n")

	out := make(chan claims.Claim, 10)
	r := &Reader{Path: path, Out: out}
	require.NoError(t, r.Run(context.Background()))

	var got []claims.Claim
	for c := range out {
		got = append(got, c)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "C1", got[0].ClaimID)
}

func TestReaderEmptyFileClosesWithNoClaims(t *testing.T) {
	path := writeTempFile(t, "")
	out := make(chan claims.Claim, 10)
	r := &Reader{Path: path, Out: out}
	require.NoError(t, r.Run(context.Background()))

	_, ok := <-out
	assert.False(t, ok)
}

func TestReaderMissingFileIsFatal(t *testing.T) {
	out := make(chan claims.Claim, 1)
	r := &Reader{Path: filepath.Join(t.TempDir(), "nope.ndjson"), Out: out}
	err := r.Run(context.Background())
	assert.Error(t, err)
}

func TestReaderStripsUTF8BOM(t *testing.T) {
	path := writeTempFile(t, "\xEF\xBB\xBF"+validLine+"\n")
	out := make(chan claims.Claim, 1)
	r := &Reader{Path: path, Out: out}
	require.NoError(t, r.Run(context.Background()))

	c, ok := <-out
	require.True(t, ok)
	assert.Equal(t, "C1", c.ClaimID)
}
