package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
rate = 100.0
report_interval = 15
drain_deadline = "30s"

[[payers]]
id = "P1"
min_delay = "10ms"
max_delay = "20ms"
`

func TestLoadEmptyPathReturnsZeroValue(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, File{}, f)
}

func TestLoadDecodesPayerRoster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claimflow.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100.0, f.Rate)
	assert.Equal(t, 15, f.ReportInterval)
	require.Len(t, f.Payers, 1)
	assert.Equal(t, "P1", f.Payers[0].ID)
	assert.Equal(t, "10ms", f.Payers[0].MinDelay)
}
