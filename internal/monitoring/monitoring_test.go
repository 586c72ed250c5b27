package monitoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithoutLicenseKeyIsNoOp(t *testing.T) {
	m := New("claimflow", "")

	end := m.StartStageSegment(context.Background(), "pipeline", "reader")
	assert.NotNil(t, end)
	end()

	m.Shutdown(context.Background())
}

func TestNilMonitorSegmentEndIsSafe(t *testing.T) {
	var s *segment
	assert.NotPanics(t, func() { s.End() })
}
