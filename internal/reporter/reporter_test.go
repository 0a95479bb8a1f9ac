package reporter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldReportNearTip(t *testing.T) {
	require.True(t, ShouldReport(990, 1000, 0))
	require.True(t, ShouldReport(1000, 1000, 0))
}

func TestShouldReportFarFromTipButDueByCount(t *testing.T) {
	require.True(t, ShouldReport(200, 1000, 100))
	require.False(t, ShouldReport(150, 1000, 100))
}

func TestShouldReportFarFromTipAndNotDue(t *testing.T) {
	require.False(t, ShouldReport(105, 10000, 100))
}
