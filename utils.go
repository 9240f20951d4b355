package nbat

import (
	"fmt"
	"time"

	"github.com/notebook-infra/nb-acceptor/types"
)

// getResultString returns a colored string representing the notebook result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
