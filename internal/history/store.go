package history

import (
	"context"
	"time"

	"github.com/e-m-dev/remedy/internal/confidence"
)

// Store records remediation outcomes per pattern and serves the aggregate
// stats the confidence scorer consumes. Implementations must be safe for
// concurrent use.
type Store interface {
	// RecordOutcome counts one remediation run for a pattern+host as a
	// success or failure. Failures also mark the pattern+host as recently
	// failed for the configured window.
	RecordOutcome(ctx context.Context, patternID, host string, success bool) error

	// Stats returns the aggregate outcome stats for a pattern, with the
	// recent-failure flag scoped to the given host.
	Stats(ctx context.Context, patternID, host string) (confidence.Stats, error)

	Close() error
}

// DefaultRecentFailureWindow is how long a failed run penalises the same
// pattern+host when no window is configured.
const DefaultRecentFailureWindow = time.Hour
