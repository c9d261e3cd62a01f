package checkpoint

import (
	"time"

	"github.com/danielpatrickdp/ska-stream/internal/learner"
)

// #region record
// Record is one durable snapshot of learner state plus the last processed
// sequence index. Resuming restores state only; entropy history is not
// replayed.
type Record struct {
	VersionID string
	RunID     string
	Seq       uint64 // last processed sequence index
	State     learner.State
	CreatedAt time.Time
}

// #endregion record
