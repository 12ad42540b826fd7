package sync

import (
	"context"
	"time"

	"github.com/lexiflow/lexisync/internal/auth"
)

// ChangeReader produces the change feed of one table.
type ChangeReader interface {
	// ReadChanges returns envelopes for records changed at or after since.
	//
	// A nil since returns a snapshot of every live record, reported as
	// ActionUpdate. Envelope order is unspecified.
	ReadChanges(ctx context.Context, since *time.Time) ([]ChangeEnvelope, error)
}

// ChangeApplier applies pushed envelopes to one table.
type ChangeApplier interface {
	// ApplyChanges applies each envelope independently, stamping audit
	// columns with the principal. Item failures are reported in the result;
	// the error return is reserved for failures of the whole call.
	ApplyChanges(ctx context.Context, batch []ChangeEnvelope, principal *auth.Principal) (*ApplyResult, error)
}

// Observer is notified after each successful pull or push.
// Implementations must not block.
type Observer interface {
	PullCompleted(ev PullEvent)
	PushCompleted(ev PushEvent)
}

// PullEvent describes a served pull.
type PullEvent struct {
	Table     string
	Principal string
	Since     *time.Time
	Count     int
	Duration  time.Duration
}

// PushEvent describes an applied push batch.
type PushEvent struct {
	Table     string
	Principal string
	BatchSize int
	Result    ApplyResult
	Duration  time.Duration
}

type nopObserver struct{}

func (nopObserver) PullCompleted(PullEvent) {}
func (nopObserver) PushCompleted(PushEvent) {}
