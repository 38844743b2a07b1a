// Package snapshot persists the flow machine state after each transition so
// a restart can resume the session mid-flow.
package snapshot

import (
	"context"

	"finflow/internal/flow"
)

// Snapshot is the serialized machine state written after each transition.
type Snapshot struct {
	Screen  flow.Screen  `json:"screen"`
	Context flow.Context `json:"context"`
}

// Store persists snapshots keyed by user. Implementations must treat
// missing or corrupt data as absence, never as a startup failure.
type Store interface {
	Save(ctx context.Context, userID int64, snap Snapshot) error
	Load(ctx context.Context, userID int64) (Snapshot, bool, error)
	Delete(ctx context.Context, userID int64) error
}

// Scrub drops fields that must not survive a restart: in-progress numeric
// input resumes blank rather than leaking partial entry across sessions.
func Scrub(snap Snapshot) Snapshot {
	snap.Context.Tx.Amount = ""
	snap.Context.Tx.ConvertedAmount = ""
	snap.Context.Transfer.SourceAmount = ""
	snap.Context.Transfer.DestinationAmount = ""
	snap.Context.Transfer.SourceFee = ""
	snap.Context.Transfer.DestinationFee = ""
	return snap
}

// Sanitize validates a loaded snapshot for resume. Unknown screens fall
// back to home so a stale or hand-edited snapshot never wedges startup.
func Sanitize(snap Snapshot) Snapshot {
	if !flow.ValidScreen(snap.Screen) || snap.Screen == flow.ScreenInitializing {
		snap.Screen = flow.ScreenHome
	}
	return snap
}
