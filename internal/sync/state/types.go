package state

import "time"

// Phase represents the current phase of a synchronization round
type Phase string

const (
	// PhaseSyncing means a round is in progress
	PhaseSyncing Phase = "Syncing"

	// PhaseComplete means the last round completed successfully
	PhaseComplete Phase = "Complete"

	// PhaseFailed means the last round failed
	PhaseFailed Phase = "Failed"
)

// Status is the persisted sync state of the mirror
type Status struct {
	// Cursor is the continuation cursor of the last committed round
	Cursor string `json:"cursor,omitempty"`

	// Phase represents the current synchronization phase
	Phase Phase `json:"phase,omitempty"`

	// Message provides additional information about the sync status
	Message string `json:"message,omitempty"`

	// LastAttempt is the timestamp of the last sync attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of sync attempts since last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful sync
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
}

// Clone returns a deep copy of the status
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	out := *s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		out.LastAttempt = &t
	}
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	return &out
}
