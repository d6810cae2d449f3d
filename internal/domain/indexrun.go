package domain

import (
	"fmt"
	"time"
)

// RunScope represents how much of a source an index run covers
type RunScope string

const (
	RunScopeFull        RunScope = "full"
	RunScopeIncremental RunScope = "incremental"
)

// RunState represents the scheduler state machine position of a run.
// Failed and cancelled are terminal alongside completed.
type RunState string

const (
	RunStateIdle       RunState = "idle"
	RunStateDetecting  RunState = "detecting"
	RunStateExtracting RunState = "extracting"
	RunStateEmbedding  RunState = "embedding"
	RunStateStoring    RunState = "storing"
	RunStateCompleted  RunState = "completed"
	RunStateFailed     RunState = "failed"
	RunStateCancelled  RunState = "cancelled"
)

// RunError records one isolated failure inside a run. Provider names the
// component that failed; the fields mirror the API failure envelope.
type RunError struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	UnitRef  string `json:"unit_ref,omitempty"`
}

// IndexRun records one scheduler execution over a source
type IndexRun struct {
	RunID       string
	SourceID    string
	OrgID       string
	Scope       RunScope
	State       RunState
	Processed   int
	Stored      int
	Skipped     int
	Removed     int
	Errors      []RunError
	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewIndexRun creates a new IndexRun in the detecting state
func NewIndexRun(runID, sourceID, orgID string, scope RunScope, startedAt time.Time) *IndexRun {
	return &IndexRun{
		RunID:     runID,
		SourceID:  sourceID,
		OrgID:     orgID,
		Scope:     scope,
		State:     RunStateDetecting,
		StartedAt: startedAt,
	}
}

// RecordError appends an isolated failure to the run
func (r *IndexRun) RecordError(provider, code, message, unitRef string) {
	r.Errors = append(r.Errors, RunError{
		Provider: provider,
		Code:     code,
		Message:  message,
		UnitRef:  unitRef,
	})
}

// IsTerminal returns true once the run can no longer transition
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}

// ValidateIndexRun validates an IndexRun instance
func ValidateIndexRun(r *IndexRun) error {
	if r == nil {
		return fmt.Errorf("index run cannot be nil")
	}

	if r.RunID == "" {
		return fmt.Errorf("index run RunID is required")
	}

	if r.SourceID == "" {
		return fmt.Errorf("index run SourceID is required")
	}

	if r.OrgID == "" {
		return fmt.Errorf("index run OrgID is required")
	}

	if !isValidRunScope(r.Scope) {
		return fmt.Errorf("index run Scope is invalid: %s", r.Scope)
	}

	if !isValidRunState(r.State) {
		return fmt.Errorf("index run State is invalid: %s", r.State)
	}

	return nil
}

// isValidRunScope checks if a RunScope is valid
func isValidRunScope(s RunScope) bool {
	switch s {
	case RunScopeFull, RunScopeIncremental:
		return true
	}
	return false
}

// isValidRunState checks if a RunState is valid
func isValidRunState(s RunState) bool {
	switch s {
	case RunStateIdle, RunStateDetecting, RunStateExtracting, RunStateEmbedding,
		RunStateStoring, RunStateCompleted, RunStateFailed, RunStateCancelled:
		return true
	}
	return false
}
