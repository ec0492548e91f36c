// Package models defines the request and response bodies of the admin API.
package models

import (
	"time"

	"github.com/orsa-go/orsa/pkg/saga"
)

// SagaSubmitRequest starts a registered declaration.
type SagaSubmitRequest struct {
	Declaration string         `json:"declaration" validate:"required,max=200"`
	UID         string         `json:"uid,omitempty" validate:"omitempty,max=128,excludesall=/ "`
	Args        []any          `json:"args,omitempty"`
	Kwargs      map[string]any `json:"kwargs,omitempty"`
}

// SagaSubmitResponse is returned when a saga is accepted.
type SagaSubmitResponse struct {
	UID         string `json:"uid"`
	Declaration string `json:"declaration"`
	Task        string `json:"task"`
}

// FailureInfo describes the step that aborted a saga.
type FailureInfo struct {
	Step     string `json:"step"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// SagaStatusResponse describes one saga instance. Live instances come from the
// manager; Persisted instances only exist as a stored snapshot.
type SagaStatusResponse struct {
	UID            string         `json:"uid"`
	Name           string         `json:"name"`
	EntryPoint     string         `json:"entry_point"`
	State          string         `json:"state"`
	Persisted      bool           `json:"persisted"`
	Restored       bool           `json:"restored,omitempty"`
	Steps          []string       `json:"steps,omitempty"`
	CurrentStep    string         `json:"current_step,omitempty"`
	Results        map[string]any `json:"results"`
	Failure        *FailureInfo   `json:"failure,omitempty"`
	RollbackErrors []string       `json:"rollback_errors,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
}

// SagaSummary is one row in list response.
type SagaSummary struct {
	UID        string     `json:"uid"`
	Name       string     `json:"name"`
	State      string     `json:"state"`
	Committed  int        `json:"committed"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SagaListResponse is paginated list of saga summaries.
type SagaListResponse struct {
	Items  []SagaSummary `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// SnapshotListResponse lists persisted snapshots.
type SnapshotListResponse struct {
	Items []*saga.Snapshot `json:"items"`
	Total int              `json:"total"`
}

// SagaActionResponse is returned by the restore operation.
type SagaActionResponse struct {
	UID  string `json:"uid"`
	Task string `json:"task"`
}

// DeclarationListResponse lists the registered declaration keys.
type DeclarationListResponse struct {
	Items []string `json:"items"`
}

// Summarize converts an engine into a list row.
func Summarize(e *saga.Engine) SagaSummary {
	return SagaSummary{
		UID:        e.UID(),
		Name:       e.Name(),
		State:      string(e.State()),
		Committed:  len(e.Results()),
		StartedAt:  timePtr(e.StartedAt()),
		FinishedAt: timePtr(e.FinishedAt()),
	}
}

// StatusFromEngine describes a live engine.
func StatusFromEngine(e *saga.Engine) SagaStatusResponse {
	resp := SagaStatusResponse{
		UID:        e.UID(),
		Name:       e.Name(),
		EntryPoint: e.Declaration().Source().EntryPoint,
		State:      string(e.State()),
		Restored:   e.Restored(),
		Steps:      e.Steps(),
		Results:    e.Results(),
		StartedAt:  timePtr(e.StartedAt()),
		FinishedAt: timePtr(e.FinishedAt()),
	}
	if i, ok := e.CurrentStep(); ok && i < len(resp.Steps) {
		resp.CurrentStep = resp.Steps[i]
	}
	if f := e.Failure(); f != nil {
		resp.Failure = &FailureInfo{Step: f.Step, Attempts: f.Attempts, Error: f.Err.Error()}
	}
	for _, rbErr := range e.RollbackErrors() {
		resp.RollbackErrors = append(resp.RollbackErrors, rbErr.Error())
	}
	return resp
}

// StatusFromSnapshot describes a saga known only from its stored snapshot.
func StatusFromSnapshot(s *saga.Snapshot) SagaStatusResponse {
	return SagaStatusResponse{
		UID:        s.UID,
		Name:       s.SourceEntryPoint,
		EntryPoint: s.SourceEntryPoint,
		State:      "persisted",
		Persisted:  true,
		Results:    s.Results,
		UpdatedAt:  timePtr(s.UpdatedAt),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
