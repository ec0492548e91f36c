package saga

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the persisted state of one saga execution: enough to rebuild the
// call and skip every step that already committed.
type Snapshot struct {
	UID              string         `json:"uid"`
	Args             []any          `json:"args"`
	Kwargs           map[string]any `json:"kwargs"`
	SourceModule     string         `json:"source_module"`
	SourceEntryPoint string         `json:"source_entry_point"`
	SourceFile       string         `json:"source_file"`
	Results          map[string]any `json:"results"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate checks the fields restore depends on.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if s.UID == "" {
		return fmt.Errorf("snapshot uid cannot be empty")
	}
	if s.SourceEntryPoint == "" {
		return fmt.Errorf("snapshot %s: source entry point cannot be empty", s.UID)
	}
	return nil
}

// Call returns the call arguments recorded in the snapshot.
func (s *Snapshot) Call() Args {
	return Args{Positional: s.Args, Named: s.Kwargs}.clone()
}

// SerializeSnapshot serializes a snapshot to JSON.
func SerializeSnapshot(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serialize snapshot: %w", err)
	}
	return data, nil
}

// DeserializeSnapshot decodes snapshot JSON.
func DeserializeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("deserialize snapshot: %w", err)
	}
	if s.Results == nil {
		s.Results = map[string]any{}
	}
	return &s, nil
}

func copyResultMap(source map[string]any) map[string]any {
	if len(source) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(source))
	for k, v := range source {
		copied[k] = v
	}
	return copied
}
