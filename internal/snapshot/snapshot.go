// Package snapshot is the persisted form of one authoring session: header,
// dials and pipeline in a single JSON document.
package snapshot

import (
	"bytes"
	"encoding/json"
	"time"

	"forge/internal/apperr"
	"forge/internal/dials"
	"forge/internal/pipeline"
	"forge/internal/session"

	"gopkg.in/yaml.v3"
)

// Version is written into every snapshot. Documents without a version are
// treated as legacy and migrated on load.
const Version = 2

// Snapshot 会话快照：会话头、旋钮与流水线状态
// Snapshot flattens the session header and pipeline state next to a nested
// dials object. Confirmed-id sets serialize as ordered arrays.
type Snapshot struct {
	Version int `json:"version"`
	session.Session
	Dials dials.Set `json:"dials"`
	pipeline.State
	SavedAt time.Time `json:"savedAt,omitzero"`
}

// New builds a snapshot of the given parts.
func New(s session.Session, d dials.Set, st pipeline.State) Snapshot {
	return Snapshot{Version: Version, Session: s, Dials: d, State: st}
}

// Encode writes the snapshot as JSON.
func Encode(s Snapshot) ([]byte, error) {
	s.Version = Version
	data, err := json.Marshal(s)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "encode snapshot", err)
	}
	return data, nil
}

// Decode reads a snapshot and repairs it. Legacy layouts are accepted: dial
// fields at the top level instead of under "dials", and "currentStage" in
// place of "stage". Dial values migrate through dials.Set; confirmations
// pointing at missing entities are dropped.
func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, apperr.Wrap(apperr.KindPersistence, "decode snapshot", err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Snapshot{}, apperr.Wrap(apperr.KindPersistence, "decode snapshot", err)
	}

	if _, ok := probe["dials"]; !ok {
		if err := json.Unmarshal(data, &snap.Dials); err != nil {
			return Snapshot{}, apperr.Wrap(apperr.KindPersistence, "decode legacy dials", err)
		}
	}
	if snap.CurrentStage == "" {
		if raw, ok := probe["currentStage"]; ok {
			var name string
			if json.Unmarshal(raw, &name) == nil {
				snap.CurrentStage = session.Stage(name)
			}
		}
	}
	if snap.CurrentStage != "" {
		if _, err := session.ParseStage(string(snap.CurrentStage)); err != nil {
			snap.CurrentStage = session.StageDialTuning
		}
	}

	snap.Version = Version
	snap.Session = snap.Session.Normalize()
	snap.State = snap.State.Normalize()
	return snap, nil
}

// YAML renders the snapshot as block-style YAML with the JSON field names and
// order.
func YAML(s Snapshot) ([]byte, error) {
	data, err := Encode(s)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "convert snapshot", err)
	}
	blockStyle(&node)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "encode yaml", err)
	}
	if err := enc.Close(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "encode yaml", err)
	}
	return buf.Bytes(), nil
}

// blockStyle clears the flow style JSON input leaves on every node. Empty
// collections stay flow so they print as [] and {}.
func blockStyle(n *yaml.Node) {
	if len(n.Content) > 0 {
		n.Style &^= yaml.FlowStyle
	}
	if n.Kind == yaml.ScalarNode {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
