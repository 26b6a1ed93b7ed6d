// Copyright 2025 LumenFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package eventlog implements the append-only JSONL event log that is
// the single source of truth for work-unit lifecycle state. Every
// append is a single atomic line write with fsync; replay folds the
// full file into a map of current WU states. A malformed line halts
// replay with a line-numbered error rather than being silently
// skipped.
package eventlog

import "time"

// Type enumerates the recognised event types.
type Type string

const (
	TypeClaim         Type = "claim"
	TypeComplete       Type = "complete"
	TypeBlock          Type = "block"
	TypeUnblock        Type = "unblock"
	TypeCancel         Type = "cancel"
	TypeCheckpoint     Type = "checkpoint"
	TypeBriefEvidence  Type = "brief_evidence"
)

// stateAffecting reports whether this event type changes a WU's
// projected status. checkpoint and brief_evidence are audit-only.
func (t Type) stateAffecting() bool {
	switch t {
	case TypeClaim, TypeComplete, TypeBlock, TypeUnblock, TypeCancel:
		return true
	default:
		return false
	}
}

// Event is a single immutable record appended to the log.
type Event struct {
	Type      Type           `json:"type"`
	WUID      string         `json:"wuId"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Status is the derived lifecycle status of a WU.
type Status string

const (
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// State is the materialised projection of a WU's event history.
type State struct {
	WUID           string
	Status         Status
	Actor          string
	LastEventAt    time.Time
	LastCheckpoint *Event
	BriefEvidence  *Event
	EventCount     int
}

// next computes the resulting status of applying event e to the
// current status. It does not validate legality — callers that need
// to reject illegal transitions should consult the wu package, which
// wraps the log with the full state machine and error kinds.
func next(current Status, e Type) Status {
	switch e {
	case TypeClaim:
		return StatusInProgress
	case TypeComplete:
		return StatusDone
	case TypeBlock:
		return StatusBlocked
	case TypeUnblock:
		return StatusInProgress
	case TypeCancel:
		return StatusCancelled
	default:
		return current
	}
}
