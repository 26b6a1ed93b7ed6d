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

// Package wu implements the work-unit lifecycle state machine on top
// of pkg/eventlog: it validates transitions before they are appended
// (claim/complete/block/unblock/cancel), keeping the event log itself
// unopinionated about legality.
package wu

import (
	"fmt"
	"regexp"
	"time"

	"github.com/lumenflow/lumenflow/pkg/eventlog"
	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

// IDPattern matches a well-formed work unit identifier.
var IDPattern = regexp.MustCompile(`^WU-\d+$`)

// Type enumerates the WU's declared kind (docs-only WUs relax some
// completion policy gates).
type Type string

const (
	TypeFeature       Type = "feature"
	TypeBug           Type = "bug"
	TypeRefactor      Type = "refactor"
	TypeDocumentation Type = "documentation"
	TypeChore         Type = "chore"
)

// Priority is P0 (highest) through P3 (lowest).
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
)

// Tests groups test references declared by a WU's YAML.
type Tests struct {
	Unit        []string `yaml:"unit,omitempty" json:"unit,omitempty"`
	E2E         []string `yaml:"e2e,omitempty" json:"e2e,omitempty"`
	Integration []string `yaml:"integration,omitempty" json:"integration,omitempty"`
	Manual      []string `yaml:"manual,omitempty" json:"manual,omitempty"`
}

// Spec is the declarative intent carried in a WU's YAML file. It is
// authoritative for lane, tests and code paths; the event log is
// authoritative for status (see Engine.Status).
type Spec struct {
	ID          string            `yaml:"id" json:"id"`
	Title       string            `yaml:"title" json:"title"`
	Lane        string            `yaml:"lane" json:"lane"`
	Type        Type              `yaml:"type" json:"type"`
	Status      eventlog.Status   `yaml:"status" json:"status"`
	Priority    Priority          `yaml:"priority" json:"priority"`
	Created     string            `yaml:"created" json:"created"`
	CodePaths   []string          `yaml:"code_paths,omitempty" json:"code_paths,omitempty"`
	Tests       Tests             `yaml:"tests,omitempty" json:"tests,omitempty"`
	Initiative  string            `yaml:"initiative,omitempty" json:"initiative,omitempty"`
	Exposure    string            `yaml:"exposure,omitempty" json:"exposure,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	DocsOnly    bool              `yaml:"docs_only,omitempty" json:"docs_only,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Engine applies transitions to the event log, rejecting any that
// violate the lifecycle state machine before anything is appended.
type Engine struct {
	log *eventlog.Log
}

// NewEngine returns an Engine over the given log.
func NewEngine(log *eventlog.Log) *Engine {
	return &Engine{log: log}
}

// Status returns the current materialised status for wuID, or
// StatusReady if no events exist yet — "ready" is derived by absence,
// never written by the engine.
func (e *Engine) Status(wuID string) (eventlog.Status, error) {
	st, err := e.log.ReplayWU(wuID)
	if err != nil {
		return "", err
	}
	return st.Status, nil
}

// legalTransitions enumerates the state machine edges from spec.md §4.1.
var legalTransitions = map[eventlog.Status]map[eventlog.Type]bool{
	eventlog.StatusReady: {
		eventlog.TypeClaim:  true,
		eventlog.TypeCancel: true,
	},
	eventlog.StatusInProgress: {
		eventlog.TypeComplete: true,
		eventlog.TypeBlock:    true,
		eventlog.TypeCancel:   true,
	},
	eventlog.StatusBlocked: {
		eventlog.TypeUnblock: true,
		eventlog.TypeCancel:  true,
	},
}

// Claim appends a claim event, or is a no-op if the WU is already
// in_progress under the same actor. Claiming an in_progress WU under
// a different actor, or a done/cancelled WU, is a *lferrors.StateError.
func (e *Engine) Claim(wuID, actor string) error {
	if !IDPattern.MatchString(wuID) {
		return &lferrors.ValidationError{Field: "wuId", Reason: fmt.Sprintf("%q does not match WU-<digits>", wuID)}
	}

	st, err := e.log.ReplayWU(wuID)
	if err != nil {
		return err
	}

	if st.Status == eventlog.StatusInProgress {
		if st.Actor == actor {
			return nil
		}
		return &lferrors.StateError{ID: wuID, From: string(st.Status), To: string(eventlog.TypeClaim)}
	}

	if !legalTransitions[st.Status][eventlog.TypeClaim] {
		return &lferrors.StateError{ID: wuID, From: string(st.Status), To: string(eventlog.TypeClaim)}
	}

	return e.log.Append(eventlog.Event{
		Type:      eventlog.TypeClaim,
		WUID:      wuID,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
	})
}

// transition appends t if legal from the WU's current status.
func (e *Engine) transition(wuID, actor string, t eventlog.Type, payload map[string]any) error {
	st, err := e.log.ReplayWU(wuID)
	if err != nil {
		return err
	}
	if !legalTransitions[st.Status][t] {
		return &lferrors.StateError{ID: wuID, From: string(st.Status), To: string(t)}
	}
	return e.log.Append(eventlog.Event{
		Type:      t,
		WUID:      wuID,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Payload:   payload,
	})
}

// Complete appends a complete event. Callers are expected to have run
// the completion policy pipeline (pkg/policy) first; the engine itself
// only enforces the lifecycle state machine, not policy gates.
func (e *Engine) Complete(wuID, actor string) error {
	return e.transition(wuID, actor, eventlog.TypeComplete, nil)
}

// Block appends a block event with a reason.
func (e *Engine) Block(wuID, actor, reason string) error {
	var payload map[string]any
	if reason != "" {
		payload = map[string]any{"reason": reason}
	}
	return e.transition(wuID, actor, eventlog.TypeBlock, payload)
}

// Unblock appends an unblock event, returning the WU to in_progress.
func (e *Engine) Unblock(wuID, actor string) error {
	return e.transition(wuID, actor, eventlog.TypeUnblock, nil)
}

// Cancel appends a cancel event from any non-terminal status.
func (e *Engine) Cancel(wuID, actor, reason string) error {
	var payload map[string]any
	if reason != "" {
		payload = map[string]any{"reason": reason}
	}
	return e.transition(wuID, actor, eventlog.TypeCancel, payload)
}

// Checkpoint records a non-state-affecting progress note.
func (e *Engine) Checkpoint(wuID, actor, note, progress, nextSteps string) error {
	return e.log.Checkpoint(wuID, actor, note, progress, nextSteps)
}

// BriefEvidence appends a brief_evidence audit event.
func (e *Engine) BriefEvidence(wuID, actor string, payload map[string]any) error {
	return e.log.Append(eventlog.Event{
		Type:      eventlog.TypeBriefEvidence,
		WUID:      wuID,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Payload:   payload,
	})
}
