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

package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

// Log is an append-only JSONL event log guarded by a single writer
// mutex per process; concurrent readers (Replay) are never blocked by
// a writer, since Append only ever adds a line at the end of the file.
type Log struct {
	path string
	mu   sync.Mutex
}

// New returns a Log backed by the file at path. The file is not
// created until the first Append; a missing file reads as empty.
func New(path string) *Log {
	return &Log{path: path}
}

// Append validates e's schema and writes it as a single JSON line,
// fsyncing before returning so the append is durable.
func (l *Log) Append(e Event) error {
	if err := validate(e); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return &lferrors.IOError{Path: filepath.Dir(l.path), Op: "mkdir", Err: err}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &lferrors.IOError{Path: l.path, Op: "open", Err: err}
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return &lferrors.IOError{Path: l.path, Op: "marshal", Err: err}
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return &lferrors.IOError{Path: l.path, Op: "write", Err: err}
	}
	if err := f.Sync(); err != nil {
		return &lferrors.IOError{Path: l.path, Op: "fsync", Err: err}
	}

	slog.Debug("event appended", "type", e.Type, "wuId", e.WUID, "actor", e.Actor)
	return nil
}

func validate(e Event) error {
	if e.Type == "" {
		return &lferrors.ValidationError{Field: "type", Reason: "must not be empty"}
	}
	switch e.Type {
	case TypeClaim, TypeComplete, TypeBlock, TypeUnblock, TypeCancel, TypeCheckpoint, TypeBriefEvidence:
	default:
		return &lferrors.ValidationError{Field: "type", Reason: fmt.Sprintf("unrecognised event type %q", e.Type)}
	}
	if e.WUID == "" {
		return &lferrors.ValidationError{Field: "wuId", Reason: "must not be empty"}
	}
	if e.Timestamp.IsZero() {
		return &lferrors.ValidationError{Field: "timestamp", Reason: "must not be zero"}
	}
	return nil
}

// Replay reads the full log file and folds it into a map of WU id to
// materialised State. A missing file is treated as empty, not an
// error. A malformed line halts replay and returns a *lferrors.ParseError
// naming the offending line number; a schema violation on an
// otherwise well-formed line returns *lferrors.ValidationError.
//
// Replay is a pure function of the file's bytes: calling it twice
// without an intervening Append returns bit-identical results.
func (l *Log) Replay() (map[string]*State, error) {
	states := make(map[string]*State)

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return states, nil
		}
		return nil, &lferrors.IOError{Path: l.path, Op: "open", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, &lferrors.ParseError{Path: l.path, Line: lineNo, Err: err}
		}
		if err := validate(e); err != nil {
			return nil, err
		}

		fold(states, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, &lferrors.IOError{Path: l.path, Op: "scan", Err: err}
	}

	return states, nil
}

func fold(states map[string]*State, e Event) {
	st, ok := states[e.WUID]
	if !ok {
		st = &State{WUID: e.WUID, Status: StatusReady}
		states[e.WUID] = st
	}

	switch e.Type {
	case TypeCheckpoint:
		cp := e
		st.LastCheckpoint = &cp
	case TypeBriefEvidence:
		be := e
		st.BriefEvidence = &be
	default:
		if e.Type.stateAffecting() {
			st.Status = next(st.Status, e.Type)
			st.Actor = e.Actor
		}
	}

	st.LastEventAt = e.Timestamp
	st.EventCount++
}

// ReplayWU returns wuID's state, for callers that only need one WU.
// It replays the whole log and picks wuID out of the result; a WU with
// no events is reported as ready.
func (l *Log) ReplayWU(wuID string) (*State, error) {
	states, err := l.Replay()
	if err != nil {
		return nil, err
	}
	st, ok := states[wuID]
	if !ok {
		return &State{WUID: wuID, Status: StatusReady}, nil
	}
	return st, nil
}

// Events returns the raw, ordered event slice for wuID, used by
// callers (e.g. recovery classification) that need more than the
// folded State.
func (l *Log) Events(wuID string) ([]Event, error) {
	all, err := l.allEvents()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range all {
		if e.WUID == wuID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *Log) allEvents() ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &lferrors.IOError{Path: l.path, Op: "open", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []Event
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, &lferrors.ParseError{Path: l.path, Line: lineNo, Err: err}
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, &lferrors.IOError{Path: l.path, Op: "scan", Err: err}
	}
	return out, nil
}

// Checkpoint appends a non-state-affecting checkpoint event carrying
// a free-form note and optional progress/nextSteps payload fields.
func (l *Log) Checkpoint(wuID, actor, note string, progress, nextSteps string) error {
	payload := map[string]any{"note": note}
	if progress != "" {
		payload["progress"] = progress
	}
	if nextSteps != "" {
		payload["nextSteps"] = nextSteps
	}
	return l.Append(Event{
		Type:      TypeCheckpoint,
		WUID:      wuID,
		Timestamp: nowFunc(),
		Actor:     actor,
		Payload:   payload,
	})
}

// GetLatestBriefEvidence returns the last brief_evidence event
// recorded for wuID, or nil if none exists.
func (l *Log) GetLatestBriefEvidence(wuID string) (*Event, error) {
	st, err := l.ReplayWU(wuID)
	if err != nil {
		return nil, err
	}
	return st.BriefEvidence, nil
}

// nowFunc is a seam for deterministic tests; production code leaves it
// as time.Now.
var nowFunc = defaultNow
