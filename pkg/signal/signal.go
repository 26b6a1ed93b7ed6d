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

// Package signal implements the file-backed per-workspace signal bus:
// a JSONL inbox of typed messages between agents and the orchestrator,
// with a debounced fsnotify watch mode for consumers that want to
// react to new signals as they arrive.
package signal

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

// Severity is a signal's urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Signal is a single typed message on the bus.
type Signal struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Payload   map[string]any `json:"payload,omitempty"`
	WUID      string         `json:"wuId,omitempty"`
	Lane      string         `json:"lane,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Read      bool           `json:"read,omitempty"`
}

// SpawnFailurePayload is the structured payload carried by a
// "spawn_failure" signal (spec.md §3, §4.5).
type SpawnFailurePayload struct {
	SpawnID          string `json:"spawn_id"`
	TargetWUID       string `json:"target_wu_id"`
	ParentWUID       string `json:"parent_wu_id"`
	RecoveryAction   string `json:"recovery_action"`
	RecoveryAttempts int    `json:"recovery_attempts"`
	LastCheckpoint   string `json:"last_checkpoint,omitempty"`
	SuggestedAction  string `json:"suggested_action"`
}

// Bus is the append-only signal inbox for one workspace.
type Bus struct {
	path string
	mu   sync.Mutex
}

// New returns a Bus backed by the signals JSONL file at path.
func New(path string) *Bus {
	return &Bus{path: path}
}

// CreateOptions configures a new signal.
type CreateOptions struct {
	Message  string
	Type     string
	Severity Severity
	Payload  map[string]any
	WUID     string
	Lane     string
}

// Create appends a new signal and returns its generated id.
func (b *Bus) Create(opts CreateOptions) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}

	sigType := opts.Type
	if sigType == "" {
		sigType = "message"
	}
	severity := opts.Severity
	if severity == "" {
		severity = SeverityInfo
	}

	payload := opts.Payload
	if opts.Message != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["message"] = opts.Message
	}

	sig := Signal{
		ID:        id,
		Type:      sigType,
		Severity:  severity,
		Payload:   payload,
		WUID:      opts.WUID,
		Lane:      opts.Lane,
		CreatedAt: time.Now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return "", &lferrors.IOError{Path: filepath.Dir(b.path), Op: "mkdir", Err: err}
	}
	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &lferrors.IOError{Path: b.path, Op: "open", Err: err}
	}
	defer f.Close()

	line, err := json.Marshal(sig)
	if err != nil {
		return "", &lferrors.IOError{Path: b.path, Op: "marshal", Err: err}
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return "", &lferrors.IOError{Path: b.path, Op: "write", Err: err}
	}
	return id, f.Sync()
}

// newID mints a "sig-XXXXXXXX" id from a fresh UUIDv4's leading four
// bytes.
func newID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", &lferrors.IOError{Path: "/dev/urandom", Op: "read", Err: err}
	}
	return "sig-" + hex.EncodeToString(u[:4]), nil
}

// LoadOptions filters Load's results.
type LoadOptions struct {
	UnreadOnly bool
	WUID       string
	Lane       string
	Since      time.Time
}

// Load reads and filters signals from the bus file.
func (b *Bus) Load(opts LoadOptions) ([]Signal, error) {
	all, err := b.all()
	if err != nil {
		return nil, err
	}

	var out []Signal
	for _, s := range all {
		if opts.UnreadOnly && s.Read {
			continue
		}
		if opts.WUID != "" && s.WUID != opts.WUID {
			continue
		}
		if opts.Lane != "" && s.Lane != opts.Lane {
			continue
		}
		if !opts.Since.IsZero() && s.CreatedAt.Before(opts.Since) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (b *Bus) all() ([]Signal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &lferrors.IOError{Path: b.path, Op: "open", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []Signal
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var s Signal
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, &lferrors.ParseError{Path: b.path, Line: lineNo, Err: err}
		}
		out = append(out, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, &lferrors.IOError{Path: b.path, Op: "scan", Err: err}
	}
	return out, nil
}

// MarkRead rewrites the bus file with the given ids marked read. It
// is a full rewrite (the file is small relative to the event log) and
// holds the same mutex as Create to stay consistent with concurrent
// appends.
func (b *Bus) MarkRead(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.allLocked()
	if err != nil {
		return err
	}

	var buf []byte
	for _, s := range all {
		if want[s.ID] {
			s.Read = true
		}
		line, err := json.Marshal(s)
		if err != nil {
			return &lferrors.IOError{Path: b.path, Op: "marshal", Err: err}
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return &lferrors.IOError{Path: tmp, Op: "write", Err: err}
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return &lferrors.IOError{Path: b.path, Op: "rename", Err: err}
	}
	return nil
}

func (b *Bus) allLocked() ([]Signal, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &lferrors.IOError{Path: b.path, Op: "open", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []Signal
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var s Signal
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, &lferrors.ParseError{Path: b.path, Line: lineNo, Err: fmt.Errorf("%w", err)}
		}
		out = append(out, s)
	}
	return out, scanner.Err()
}
