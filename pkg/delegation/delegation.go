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

// Package delegation implements the event-sourced parent->child spawn
// registry: recording new delegations, closing the pickup handshake
// when the target WU is claimed, and tracking status transitions
// through to completion or escalation.
package delegation

import (
	"bufio"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

// IDPattern matches a well-formed delegation id. Historic records may
// carry the legacy "spawn-" prefix; new ids always use "dlg-".
var IDPattern = regexp.MustCompile(`^(dlg|spawn)-[0-9a-f]{4}$`)

// Status is a delegation's lifecycle status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusTimeout   Status = "timeout"
	StatusCrashed   Status = "crashed"
	StatusEscalated Status = "escalated"
)

// Intent distinguishes an explicit delegation from a historic spawn
// record migrated forward.
type Intent string

const (
	IntentDelegation Intent = "delegation"
	IntentLegacySpawn Intent = "legacy-spawn"
)

// eventKind is the registry's own internal event vocabulary, distinct
// from pkg/eventlog's WU lifecycle events.
type eventKind string

const (
	eventRecord eventKind = "record"
	eventPickup eventKind = "pickup"
	eventUpdate eventKind = "update"
)

type registryEvent struct {
	Kind        eventKind `json:"kind"`
	ID          string    `json:"id"`
	ParentWUID  string    `json:"parentWuId,omitempty"`
	TargetWUID  string    `json:"targetWuId,omitempty"`
	Lane        string    `json:"lane,omitempty"`
	Intent      Intent    `json:"intent,omitempty"`
	Status      Status    `json:"status,omitempty"`
	PickedUpAt  *time.Time `json:"pickedUpAt,omitempty"`
	PickedUpBy  string    `json:"pickedUpBy,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Record is the materialised view of a delegation after folding all
// of its registry events.
type Record struct {
	ID          string
	ParentWUID  string
	TargetWUID  string
	Lane        string
	Intent      Intent
	Status      Status
	DelegatedAt time.Time
	CompletedAt *time.Time
	PickedUpAt  *time.Time
	PickedUpBy  string
}

// Registry is the event-sourced delegation store, backed by
// ".lumenflow/state/delegation-registry.jsonl" with a one-time
// migration from the legacy "spawn-registry.jsonl" filename if the
// new file does not yet exist.
type Registry struct {
	path string
	mu   sync.Mutex
}

// New returns a Registry backed by path (the current on-disk name).
// It never reads the legacy file itself; call Migrate to copy a
// legacy registry forward. All writes target path.
func New(path string) *Registry {
	return &Registry{path: path}
}

// Migrate copies legacyPath's contents into path if path does not
// exist and legacyPath does. It is idempotent and safe to call on
// every startup.
func (r *Registry) Migrate(legacyPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.path); err == nil {
		return nil
	}
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &lferrors.IOError{Path: legacyPath, Op: "read", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return &lferrors.IOError{Path: filepath.Dir(r.path), Op: "mkdir", Err: err}
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return &lferrors.IOError{Path: r.path, Op: "write", Err: err}
	}
	slog.Info("migrated legacy spawn registry", "from", legacyPath, "to", r.path)
	return nil
}

// NewID generates a delegation identifier by hashing
// parentWUID || targetWUID || unixMillis || 4 random bytes and
// truncating the SHA-256 digest's hex encoding to 4 characters,
// prefixed "dlg-". existing is consulted to regenerate on collision.
func NewID(parentWUID, targetWUID string, existing map[string]bool) (string, error) {
	for attempt := 0; attempt < 8; attempt++ {
		randBytes := make([]byte, 4)
		if _, err := rand.Read(randBytes); err != nil {
			return "", &lferrors.IOError{Path: "/dev/urandom", Op: "read", Err: err}
		}
		seed := fmt.Sprintf("%s|%s|%d|%s", parentWUID, targetWUID, time.Now().UnixMilli(), hex.EncodeToString(randBytes))
		sum := sha256.Sum256([]byte(seed))
		id := "dlg-" + hex.EncodeToString(sum[:])[:4]
		if existing == nil || !existing[id] {
			return id, nil
		}
	}
	return "", &lferrors.IOError{Path: "", Op: "generate-id", Err: fmt.Errorf("exhausted retries generating a unique delegation id")}
}

func (r *Registry) append(ev registryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return &lferrors.IOError{Path: filepath.Dir(r.path), Op: "mkdir", Err: err}
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &lferrors.IOError{Path: r.path, Op: "open", Err: err}
	}
	defer f.Close()

	line, err := json.Marshal(ev)
	if err != nil {
		return &lferrors.IOError{Path: r.path, Op: "marshal", Err: err}
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return &lferrors.IOError{Path: r.path, Op: "write", Err: err}
	}
	return f.Sync()
}

// Record appends a new delegation in pending status and returns its
// generated id.
func (r *Registry) Record(parentWUID, targetWUID, lane string, intent Intent) (string, error) {
	existing, err := r.idSet()
	if err != nil {
		return "", err
	}
	id, err := NewID(parentWUID, targetWUID, existing)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	if err := r.append(registryEvent{
		Kind:       eventRecord,
		ID:         id,
		ParentWUID: parentWUID,
		TargetWUID: targetWUID,
		Lane:       lane,
		Intent:     intent,
		Status:     StatusPending,
		Timestamp:  now,
	}); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Registry) idSet() (map[string]bool, error) {
	all, err := r.all()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(all))
	for id := range all {
		ids[id] = true
	}
	return ids, nil
}

// Pickup records that the delegation id was picked up by actor,
// closing its handshake. It fails only for an unknown id; the
// delegation's current status is not checked.
func (r *Registry) Pickup(id, actor string) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return &lferrors.ValidationError{Field: "id", Reason: fmt.Sprintf("no delegation %q", id)}
	}
	now := time.Now().UTC()
	return r.append(registryEvent{
		Kind:       eventPickup,
		ID:         id,
		PickedUpAt: &now,
		PickedUpBy: actor,
		Timestamp:  now,
	})
}

// Update appends a status transition. Escalation is terminal: once a
// delegation's status is StatusEscalated, further Update calls to
// StatusEscalated fail (idempotent-per-status, per spec.md §4.5).
func (r *Registry) Update(id string, status Status) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return &lferrors.ValidationError{Field: "id", Reason: fmt.Sprintf("no delegation %q", id)}
	}
	if rec.Status == StatusEscalated {
		return &lferrors.StateError{ID: id, From: string(StatusEscalated), To: string(status)}
	}

	now := time.Now().UTC()
	ev := registryEvent{Kind: eventUpdate, ID: id, Status: status, Timestamp: now}
	if status == StatusCompleted {
		ev.CompletedAt = &now
	}
	return r.append(ev)
}

// Get returns the materialised Record for id, or nil if unknown.
func (r *Registry) Get(id string) (*Record, error) {
	all, err := r.all()
	if err != nil {
		return nil, err
	}
	return all[id], nil
}

// All returns every delegation record, keyed by id.
func (r *Registry) All() (map[string]*Record, error) {
	return r.all()
}

// ForTarget returns all delegations targeting targetWUID, most recent
// delegatedAt first.
func (r *Registry) ForTarget(targetWUID string) ([]*Record, error) {
	all, err := r.all()
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, rec := range all {
		if rec.TargetWUID == targetWUID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DelegatedAt.After(out[j].DelegatedAt) })
	return out, nil
}

func (r *Registry) all() (map[string]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make(map[string]*Record)

	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return nil, &lferrors.IOError{Path: r.path, Op: "open", Err: err}
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
		var ev registryEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, &lferrors.ParseError{Path: r.path, Line: lineNo, Err: err}
		}
		if !IDPattern.MatchString(ev.ID) {
			return nil, &lferrors.ValidationError{Field: "id", Reason: fmt.Sprintf("%q does not match dlg-[0-9a-f]{4}", ev.ID)}
		}

		rec, ok := records[ev.ID]
		if !ok {
			rec = &Record{ID: ev.ID}
			records[ev.ID] = rec
		}

		switch ev.Kind {
		case eventRecord:
			rec.ParentWUID = ev.ParentWUID
			rec.TargetWUID = ev.TargetWUID
			rec.Lane = ev.Lane
			rec.Intent = ev.Intent
			rec.Status = ev.Status
			rec.DelegatedAt = ev.Timestamp
		case eventPickup:
			rec.PickedUpAt = ev.PickedUpAt
			rec.PickedUpBy = ev.PickedUpBy
		case eventUpdate:
			rec.Status = ev.Status
			if ev.CompletedAt != nil {
				rec.CompletedAt = ev.CompletedAt
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &lferrors.IOError{Path: r.path, Op: "scan", Err: err}
	}

	return records, nil
}
