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

package memory

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

// Store is the append-only node and relationship log for one
// workspace, backed by "memory/memory.jsonl" and
// "memory/relationships.jsonl".
type Store struct {
	nodesPath         string
	relationshipsPath string
	indexPath         string
	mu                sync.RWMutex

	nodes         []*Node
	byID          map[string]*Node
	byWU          map[string][]*Node
	byType        map[string][]*Node
	byLifecycle   map[Lifecycle][]*Node
	relationships []Relationship
	loaded        bool
	sqlIndex      *SQLIndex
}

// NewStore returns a Store backed by the given directory's
// memory.jsonl and relationships.jsonl files, plus an "index.sqlite3"
// secondary index opened lazily on first Load/Append (spec.md §4.6;
// see SPEC_FULL.md Part C for the SQLite-backed-index rationale).
func NewStore(dir string) *Store {
	return &Store{
		nodesPath:         filepath.Join(dir, "memory.jsonl"),
		relationshipsPath: filepath.Join(dir, "relationships.jsonl"),
		indexPath:         filepath.Join(dir, "index.sqlite3"),
	}
}

// Append writes a new node and indexes it in-memory.
func (s *Store) Append(n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return err
	}
	if n.BaseWeight == 0 {
		n.BaseWeight = 1.0
	}
	if n.LastAccess.IsZero() {
		n.LastAccess = n.CreatedAt
	}

	if err := appendJSONLine(s.nodesPath, n); err != nil {
		return err
	}
	s.index(n)
	s.refreshIndexLocked()
	return nil
}

// AppendRelationship writes a new relationship edge.
func (s *Store) AppendRelationship(r Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	if err := appendJSONLine(s.relationshipsPath, r); err != nil {
		return err
	}
	s.relationships = append(s.relationships, r)
	return nil
}

func (s *Store) index(n Node) {
	stored := &n
	s.nodes = append(s.nodes, stored)
	s.byID[n.ID] = stored
	if n.WUID != "" {
		s.byWU[n.WUID] = append(s.byWU[n.WUID], stored)
	}
	s.byType[n.Type] = append(s.byType[n.Type], stored)
	s.byLifecycle[n.Lifecycle] = append(s.byLifecycle[n.Lifecycle], stored)
}

func appendJSONLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &lferrors.IOError{Path: filepath.Dir(path), Op: "mkdir", Err: err}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &lferrors.IOError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	line, err := json.Marshal(v)
	if err != nil {
		return &lferrors.IOError{Path: path, Op: "marshal", Err: err}
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return &lferrors.IOError{Path: path, Op: "write", Err: err}
	}
	return f.Sync()
}

// Load reads both backing files into memory, building the by-id,
// by-wu, by-type and by-lifecycle indices. It is idempotent and
// cheap to call repeatedly; callers that only read should call Load
// once up front.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.byID = make(map[string]*Node)
	s.byWU = make(map[string][]*Node)
	s.byType = make(map[string][]*Node)
	s.byLifecycle = make(map[Lifecycle][]*Node)

	nodes, err := readJSONL[Node](s.nodesPath)
	if err != nil {
		return err
	}
	s.nodes = make([]*Node, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		s.nodes[i] = n
		if n.BaseWeight == 0 {
			n.BaseWeight = 1.0
		}
		if n.LastAccess.IsZero() {
			n.LastAccess = n.CreatedAt
		}
		s.byID[n.ID] = n
		if n.WUID != "" {
			s.byWU[n.WUID] = append(s.byWU[n.WUID], n)
		}
		s.byType[n.Type] = append(s.byType[n.Type], n)
		s.byLifecycle[n.Lifecycle] = append(s.byLifecycle[n.Lifecycle], n)
	}

	rels, err := readJSONL[Relationship](s.relationshipsPath)
	if err != nil {
		return err
	}
	s.relationships = rels

	s.loaded = true
	s.refreshIndexLocked()
	return nil
}

// refreshIndexLocked opens the SQLite secondary index on first use
// and rebuilds it from s.nodes. Both the open and the rebuild are
// best-effort: a SQLite failure degrades to SearchContent's linear
// scan fallback rather than failing the caller's Load/Append, per
// spec.md §7 "External" (degrades to skipped with a recorded reason).
// Callers must already hold s.mu for writing.
func (s *Store) refreshIndexLocked() {
	if s.sqlIndex == nil {
		idx, err := OpenSQLIndex(s.indexPath)
		if err != nil {
			slog.Warn("memory: sqlite index unavailable, content search will use a linear scan", "path", s.indexPath, "error", err)
			return
		}
		s.sqlIndex = idx
	}
	if err := s.sqlIndex.Rebuild(s.nodes); err != nil {
		slog.Warn("memory: failed to rebuild sqlite index", "error", err)
	}
}

// SearchContent returns node ids whose content contains substr,
// ordered by created_at DESC. It prefers the SQLite secondary index
// when available and falls back to a linear scan over the in-memory
// nodes otherwise, so callers never need to know which path served
// the query.
func (s *Store) SearchContent(substr string) ([]string, error) {
	s.mu.RLock()
	idx := s.sqlIndex
	s.mu.RUnlock()
	if idx != nil {
		if ids, err := idx.SearchContent(substr); err == nil {
			return ids, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, n := range s.nodes {
		if strings.Contains(n.Content, substr) {
			ids = append(ids, n.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.byID[ids[i]].CreatedAt.After(s.byID[ids[j]].CreatedAt)
	})
	return ids, nil
}

func readJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &lferrors.IOError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []T
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, &lferrors.ParseError{Path: path, Line: lineNo, Err: err}
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, &lferrors.IOError{Path: path, Op: "scan", Err: err}
	}
	return out, nil
}

// ByID returns the node with the given id, or nil.
func (s *Store) ByID(id string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// ByWU returns all nodes scoped to wuID.
func (s *Store) ByWU(wuID string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Node(nil), s.byWU[wuID]...)
}

// ByLifecycle returns all nodes with the given lifecycle.
func (s *Store) ByLifecycle(l Lifecycle) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Node(nil), s.byLifecycle[l]...)
}

// ByType returns all nodes with the given type.
func (s *Store) ByType(t string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Node(nil), s.byType[t]...)
}

// Relationships returns every recorded relationship edge.
func (s *Store) Relationships() []Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Relationship(nil), s.relationships...)
}

// Touch records a best-effort access event for decay tracking. A
// failure here must never fail the caller's primary operation
// (spec.md §4.6 "best-effort").
func (s *Store) Touch(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[id]; ok {
		n.LastAccess = at
	}
}
