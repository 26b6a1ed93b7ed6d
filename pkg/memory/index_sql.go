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
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

// SQLIndex is an optional queryable secondary index over the
// append-only memory log, mirroring the teacher's own SQL-backed
// lookups over an otherwise event-sourced log. It is rebuilt from the
// Store on open and is never the system of record — the JSONL files
// remain authoritative; SQLIndex only accelerates ad-hoc queries
// (e.g. full-text-ish LIKE search across node content) that would
// otherwise require a linear scan of every node held in memory.
type SQLIndex struct {
	db *sql.DB
}

// OpenSQLIndex opens (creating if necessary) a SQLite database at
// path and ensures the nodes table exists.
func OpenSQLIndex(path string) (*SQLIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &lferrors.IOError{Path: path, Op: "open-sqlite", Err: err}
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			lifecycle TEXT NOT NULL,
			content TEXT NOT NULL,
			wu_id TEXT,
			created_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, &lferrors.IOError{Path: path, Op: "create-table", Err: err}
	}
	return &SQLIndex{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *SQLIndex) Close() error { return idx.db.Close() }

// Rebuild truncates and repopulates the index from nodes, used after
// every Store.Load so the index never drifts from the authoritative
// JSONL files. It takes a plain node slice rather than a *Store so
// the caller controls locking — Store calls this while already
// holding its own write lock.
func (idx *SQLIndex) Rebuild(nodes []*Node) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return &lferrors.IOError{Path: "", Op: "begin-tx", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM nodes`); err != nil {
		return &lferrors.IOError{Path: "", Op: "truncate", Err: err}
	}

	stmt, err := tx.Prepare(`INSERT INTO nodes (id, type, lifecycle, content, wu_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &lferrors.IOError{Path: "", Op: "prepare", Err: err}
	}
	defer stmt.Close()

	for _, n := range nodes {
		if _, err := stmt.Exec(n.ID, n.Type, string(n.Lifecycle), n.Content, n.WUID, n.CreatedAt.Format("2006-01-02T15:04:05.000000000Z07:00")); err != nil {
			return &lferrors.IOError{Path: "", Op: "insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &lferrors.IOError{Path: "", Op: "commit", Err: err}
	}
	return nil
}

// SearchContent returns node ids whose content contains the given
// substring (a simple LIKE query), ordered by created_at DESC.
func (idx *SQLIndex) SearchContent(substr string) ([]string, error) {
	rows, err := idx.db.Query(`SELECT id FROM nodes WHERE content LIKE ? ORDER BY created_at DESC`, fmt.Sprintf("%%%s%%", substr))
	if err != nil {
		return nil, &lferrors.IOError{Path: "", Op: "query", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &lferrors.IOError{Path: "", Op: "scan", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
