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

package controlplane

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PGAuditSink mirrors events into a Postgres table instead of (or in
// addition to) an HTTP endpoint, for control planes that prefer to
// query lifecycle history with SQL directly. Grounded on the
// teacher's pkg/config.DBPool single-connection-on-SQLite pattern,
// simplified here to a plain pooled *sql.DB since Postgres has no
// equivalent single-writer constraint.
type PGAuditSink struct {
	db *sql.DB
}

// OpenPGAuditSink opens a Postgres connection pool and ensures the
// audit table exists.
func OpenPGAuditSink(ctx context.Context, dsn string) (*PGAuditSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s, err := newPGAuditSink(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// newPGAuditSink wraps an already-open db in a PGAuditSink and runs
// the audit-table migration. Split out of OpenPGAuditSink so tests
// can exercise Record/migrate against a sqlmock-backed *sql.DB
// without a real Postgres connection.
func newPGAuditSink(ctx context.Context, db *sql.DB) (*PGAuditSink, error) {
	s := &PGAuditSink{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGAuditSink) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS lumenflow_events (
	id         BIGSERIAL PRIMARY KEY,
	wu_id      TEXT NOT NULL,
	type       TEXT NOT NULL,
	status     TEXT,
	actor      TEXT,
	lane       TEXT,
	occurred_at TIMESTAMPTZ NOT NULL,
	metadata   JSONB
)`)
	if err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// Record inserts ev as an audit row. Unlike Sink.Push, callers that
// opt into a Postgres sink want a real error on failure — it backs
// compliance queries, not a best-effort mirror.
func (s *PGAuditSink) Record(ctx context.Context, ev Event) error {
	metadata := "{}"
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO lumenflow_events (wu_id, type, status, actor, lane, occurred_at, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.WUID, ev.Type, ev.Status, ev.Actor, ev.Lane, ev.Timestamp, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PGAuditSink) Close() error {
	return s.db.Close()
}
