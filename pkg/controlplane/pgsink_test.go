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
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestOpenPGAuditSink_CreatesAuditTableOnOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lumenflow_events").WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := newPGAuditSink(context.Background(), db)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAuditSink_Record_InsertsRowWithSerializedMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lumenflow_events").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := newPGAuditSink(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO lumenflow_events").
		WithArgs("WU-1", "claim", "", "", "backend", sqlmock.AnyArg(), `{"reason":"lane-open"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.Record(context.Background(), Event{
		WUID:      "WU-1",
		Type:      "claim",
		Lane:      "backend",
		Timestamp: time.Now(),
		Metadata:  map[string]string{"reason": "lane-open"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAuditSink_Record_PropagatesInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lumenflow_events").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := newPGAuditSink(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO lumenflow_events").WillReturnError(errors.New("connection reset"))

	err = s.Record(context.Background(), Event{WUID: "WU-2", Type: "claim"})
	require.Error(t, err)
}

func TestPGAuditSink_Close_ClosesUnderlyingDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lumenflow_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	s, err := newPGAuditSink(context.Background(), db)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}
