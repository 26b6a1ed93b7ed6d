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

package delegation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "delegation-registry.jsonl"))
}

func TestNewID_MatchesPattern(t *testing.T) {
	id, err := NewID("WU-1", "WU-2", nil)
	require.NoError(t, err)
	assert.Regexp(t, IDPattern, id)
	assert.True(t, IDPattern.MatchString(id))
}

func TestNewID_RegeneratesOnCollision(t *testing.T) {
	first, err := NewID("WU-1", "WU-2", nil)
	require.NoError(t, err)

	existing := map[string]bool{first: true}
	second, err := NewID("WU-1", "WU-2", existing)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestRegistry_RecordAndGet(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Record("WU-1", "WU-2", "backend", IntentDelegation)
	require.NoError(t, err)

	rec, err := r.Get(id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "WU-1", rec.ParentWUID)
	assert.Equal(t, "WU-2", rec.TargetWUID)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Nil(t, rec.PickedUpAt)
}

func TestRegistry_PickupSetsEvidence(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Record("WU-1", "WU-2", "backend", IntentDelegation)
	require.NoError(t, err)

	require.NoError(t, r.Pickup(id, "spawned-agent"))

	rec, err := r.Get(id)
	require.NoError(t, err)
	require.NotNil(t, rec.PickedUpAt)
	assert.Equal(t, "spawned-agent", rec.PickedUpBy)
}

func TestRegistry_UpdateToCompleted(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Record("WU-1", "WU-2", "backend", IntentDelegation)
	require.NoError(t, err)

	require.NoError(t, r.Update(id, StatusCompleted))

	rec, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	require.NotNil(t, rec.CompletedAt)
}

func TestRegistry_EscalationIsTerminal(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Record("WU-1", "WU-2", "backend", IntentDelegation)
	require.NoError(t, err)

	require.NoError(t, r.Update(id, StatusEscalated))

	err = r.Update(id, StatusCompleted)
	require.Error(t, err)
	assert.Equal(t, lferrors.KindState, lferrors.KindOf(err))
}

func TestRegistry_ForTarget(t *testing.T) {
	r := newTestRegistry(t)
	id1, err := r.Record("WU-1", "WU-9", "backend", IntentDelegation)
	require.NoError(t, err)
	_, err = r.Record("WU-2", "WU-8", "backend", IntentDelegation)
	require.NoError(t, err)

	recs, err := r.ForTarget("WU-9")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id1, recs[0].ID)
}

func TestRegistry_UnknownIDIsValidationError(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Update("dlg-ffff", StatusCompleted)
	require.Error(t, err)
	assert.Equal(t, lferrors.KindValidation, lferrors.KindOf(err))
}

func TestRegistry_Migrate_CopiesLegacyFileOnce(t *testing.T) {
	dir := t.TempDir()
	legacyPath := filepath.Join(dir, "spawn-registry.jsonl")
	currentPath := filepath.Join(dir, "delegation-registry.jsonl")

	legacyLine := `{"kind":"record","id":"spawn-a1b2","parentWuId":"WU-1","targetWuId":"WU-2","status":"pending","timestamp":"2024-01-01T00:00:00Z"}` + "\n"
	require.NoError(t, os.WriteFile(legacyPath, []byte(legacyLine), 0o644))

	r := New(currentPath)
	require.NoError(t, r.Migrate(legacyPath))

	rec, err := r.Get("spawn-a1b2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "WU-1", rec.ParentWUID)

	// A second migration call is a no-op: the current file already exists.
	require.NoError(t, r.Migrate(legacyPath))
}

func TestRegistry_RejectsMalformedID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "delegation-registry.jsonl")
	badLine := `{"kind":"record","id":"not-an-id","parentWuId":"WU-1","targetWuId":"WU-2","status":"pending","timestamp":"2024-01-01T00:00:00Z"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(badLine), 0o644))

	r := New(path)
	_, err := r.Get("anything")
	require.Error(t, err)
	assert.Equal(t, lferrors.KindValidation, lferrors.KindOf(err))
}
