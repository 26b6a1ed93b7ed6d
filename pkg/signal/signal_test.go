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

package signal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "signals.jsonl"))
}

func TestCreate_DefaultsTypeAndSeverity(t *testing.T) {
	b := newTestBus(t)
	id, err := b.Create(CreateOptions{WUID: "WU-1"})
	require.NoError(t, err)
	assert.Regexp(t, `^sig-[0-9a-f]{8}$`, id)

	sigs, err := b.Load(LoadOptions{})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "message", sigs[0].Type)
	assert.Equal(t, SeverityInfo, sigs[0].Severity)
}

func TestCreate_MessageGoesIntoPayload(t *testing.T) {
	b := newTestBus(t)
	_, err := b.Create(CreateOptions{Message: "heads up"})
	require.NoError(t, err)

	sigs, err := b.Load(LoadOptions{})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "heads up", sigs[0].Payload["message"])
}

func TestLoad_FiltersByWUIDLaneAndUnread(t *testing.T) {
	b := newTestBus(t)
	_, err := b.Create(CreateOptions{WUID: "WU-1", Lane: "backend"})
	require.NoError(t, err)
	id2, err := b.Create(CreateOptions{WUID: "WU-2", Lane: "frontend"})
	require.NoError(t, err)

	require.NoError(t, b.MarkRead([]string{id2}))

	byWU, err := b.Load(LoadOptions{WUID: "WU-1"})
	require.NoError(t, err)
	require.Len(t, byWU, 1)
	assert.Equal(t, "WU-1", byWU[0].WUID)

	unread, err := b.Load(LoadOptions{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "WU-1", unread[0].WUID)
}

func TestLoad_FiltersBySince(t *testing.T) {
	b := newTestBus(t)
	_, err := b.Create(CreateOptions{WUID: "WU-1"})
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Hour)
	sigs, err := b.Load(LoadOptions{Since: future})
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestMarkRead_IsIdempotentAndPreservesOtherSignals(t *testing.T) {
	b := newTestBus(t)
	id1, err := b.Create(CreateOptions{WUID: "WU-1"})
	require.NoError(t, err)
	id2, err := b.Create(CreateOptions{WUID: "WU-2"})
	require.NoError(t, err)

	require.NoError(t, b.MarkRead([]string{id1}))
	require.NoError(t, b.MarkRead([]string{id1}))

	sigs, err := b.Load(LoadOptions{})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	for _, s := range sigs {
		if s.ID == id1 {
			assert.True(t, s.Read)
		}
		if s.ID == id2 {
			assert.False(t, s.Read)
		}
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	b := newTestBus(t)
	sigs, err := b.Load(LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestNewID_UniqueAcrossCalls(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := newID()
		require.NoError(t, err)
		assert.False(t, seen[id], "generated duplicate signal id %q", id)
		seen[id] = true
	}
}
