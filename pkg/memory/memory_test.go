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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_StableAndHierarchical(t *testing.T) {
	id := NewID("discovery: auth uses JWT")
	assert.Regexp(t, `^mem-[0-9a-f]{4}$`, id)
	assert.Equal(t, id, NewID("discovery: auth uses JWT"))

	sub := NewID("discovery: auth uses JWT", 1, 3)
	assert.Equal(t, id+".1.3", sub)
}

func TestDecayScore_MonotoneNonIncreasingInElapsed(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	halfLife := 24 * time.Hour

	var prev float64 = -1
	for _, hours := range []int{0, 1, 12, 24, 48, 240} {
		now := base.Add(time.Duration(hours) * time.Hour)
		score := DecayScore(1.0, base, now, halfLife)
		if prev >= 0 {
			assert.LessOrEqual(t, score, prev, "decay score must not increase as elapsed time grows")
		}
		prev = score
	}
}

func TestDecayScore_HalvesAtHalfLife(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	halfLife := 24 * time.Hour
	at0 := DecayScore(1.0, base, base, halfLife)
	atHalfLife := DecayScore(1.0, base, base.Add(halfLife), halfLife)
	assert.InDelta(t, at0/2, atHalfLife, 1e-9)
}

func TestStore_AppendAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	now := time.Now().UTC()
	require.NoError(t, s.Append(Node{
		ID: "mem-0001", Type: "discovery", Lifecycle: LifecycleWU,
		Content: "found the bug", CreatedAt: now, WUID: "WU-1",
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-0002", Type: "summary", Lifecycle: LifecycleProject,
		Content: "project summary", CreatedAt: now,
	}))

	reloaded := NewStore(dir)
	require.NoError(t, reloaded.Load())

	n := reloaded.ByID("mem-0001")
	require.NotNil(t, n)
	assert.Equal(t, "found the bug", n.Content)
	assert.Equal(t, 1.0, n.BaseWeight)

	wuNodes := reloaded.ByWU("WU-1")
	require.Len(t, wuNodes, 1)
	assert.Equal(t, "mem-0001", wuNodes[0].ID)
}

func TestStore_SearchContent_FindsSubstringAcrossNodes(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	now := time.Now().UTC()
	require.NoError(t, s.Append(Node{
		ID: "mem-aaaa", Type: "discovery", Lifecycle: LifecycleWU,
		Content: "auth uses JWT for session tokens", CreatedAt: now, WUID: "WU-1",
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-bbbb", Type: "summary", Lifecycle: LifecycleProject,
		Content: "unrelated project note", CreatedAt: now.Add(time.Minute),
	}))

	ids, err := s.SearchContent("JWT")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "mem-aaaa", ids[0])

	ids, err = s.SearchContent("project")
	require.NoError(t, err)
	assert.Contains(t, ids, "mem-bbbb")
}

// TestStore_TouchReflectsInAllIndices guards against the aliasing bug
// where indexed pointers could detach from the live node slice once it
// reallocated: a Touch on a node indexed before a later Append must be
// visible both via ByID and via the nodes read by GenerateContext.
func TestStore_TouchReflectsInAllIndices(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(Node{
		ID: "mem-0001", Type: "discovery", Lifecycle: LifecycleProject,
		Content: "first", CreatedAt: base,
	}))

	// Force the backing slice to grow repeatedly past any small initial
	// capacity so a reallocation is virtually guaranteed to occur.
	for i := 0; i < 64; i++ {
		require.NoError(t, s.Append(Node{
			ID:        NewID("filler", i),
			Type:      "discovery",
			Lifecycle: LifecycleEphemeral,
			Content:   "filler",
			CreatedAt: base,
		}))
	}

	touchedAt := base.Add(48 * time.Hour)
	s.Touch("mem-0001", touchedAt)

	assert.True(t, s.ByID("mem-0001").LastAccess.Equal(touchedAt))

	out := s.GenerateContext(ContextOptions{SortByDecay: true, Now: touchedAt})
	assert.Contains(t, out, "first")
}

// TestGenerateContext_DeterministicFourSections exercises spec.md §8
// scenario 5: two project nodes created two days apart and two
// discoveries under WU-400 produce exactly two populated sections in
// created_at DESC, id ASC order, and repeated calls are byte-identical.
func TestGenerateContext_DeterministicFourSections(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(Node{
		ID: "mem-aaaa", Type: "note", Lifecycle: LifecycleProject,
		Content: "older project fact", CreatedAt: base,
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-bbbb", Type: "note", Lifecycle: LifecycleProject,
		Content: "newer project fact", CreatedAt: base.Add(48 * time.Hour),
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-cccc", Type: "discovery", Lifecycle: LifecycleWU,
		Content: "discovery one", CreatedAt: base, WUID: "WU-400",
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-dddd", Type: "discovery", Lifecycle: LifecycleWU,
		Content: "discovery two", CreatedAt: base, WUID: "WU-400",
	}))

	opts := ContextOptions{WUID: "WU-400", Now: base.Add(72 * time.Hour)}
	out1 := s.GenerateContext(opts)
	out2 := s.GenerateContext(opts)
	assert.Equal(t, out1, out2, "GenerateContext must be deterministic for identical store contents and options")

	lines := 0
	for _, r := range out1 {
		if r == '\n' {
			lines++
		}
	}
	assert.Equal(t, 7, lines) // 2 headings + 4 content lines + 1 inter-section blank separator

	assert.Contains(t, out1, "## Project Profile")
	assert.Contains(t, out1, "## Discoveries")
	assert.NotContains(t, out1, "## Summaries")
	assert.NotContains(t, out1, "## WU Context")

	newerIdx := indexOfSubstring(out1, "newer project fact")
	olderIdx := indexOfSubstring(out1, "older project fact")
	require.NotEqual(t, -1, newerIdx)
	require.NotEqual(t, -1, olderIdx)
	assert.Less(t, newerIdx, olderIdx, "created_at DESC: newer project node must come first")
}

func TestGenerateContext_EmptyStoreIsEmptyString(t *testing.T) {
	s := NewStore(t.TempDir())
	out := s.GenerateContext(ContextOptions{WUID: "WU-1"})
	assert.Equal(t, "", out)
}

func TestGenerateContext_TruncatesAtMaxSize(t *testing.T) {
	s := NewStore(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Append(Node{
			ID: NewID("long", i), Type: "note", Lifecycle: LifecycleProject,
			Content: "a fairly long piece of project context content here", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	out := s.GenerateContext(ContextOptions{MaxSize: 200})
	assert.LessOrEqual(t, len(out), 200)
	assert.Contains(t, out, "(truncated)")
}

func TestQueryReadyNodes_OrdersByPriorityThenCreatedThenID(t *testing.T) {
	s := NewStore(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(Node{
		ID: "mem-p2a", Type: "task", Lifecycle: LifecycleWU, WUID: "WU-9",
		Content: "p2 task a", CreatedAt: base, Metadata: map[string]string{"priority": "P2"},
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-p0a", Type: "task", Lifecycle: LifecycleWU, WUID: "WU-9",
		Content: "p0 task", CreatedAt: base.Add(time.Hour), Metadata: map[string]string{"priority": "P0"},
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-p2b", Type: "task", Lifecycle: LifecycleWU, WUID: "WU-9",
		Content: "p2 task b, earlier", CreatedAt: base.Add(-time.Hour), Metadata: map[string]string{"priority": "P2"},
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-blocked", Type: "task", Lifecycle: LifecycleWU, WUID: "WU-9",
		Content: "blocked task", CreatedAt: base, Metadata: map[string]string{"priority": "P0", "blocked_by": "mem-p0a"},
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-closed", Type: "task", Lifecycle: LifecycleWU, WUID: "WU-9",
		Content: "closed task", CreatedAt: base, Metadata: map[string]string{"priority": "P0", "status": "closed"},
	}))

	ready := s.QueryReadyNodes("WU-9", ReadyOptions{Type: "task"})
	require.Len(t, ready, 3)
	assert.Equal(t, "mem-p0a", ready[0].ID)
	assert.Equal(t, "mem-p2b", ready[1].ID)
	assert.Equal(t, "mem-p2a", ready[2].ID)
}

func TestQueryReadyNodes_ExcludesBlockedRelationship(t *testing.T) {
	s := NewStore(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(Node{
		ID: "mem-target", Type: "task", Lifecycle: LifecycleWU, WUID: "WU-9",
		Content: "target", CreatedAt: base,
	}))
	require.NoError(t, s.Append(Node{
		ID: "mem-blocker", Type: "task", Lifecycle: LifecycleWU, WUID: "WU-9",
		Content: "blocker", CreatedAt: base,
	}))
	require.NoError(t, s.AppendRelationship(Relationship{Type: RelationBlocks, FromID: "mem-blocker", ToID: "mem-target"}))

	ready := s.QueryReadyNodes("WU-9", ReadyOptions{Type: "task"})
	require.Len(t, ready, 1)
	assert.Equal(t, "mem-blocker", ready[0].ID)
}

func indexOfSubstring(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
