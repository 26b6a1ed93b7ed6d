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

package worktree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lineA = `{"type":"claim","wuId":"WU-1","timestamp":"2024-01-01T00:00:00Z","actor":"a"}`
	lineB = `{"type":"claim","wuId":"WU-2","timestamp":"2024-01-01T00:05:00Z","actor":"b"}`
	lineC = `{"type":"complete","wuId":"WU-1","timestamp":"2024-01-01T01:00:00Z","actor":"a"}`
)

// TestResolveEventLog_UnionClosure exercises spec.md §8 "Append-only
// merge closure": the result contains every event from ours and theirs
// exactly once, theirs-ordering first, then ours-only additions.
func TestResolveEventLog_UnionClosure(t *testing.T) {
	theirs := []byte(lineA + "\n" + lineB + "\n")
	ours := []byte(lineA + "\n" + lineC + "\n")

	merged, err := ResolveEventLog(ours, theirs)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(merged), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, lineA, lines[0])
	assert.Equal(t, lineB, lines[1])
	assert.Equal(t, lineC, lines[2])
}

func TestResolveEventLog_NoSharedLinesPreservesBoth(t *testing.T) {
	theirs := []byte(lineA + "\n")
	ours := []byte(lineB + "\n")

	merged, err := ResolveEventLog(ours, theirs)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(merged), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, lineA, lines[0])
	assert.Equal(t, lineB, lines[1])
}

func TestResolveEventLog_IdenticalLogsDeduplicate(t *testing.T) {
	data := []byte(lineA + "\n" + lineB + "\n")
	merged, err := ResolveEventLog(data, data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(merged), "\n"), "\n")
	assert.Len(t, lines, 2)
}

func TestResolveEventLog_RefusesInvalidJSONOnEitherSide(t *testing.T) {
	theirs := []byte(lineA + "\n")
	ours := []byte("not json at all\n")

	_, err := ResolveEventLog(ours, theirs)
	require.Error(t, err)

	_, err = ResolveEventLog(theirs, ours)
	require.Error(t, err)
}

func TestResolveEventLog_IgnoresBlankLines(t *testing.T) {
	theirs := []byte(lineA + "\n\n" + lineB + "\n")
	ours := []byte(lineA + "\n")

	merged, err := ResolveEventLog(ours, theirs)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(merged), "\n"), "\n")
	assert.Len(t, lines, 2)
}

func TestResolveProjection_AlwaysPrefersTheirs(t *testing.T) {
	out := ResolveProjection([]byte("ours content"), []byte("theirs content"))
	assert.Equal(t, []byte("theirs content"), out)
}

func TestKind_ClassifiesAppendOnlyAndRegularPaths(t *testing.T) {
	assert.Equal(t, "event-log", Kind("docs/tasks/wu-events.jsonl"))
	assert.Equal(t, "status", Kind("docs/tasks/status.md"))
	assert.Equal(t, "backlog", Kind("docs/tasks/backlog.md"))
	assert.Equal(t, "regular", Kind("pkg/foo/foo.go"))
}
