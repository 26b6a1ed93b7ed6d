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
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

// AppendOnlyFiles are the fixed set of files the conflict resolver
// treats specially during rebase/merge (spec.md §4.9).
var AppendOnlyFiles = map[string]bool{
	"event-log": true,
	"status":    true,
	"backlog":   true,
}

// ResolveEventLog unions two schema-valid JSONL event logs by event
// identity (the raw line, since events carry no separate id field),
// preserving theirs-ordering first, then appending ours-only
// additions. Both inputs must be well-formed JSONL; otherwise the
// resolver refuses and the caller must escalate rather than attempt
// a partial merge.
//
// This satisfies spec.md §8 "Append-only merge closure": for two
// event logs E_a (ours) and E_b (theirs) sharing a common prefix, the
// result contains every event in E_a ∪ E_b exactly once, ordered
// theirs-then-ours-additions.
func ResolveEventLog(ours, theirs []byte) ([]byte, error) {
	oursLines, err := splitValidJSONL(ours)
	if err != nil {
		return nil, &lferrors.ParseError{Path: "ours", Line: 0, Err: err}
	}
	theirsLines, err := splitValidJSONL(theirs)
	if err != nil {
		return nil, &lferrors.ParseError{Path: "theirs", Line: 0, Err: err}
	}

	seen := make(map[string]bool, len(theirsLines))
	var out bytes.Buffer
	for _, line := range theirsLines {
		seen[line] = true
		out.WriteString(line)
		out.WriteByte('\n')
	}
	for _, line := range oursLines {
		if seen[line] {
			continue
		}
		seen[line] = true
		out.WriteString(line)
		out.WriteByte('\n')
	}

	return out.Bytes(), nil
}

func splitValidJSONL(data []byte) ([]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if !isValidJSONObject(line) {
			return nil, &lferrors.ValidationError{Field: "line", Reason: "not a valid JSON object: " + line}
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func isValidJSONObject(line string) bool {
	var v map[string]any
	return json.Unmarshal([]byte(line), &v) == nil
}

// ResolveProjection always prefers theirs for status/backlog
// conflicts, since both are regenerated from the event log after the
// merge completes.
func ResolveProjection(_, theirs []byte) []byte {
	return theirs
}

// Kind classifies a conflicted path as one of the append-only files
// or a regular (non-special) conflict.
func Kind(path string) string {
	switch {
	case strings.HasSuffix(path, "wu-events.jsonl"):
		return "event-log"
	case strings.HasSuffix(path, "status.md"):
		return "status"
	case strings.HasSuffix(path, "backlog.md"):
		return "backlog"
	default:
		return "regular"
	}
}
