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
	"sort"
	"strings"
	"time"
)

// ContextOptions configures GenerateContext.
type ContextOptions struct {
	WUID          string
	SortByDecay   bool
	MaxSize       int
	HalfLife      time.Duration
	Now           time.Time
	TrackAccess   bool
}

const defaultMaxSize = 4096

const truncationMarker = "\n... (truncated)\n"

// sectionTitle names the four fixed sections, emitted only when
// non-empty, in this order.
const (
	sectionProjectProfile = "Project Profile"
	sectionSummaries      = "Summaries"
	sectionWUContext      = "WU Context"
	sectionDiscoveries    = "Discoveries"
)

// GenerateContext produces a deterministic Markdown block for priming
// a spawned agent, following the four fixed sections and ordering
// rules in spec.md §4.6. Output is byte-for-byte identical for
// identical store contents and options (no timestamps appear in the
// header); an all-empty result is the empty string.
func (s *Store) GenerateContext(opts ContextOptions) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}

	projectNodes := filterNodes(s.nodes, func(n *Node) bool {
		return n.Lifecycle == LifecycleProject
	})
	summaryNodes := filterNodes(s.nodes, func(n *Node) bool {
		return n.Type == "summary" && n.WUID == opts.WUID
	})
	wuNodes := filterNodes(s.nodes, func(n *Node) bool {
		return n.WUID == opts.WUID && n.Type != "summary" && n.Type != "discovery"
	})
	discoveryNodes := filterNodes(s.nodes, func(n *Node) bool {
		return n.Type == "discovery" && n.WUID == opts.WUID
	})

	order := func(nodes []*Node) {
		sortNodes(nodes, opts.SortByDecay, now, opts.HalfLife)
	}
	order(projectNodes)
	order(summaryNodes)
	order(wuNodes)
	order(discoveryNodes)

	var b strings.Builder
	writeSection(&b, sectionProjectProfile, projectNodes)
	writeSection(&b, sectionSummaries, summaryNodes)
	writeSection(&b, sectionWUContext, wuNodes)
	writeSection(&b, sectionDiscoveries, discoveryNodes)

	out := b.String()
	if out == "" {
		return ""
	}

	if opts.TrackAccess {
		for _, n := range append(append(append(projectNodes, summaryNodes...), wuNodes...), discoveryNodes...) {
			n.LastAccess = now
		}
	}

	if len(out) > maxSize {
		cut := maxSize - len(truncationMarker)
		if cut < 0 {
			cut = 0
		}
		out = out[:cut] + truncationMarker
	}

	return out
}

func filterNodes(nodes []*Node, pred func(*Node) bool) []*Node {
	var out []*Node
	for _, n := range nodes {
		if pred(n) {
			out = append(out, n)
		}
	}
	return out
}

func sortNodes(nodes []*Node, byDecay bool, now time.Time, halfLife time.Duration) {
	if byDecay {
		sort.SliceStable(nodes, func(i, j int) bool {
			si := DecayScore(nodes[i].BaseWeight, nodes[i].LastAccess, now, halfLife)
			sj := DecayScore(nodes[j].BaseWeight, nodes[j].LastAccess, now, halfLife)
			if si != sj {
				return si > sj
			}
			return nodes[i].ID < nodes[j].ID
		})
		return
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if !nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].CreatedAt.After(nodes[j].CreatedAt)
		}
		return nodes[i].ID < nodes[j].ID
	})
}

func writeSection(b *strings.Builder, title string, nodes []*Node) {
	if len(nodes) == 0 {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n")
	for _, n := range nodes {
		b.WriteString("- ")
		b.WriteString(n.Content)
		b.WriteString("\n")
	}
}

// ReadyOptions filters QueryReadyNodes.
type ReadyOptions struct {
	Type string
}

// QueryReadyNodes returns nodes linked to wuID that are neither
// blocked nor closed, ordered by priority metadata (P0 < P1 < P2 < P3
// < none), then created_at ASC, then id ASC (spec.md §4.6).
func (s *Store) QueryReadyNodes(wuID string, opts ReadyOptions) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocked := make(map[string]bool)
	for _, r := range s.relationships {
		if r.Type == RelationBlocks {
			blocked[r.ToID] = true
		}
	}

	var out []*Node
	for _, n := range s.byWU[wuID] {
		if opts.Type != "" && n.Type != opts.Type {
			continue
		}
		if blocked[n.ID] {
			continue
		}
		if n.Metadata["blocked_by"] != "" {
			continue
		}
		if n.Lifecycle == LifecycleEphemeral {
			continue
		}
		if n.Metadata["status"] == "closed" {
			continue
		}
		out = append(out, n)
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priorityRank(out[i].Metadata["priority"]), priorityRank(out[j].Metadata["priority"])
		if pi != pj {
			return pi < pj
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func priorityRank(p string) int {
	switch p {
	case "P0":
		return 0
	case "P1":
		return 1
	case "P2":
		return 2
	case "P3":
		return 3
	default:
		return 4
	}
}
