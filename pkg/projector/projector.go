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

// Package projector regenerates the status board and backlog Markdown
// documents from current WU state. Projection is pure rewriting:
// existing section headings and unrelated content are preserved,
// only the listed items under each heading change. moveItem is
// idempotent.
package projector

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

// Document is a heading-sectioned Markdown file: a fixed ordering of
// heading names to the list of WU ids declared under them, plus any
// non-item prose kept verbatim.
type Document struct {
	Order    []string
	Sections map[string][]string
	Items    map[string]string // wuId -> rendered line, e.g. "- WU-100: Title"
}

var headingPattern = regexp.MustCompile(`(?m)^##\s+(.+)$`)
var itemPattern = regexp.MustCompile(`(?m)^-\s*(WU-\d+)\b.*$`)

// Parse reads a projected document's heading structure and item
// membership from existing Markdown text.
func Parse(text string) *Document {
	doc := &Document{Sections: make(map[string][]string), Items: make(map[string]string)}

	headingIdx := headingPattern.FindAllStringSubmatchIndex(text, -1)
	for i, idx := range headingIdx {
		title := strings.TrimSpace(text[idx[2]:idx[3]])
		start := idx[1]
		end := len(text)
		if i+1 < len(headingIdx) {
			end = headingIdx[i+1][0]
		}
		body := text[start:end]

		doc.Order = append(doc.Order, title)
		for _, m := range itemPattern.FindAllStringSubmatch(body, -1) {
			id := m[1]
			doc.Sections[title] = append(doc.Sections[title], id)
		}
		for _, line := range strings.Split(body, "\n") {
			if m := itemPattern.FindStringSubmatch(line); m != nil {
				doc.Items[m[1]] = strings.TrimRight(line, "\r")
			}
		}
	}

	return doc
}

// MoveItem moves id from fromHeading to toHeading. It is idempotent:
// a no-op if id is already only under toHeading; if id is duplicated
// across sections it is removed from every section except toHeading.
func (d *Document) MoveItem(id, fromHeading, toHeading string, line string) {
	present := map[string]bool{}
	for heading, ids := range d.Sections {
		for _, existing := range ids {
			if existing == id {
				present[heading] = true
			}
		}
	}

	if len(present) == 1 && present[toHeading] {
		return
	}

	d.removeFromAllSectionsExcept(id, toHeading)

	found := false
	for _, existing := range d.Sections[toHeading] {
		if existing == id {
			found = true
			break
		}
	}
	if !found {
		d.Sections[toHeading] = append(d.Sections[toHeading], id)
	}
	if line != "" {
		d.Items[id] = line
	}
}

// removeFromAllSectionsExcept deletes id from every section other
// than keep, repairing duplication left by a race.
func (d *Document) removeFromAllSectionsExcept(id, keep string) {
	for heading, ids := range d.Sections {
		if heading == keep {
			continue
		}
		var filtered []string
		for _, existing := range ids {
			if existing != id {
				filtered = append(filtered, existing)
			}
		}
		d.Sections[heading] = filtered
	}
}

// RemoveEverywhere deletes id from every section and drops its
// rendered line, used by documents (e.g. the backlog) where a
// terminal-status work unit is dropped entirely rather than moved to
// a closing heading.
func (d *Document) RemoveEverywhere(id string) {
	d.removeFromAllSectionsExcept(id, "")
	delete(d.Items, id)
}

// Render writes the document back to Markdown, preserving heading
// order.
func (d *Document) Render() string {
	var b strings.Builder
	for i, heading := range d.Order {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## ")
		b.WriteString(heading)
		b.WriteString("\n")
		for _, id := range d.Sections[heading] {
			line, ok := d.Items[id]
			if !ok {
				line = "- " + id
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// WriteIfChanged rewrites path only if the rendered content differs
// from what is already on disk, keeping the projector idempotent at
// the filesystem level too (running it twice touches nothing on the
// second run).
func WriteIfChanged(path string, content string) error {
	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == content {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return &lferrors.IOError{Path: path, Op: "read", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &lferrors.IOError{Path: filepath.Dir(path), Op: "mkdir", Err: err}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &lferrors.IOError{Path: path, Op: "write", Err: err}
	}
	return nil
}

// StampPath returns the completion stamp path for wuID under dir.
func StampPath(dir, wuID string) string {
	return filepath.Join(dir, wuID+".done")
}

// WriteStamp writes a thin completion stamp file recording that a
// complete event was written and acknowledged.
func WriteStamp(dir, wuID, actor, completedAt string) error {
	path := StampPath(dir, wuID)
	content := fmt.Sprintf("wuId: %s\nactor: %s\ncompletedAt: %s\n", wuID, actor, completedAt)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &lferrors.IOError{Path: dir, Op: "mkdir", Err: err}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &lferrors.IOError{Path: path, Op: "write", Err: err}
	}
	return nil
}

// StampExists reports whether wuID's stamp file is present.
func StampExists(dir, wuID string) bool {
	_, err := os.Stat(StampPath(dir, wuID))
	return err == nil
}
