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

// Package policy implements the completion policy engine: a fixed,
// ordered pipeline of named gates run before a complete event is
// written. The engine never writes events itself — a failing gate
// returns a structured *lferrors.PolicyError naming the gate and an
// actionable fix.
package policy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lumenflow/lumenflow/pkg/delegation"
	"github.com/lumenflow/lumenflow/pkg/eventlog"
	"github.com/lumenflow/lumenflow/pkg/lferrors"
	"github.com/lumenflow/lumenflow/pkg/wu"
)

// BriefPolicyMode controls gate 7 (brief evidence).
type BriefPolicyMode string

const (
	BriefOff      BriefPolicyMode = "off"
	BriefManual   BriefPolicyMode = "manual"
	BriefAuto     BriefPolicyMode = "auto"
	BriefRequired BriefPolicyMode = "required"
)

// Config threads the workspace-level knobs the gates consult.
type Config struct {
	DocsPathPrefixes []string
	BriefPolicy      BriefPolicyMode
	InitiativeGoverned func(wuID string) bool
}

// Gate is one named check in the pipeline.
type Gate struct {
	Name string
	Run  func(ctx *Context) error
}

// Context carries everything a gate needs: the WU spec, filesystem
// helpers, and collaborators for evidence lookups.
type Context struct {
	Spec       *wu.Spec
	Config     Config
	ProjectRoot string
	Force      bool

	FileExists  func(path string) bool
	GlobExpand  func(pattern string) []string
	GitDiffPaths func() []string
	ReadFile    func(path string) ([]byte, error)

	EventLog   *eventlog.Log
	Delegation *delegation.Registry

	// Override, when set, is called with the gate name and a reason
	// whenever Force suppresses a gate (brief-evidence, spawn-provenance)
	// that would otherwise have failed, so the caller can record an
	// auditable bypass (spec.md §4.8 items 7-8).
	Override func(gate, reason string)
}

// sourceExtensions are file extensions the automated-test gate treats
// as "source" requiring test coverage.
var sourceExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".rb": true, ".java": true, ".rs": true, ".c": true, ".cpp": true,
}

// configExtensions are never considered source for the automated-test
// gate even though they sit alongside code.
var configExtensions = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".md": true,
}

// Pipeline is the fixed gate ordering from spec.md §4.8.
func Pipeline() []Gate {
	return []Gate{
		{Name: "exposure-accessibility", Run: gateExposureAccessibility},
		{Name: "docs-only", Run: gateDocsOnly},
		{Name: "code-path-existence", Run: gateCodePathExistence},
		{Name: "test-path-existence", Run: gateTestPathExistence},
		{Name: "automated-test-requirement", Run: gateAutomatedTestRequirement},
		{Name: "rules-engine", Run: gateRulesEngine},
		{Name: "brief-evidence", Run: gateBriefEvidence},
		{Name: "spawn-provenance", Run: gateSpawnProvenance},
	}
}

// Run executes every gate in order, stopping at the first failure.
func Run(ctx *Context) error {
	for _, gate := range Pipeline() {
		if err := gate.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

func gateExposureAccessibility(ctx *Context) error {
	if ctx.Spec.Exposure != "ui" {
		return nil
	}
	hasAccessibilityEvidence := false
	for _, t := range append(append(ctx.Spec.Tests.Unit, ctx.Spec.Tests.E2E...), ctx.Spec.Tests.Integration...) {
		if strings.Contains(strings.ToLower(t), "a11y") || strings.Contains(strings.ToLower(t), "accessib") {
			hasAccessibilityEvidence = true
			break
		}
	}
	if !hasAccessibilityEvidence {
		return &lferrors.PolicyError{
			Gate:       "exposure-accessibility",
			Reason:     "UI-exposed work units must demonstrate accessibility coverage",
			FixCommand: "add an accessibility test to tests.e2e or tests.unit",
		}
	}
	return nil
}

func gateDocsOnly(ctx *Context) error {
	if !ctx.Spec.DocsOnly {
		return nil
	}
	if ctx.Spec.Exposure == "documentation" || ctx.Spec.Type == wu.TypeDocumentation {
		return nil
	}
	for _, p := range ctx.Spec.CodePaths {
		if strings.HasSuffix(p, ".md") {
			continue
		}
		if isUnderAnyPrefix(p, ctx.Config.DocsPathPrefixes) {
			continue
		}
		return &lferrors.PolicyError{
			Gate:       "docs-only",
			Reason:     "docs_only is set but code_paths include non-documentation paths: " + p,
			FixCommand: "remove docs_only or move non-doc paths out of code_paths",
		}
	}
	return nil
}

func isUnderAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func gateCodePathExistence(ctx *Context) error {
	for _, pattern := range ctx.Spec.CodePaths {
		if !pathExists(ctx, pattern) {
			return &lferrors.PolicyError{
				Gate:       "code-path-existence",
				Reason:     "code path does not exist: " + pattern,
				FixCommand: "create " + pattern + " or correct code_paths",
			}
		}
	}
	return nil
}

func pathExists(ctx *Context, pattern string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		if ctx.GlobExpand == nil {
			return true
		}
		return len(ctx.GlobExpand(pattern)) > 0
	}
	if ctx.FileExists == nil {
		return true
	}
	return ctx.FileExists(filepath.Join(ctx.ProjectRoot, pattern))
}

func gateTestPathExistence(ctx *Context) error {
	for _, p := range append(append(ctx.Spec.Tests.Unit, ctx.Spec.Tests.E2E...), ctx.Spec.Tests.Integration...) {
		if !pathExists(ctx, p) {
			return &lferrors.PolicyError{
				Gate:       "test-path-existence",
				Reason:     "test path does not exist: " + p,
				FixCommand: "create " + p + " or correct tests.*",
			}
		}
	}
	return nil
}

func gateAutomatedTestRequirement(ctx *Context) error {
	if ctx.Spec.Type == wu.TypeDocumentation {
		return nil
	}
	hasSource := false
	for _, p := range ctx.Spec.CodePaths {
		ext := filepath.Ext(p)
		if sourceExtensions[ext] && !configExtensions[ext] {
			hasSource = true
			break
		}
	}
	if !hasSource {
		return nil
	}
	if len(ctx.Spec.Tests.Unit) == 0 && len(ctx.Spec.Tests.E2E) == 0 && len(ctx.Spec.Tests.Integration) == 0 {
		return &lferrors.PolicyError{
			Gate:       "automated-test-requirement",
			Reason:     "source code paths require at least one automated test",
			FixCommand: "add a path under tests.unit, tests.e2e, or tests.integration",
		}
	}
	return nil
}

// gateRulesEngine runs reality checks against the git diff (spec.md
// §4.8 gate 6). Today it enforces one concrete rule: package.json bin
// parity — every file a changed package.json's "bin" field points at
// must itself be part of the diff, so a bin entry is never added (or
// repointed) at a file the change never touched. Registration-surface
// parity for other ecosystems (e.g. a CLI subcommand's index file) is
// not yet implemented; see DESIGN.md.
func gateRulesEngine(ctx *Context) error {
	if ctx.GitDiffPaths == nil {
		return nil
	}
	diffPaths := ctx.GitDiffPaths()
	diffSet := make(map[string]bool, len(diffPaths))
	for _, p := range diffPaths {
		diffSet[p] = true
	}

	for _, p := range diffPaths {
		if filepath.Base(p) != "package.json" || ctx.ReadFile == nil {
			continue
		}
		raw, err := ctx.ReadFile(p)
		if err != nil {
			continue
		}
		bins, err := parsePackageJSONBin(raw)
		if err != nil {
			return &lferrors.PolicyError{
				Gate:       "rules-engine",
				Reason:     fmt.Sprintf("%s: %v", p, err),
				FixCommand: fmt.Sprintf("fix the malformed \"bin\" field in %s", p),
			}
		}
		dir := filepath.Dir(p)
		for name, target := range bins {
			targetPath := filepath.ToSlash(filepath.Join(dir, target))
			if !diffSet[targetPath] {
				return &lferrors.PolicyError{
					Gate:       "rules-engine",
					Reason:     fmt.Sprintf("%s declares bin %q -> %q, but %s is not part of this change", p, name, target, targetPath),
					FixCommand: fmt.Sprintf("include %s in the change or remove the %q bin entry", targetPath, name),
				}
			}
		}
	}
	return nil
}

// parsePackageJSONBin extracts the bin-name -> file-path pairs from a
// package.json's "bin" field, which npm accepts either as a single
// string (using the package name) or as an object of named entries.
func parsePackageJSONBin(raw []byte) (map[string]string, error) {
	var doc struct {
		Name string          `json:"name"`
		Bin  json.RawMessage `json:"bin"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(doc.Bin) == 0 {
		return nil, nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(doc.Bin, &asMap); err == nil {
		return asMap, nil
	}

	var asString string
	if err := json.Unmarshal(doc.Bin, &asString); err == nil {
		if doc.Name == "" {
			return nil, fmt.Errorf(`"bin" is a string but "name" is empty`)
		}
		return map[string]string{doc.Name: asString}, nil
	}

	return nil, fmt.Errorf(`"bin" field is neither a string nor an object`)
}

func gateBriefEvidence(ctx *Context) error {
	if ctx.Config.BriefPolicy != BriefRequired {
		return nil
	}
	if ctx.EventLog == nil {
		return nil
	}
	ev, err := ctx.EventLog.GetLatestBriefEvidence(ctx.Spec.ID)
	if err != nil {
		return err
	}
	if ev != nil {
		return nil
	}
	reason := "brief policy is required but no brief_evidence event exists"
	if ctx.Force {
		if ctx.Override != nil {
			ctx.Override("brief-evidence", reason)
		}
		return nil
	}
	return &lferrors.PolicyError{
		Gate:       "brief-evidence",
		Reason:     reason,
		FixCommand: "record brief evidence before completing, or pass --force to bypass with an audit trail",
	}
}

func gateSpawnProvenance(ctx *Context) error {
	if ctx.Config.InitiativeGoverned == nil || !ctx.Config.InitiativeGoverned(ctx.Spec.ID) {
		return nil
	}
	if ctx.Delegation == nil {
		return nil
	}
	records, err := ctx.Delegation.ForTarget(ctx.Spec.ID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.PickedUpAt != nil {
			return nil
		}
	}
	reason := "initiative-governed work unit has no delegation with pickup evidence"
	if ctx.Force {
		if ctx.Override != nil {
			ctx.Override("spawn-provenance", reason)
		}
		return nil
	}
	return &lferrors.PolicyError{
		Gate:       "spawn-provenance",
		Reason:     reason,
		FixCommand: "delegate this work unit before completing, or pass --force to record an override",
	}
}
