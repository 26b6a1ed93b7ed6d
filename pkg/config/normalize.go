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

package config

import (
	"log/slog"
	"strings"
	"unicode"
)

// knownSections enumerates the recognised top-level keys under
// "software_delivery", used to warn (not silently drop) unrecognised
// keys (spec.md §9 "Dynamic config loading with undocumented keys").
var knownSections = map[string]bool{
	"directories":   true,
	"git":           true,
	"sandbox":       true,
	"owner_email":   true,
	"lanes":         true,
	"wu":            true,
	"control_plane": true,
}

// canonicalFields lists, per "software_delivery" subsection, the
// exact key spelling Config's yaml tags expect (config.go), a mix of
// camelCase and snake_case per spec.md §6. Keys the user writes as
// snake_case (e.g. "wu_dir") are rewritten to the canonical spelling
// here, before mapstructure decodes with TagName:"yaml" — otherwise a
// documented snake_case key silently fails to bind.
var canonicalFields = map[string][]string{
	"directories": {
		"wuDir", "backlogPath", "statusPath", "initiativesDir", "plansDir",
		"templatesDir", "onboardingDir", "completeGuidePath", "operationsRoot",
		"worktreesRoot",
	},
	"git": {
		"mainBranch", "defaultRemote", "requireRemote", "agentBranchPatterns",
		"laneBranchPrefix", "maxBranchDrift", "disableAgentPatternRegistry",
	},
	"sandbox": {
		"allow_unsandboxed_fallback_env", "extra_writable_roots", "deny_writable_roots",
	},
	"control_plane": {
		"enabled", "endpoint", "tokenEnvVar", "postgresDsn",
	},
}

// canonicalFields for "software_delivery.wu.brief", nested one level
// deeper than the table above since "wu" itself has no scalar fields
// of its own, only the "brief" subsection.
var briefCanonicalFields = []string{"policyMode"}

// normalize rewrites a raw decoded map into canonical shape before
// mapstructure decoding: unrecognised top-level sections are warned
// about (not dropped), and known sections have any snake_case alias
// of a canonical field rewritten to that field's documented spelling.
func normalize(raw map[string]any) map[string]any {
	sd, ok := raw["software_delivery"].(map[string]any)
	if !ok {
		return raw
	}
	for key := range sd {
		if !knownSections[key] {
			slog.Warn("unrecognised software_delivery config key", "key", key)
		}
	}

	for section, fields := range canonicalFields {
		if m, ok := sd[section].(map[string]any); ok {
			normalizeKeys(m, fields)
		}
	}
	if wu, ok := sd["wu"].(map[string]any); ok {
		if brief, ok := wu["brief"].(map[string]any); ok {
			normalizeKeys(brief, briefCanonicalFields)
		}
	}

	return raw
}

// normalizeKeys rewrites, in place, any key of m that is the
// snake_case alias of one of canonicalFields to that field's
// canonical spelling. Keys already canonical, or that match no known
// field under this section, are left untouched.
func normalizeKeys(m map[string]any, canonical []string) {
	aliasOf := make(map[string]string, len(canonical))
	isCanonical := make(map[string]bool, len(canonical))
	for _, f := range canonical {
		aliasOf[camelToSnake(f)] = f
		isCanonical[f] = true
	}

	for _, k := range mapKeys(m) {
		if isCanonical[k] {
			continue
		}
		if canon, ok := aliasOf[k]; ok && canon != k {
			m[canon] = m[k]
			delete(m, k)
		}
	}
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// camelToSnake converts "wuDir" to "wu_dir". Keys that are already
// snake_case (e.g. "allow_unsandboxed_fallback_env") round-trip
// unchanged, so sections whose canonical spelling is itself
// snake_case need no special-casing here.
func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
