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

package wu

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
)

// LoadSpec reads and parses a single work unit's YAML file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &lferrors.IOError{Path: path, Op: "read", Err: err}
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, &lferrors.ParseError{Path: path, Err: err}
	}
	return &spec, nil
}

// LoadAll reads every "*.yaml"/"*.yml" file directly under dir,
// skipping files that fail to parse as a WU spec, and returns them
// sorted by id.
func LoadAll(dir string) ([]*Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &lferrors.IOError{Path: dir, Op: "readdir", Err: err}
	}

	var specs []*Spec
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		spec, err := LoadSpec(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool {
		return strings.Compare(specs[i].ID, specs[j].ID) < 0
	})
	return specs, nil
}
