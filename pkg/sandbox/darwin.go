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

package sandbox

import (
	"fmt"
	"os"
)

// DarwinBackend generates a sandbox-exec profile allowing the
// worktree and extra writable roots write access, read-only
// elsewhere.
type DarwinBackend struct{}

func NewDarwinBackend() *DarwinBackend { return &DarwinBackend{} }

func (b *DarwinBackend) ID() string { return "darwin-sandbox-exec" }

func (b *DarwinBackend) ResolveExecution(req Request) (*Plan, error) {
	profileText := BuildProfile(req.Profile)

	f, err := os.CreateTemp("", "lumenflow-sandbox-*.sb")
	if err != nil {
		return &Plan{
			BackendID:  b.ID(),
			FailClosed: true,
			Reason:     fmt.Sprintf("could not write sandbox-exec profile: %v", err),
		}, nil
	}
	defer f.Close()
	if _, err := f.WriteString(profileText); err != nil {
		return &Plan{
			BackendID:  b.ID(),
			FailClosed: true,
			Reason:     fmt.Sprintf("could not write sandbox-exec profile: %v", err),
		}, nil
	}

	argv := []string{"sandbox-exec", "-f", f.Name()}
	argv = append(argv, req.Command...)

	return &Plan{
		BackendID:  b.ID(),
		Enforced:   true,
		Invocation: &Invocation{Argv: argv},
	}, nil
}

// BuildProfile renders the sandbox-exec profile text for the given
// profile's writable roots.
func BuildProfile(profile Profile) string {
	out := "(version 1)\n(deny default)\n(allow process-exec)\n(allow file-read*)\n"
	for _, root := range WritableRoots(profile) {
		out += fmt.Sprintf("(allow file-write* (subpath %q))\n", root)
	}
	return out
}
