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

import "strings"

// WindowsBackend produces a best-effort AppContainer-backed
// invocation. Path comparisons for writable roots are
// case-insensitive on Windows, unlike the other backends.
type WindowsBackend struct{}

func NewWindowsBackend() *WindowsBackend { return &WindowsBackend{} }

func (b *WindowsBackend) ID() string { return "windows-appcontainer" }

func (b *WindowsBackend) ResolveExecution(req Request) (*Plan, error) {
	profile := req.Profile
	profile.ExtraWritableRoots = lowercaseAll(profile.ExtraWritableRoots)
	profile.DenyWritableRoots = lowercaseAll(profile.DenyWritableRoots)
	profile.WorktreePath = strings.ToLower(profile.WorktreePath)

	roots := WritableRoots(profile)

	argv := []string{"lumenflow-appcontainer-launcher"}
	for _, root := range roots {
		argv = append(argv, "--writable", root)
	}
	argv = append(argv, "--")
	argv = append(argv, req.Command...)

	return &Plan{
		BackendID:  b.ID(),
		Enforced:   true,
		Invocation: &Invocation{Argv: argv},
		Warning:    "AppContainer isolation is best-effort",
	}, nil
}

func lowercaseAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
