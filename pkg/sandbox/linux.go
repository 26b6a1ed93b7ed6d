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

import "os/exec"

// LinuxBackend shells out to bubblewrap (bwrap) when present.
type LinuxBackend struct {
	// LookPath is a seam for tests; production leaves it as
	// exec.LookPath.
	LookPath func(file string) (string, error)
}

// NewLinuxBackend returns a LinuxBackend using the real exec.LookPath.
func NewLinuxBackend() *LinuxBackend {
	return &LinuxBackend{LookPath: exec.LookPath}
}

func (b *LinuxBackend) ID() string { return "linux-bwrap" }

func (b *LinuxBackend) ResolveExecution(req Request) (*Plan, error) {
	lookPath := b.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	bwrapPath, err := lookPath("bwrap")
	if err != nil {
		if req.AllowUnsandboxedFallback {
			return &Plan{
				BackendID:  b.ID(),
				Enforced:   false,
				FailClosed: false,
				Invocation: &Invocation{Argv: req.Command},
				Warning:    "bwrap not found; running unsandboxed",
			}, nil
		}
		return &Plan{
			BackendID:  b.ID(),
			Enforced:   false,
			FailClosed: true,
			Reason:     "bwrap is not installed and unsandboxed fallback is not permitted",
		}, nil
	}

	argv := []string{bwrapPath, "--ro-bind", "/", "/"}
	for _, root := range WritableRoots(req.Profile) {
		argv = append(argv, "--bind", root, root)
	}
	argv = append(argv, "--")
	argv = append(argv, req.Command...)

	return &Plan{
		BackendID:  b.ID(),
		Enforced:   true,
		Invocation: &Invocation{Argv: argv},
	}, nil
}
