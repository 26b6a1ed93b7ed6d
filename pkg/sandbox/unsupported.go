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

// UnsupportedBackend fails closed on any platform with no known
// isolation mechanism, unless AllowUnsandboxedFallback overrides it.
type UnsupportedBackend struct {
	Platform string
}

func (b *UnsupportedBackend) ID() string { return "unsupported" }

func (b *UnsupportedBackend) ResolveExecution(req Request) (*Plan, error) {
	if req.AllowUnsandboxedFallback {
		return &Plan{
			BackendID:  b.ID(),
			Enforced:   false,
			FailClosed: false,
			Invocation: &Invocation{Argv: req.Command},
			Warning:    "no sandbox backend for platform " + b.Platform + "; running unsandboxed",
		}, nil
	}
	return &Plan{
		BackendID:  b.ID(),
		Enforced:   false,
		FailClosed: true,
		Reason:     "no sandbox backend available for platform " + b.Platform,
	}, nil
}
