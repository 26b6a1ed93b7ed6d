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

import "runtime"

// Select returns the Backend appropriate for goos (as reported by
// runtime.GOOS), used both at startup and by the supplemented
// "sandbox probe" CLI command to report which backend would be
// selected.
func Select(goos string) Backend {
	switch goos {
	case "linux":
		return NewLinuxBackend()
	case "darwin":
		return NewDarwinBackend()
	case "windows":
		return NewWindowsBackend()
	default:
		return &UnsupportedBackend{Platform: goos}
	}
}

// SelectForRuntime returns the Backend for the running process's
// platform.
func SelectForRuntime() Backend {
	return Select(runtime.GOOS)
}
