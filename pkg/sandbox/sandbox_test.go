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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritableRoots_ExcludesDeniedAndEmptyPaths(t *testing.T) {
	profile := Profile{
		WorktreePath:       "/work/wu-1",
		ExtraWritableRoots: []string{"/tmp/cache", "", "/work/wu-1/.secrets"},
		DenyWritableRoots:  []string{"/work/wu-1/.secrets"},
	}
	got := WritableRoots(profile)
	assert.Equal(t, []string{"/work/wu-1", "/tmp/cache"}, got)
}

func TestWritableRoots_DeniesExactMatchAndNestedPaths(t *testing.T) {
	profile := Profile{
		WorktreePath:       "/work/wu-1",
		ExtraWritableRoots: []string{"/work/wu-1/cache"},
		DenyWritableRoots:  []string{"/work/wu-1"},
	}
	assert.Empty(t, WritableRoots(profile))
}

func TestSelect_DispatchesOnGOOS(t *testing.T) {
	assert.Equal(t, "linux-bwrap", Select("linux").ID())
	assert.Equal(t, "darwin-sandbox-exec", Select("darwin").ID())
	assert.Equal(t, "windows-appcontainer", Select("windows").ID())
	assert.Equal(t, "unsupported", Select("plan9").ID())
}

func TestLinuxBackend_FailsClosedWhenBwrapMissingAndFallbackDenied(t *testing.T) {
	b := &LinuxBackend{LookPath: func(string) (string, error) { return "", errors.New("not found") }}
	plan, err := b.ResolveExecution(Request{Command: []string{"echo", "hi"}})
	require.NoError(t, err)
	assert.True(t, plan.FailClosed)
	assert.False(t, plan.Enforced)
	assert.Nil(t, plan.Invocation)
}

func TestLinuxBackend_FallsBackUnsandboxedWhenAllowed(t *testing.T) {
	b := &LinuxBackend{LookPath: func(string) (string, error) { return "", errors.New("not found") }}
	plan, err := b.ResolveExecution(Request{Command: []string{"echo", "hi"}, AllowUnsandboxedFallback: true})
	require.NoError(t, err)
	assert.False(t, plan.FailClosed)
	assert.False(t, plan.Enforced)
	assert.Equal(t, []string{"echo", "hi"}, plan.Invocation.Argv)
	assert.Contains(t, plan.Warning, "unsandboxed")
}

func TestLinuxBackend_WrapsCommandWhenBwrapPresent(t *testing.T) {
	b := &LinuxBackend{LookPath: func(string) (string, error) { return "/usr/bin/bwrap", nil }}
	plan, err := b.ResolveExecution(Request{
		Profile: Profile{WorktreePath: "/work/wu-1"},
		Command: []string{"go", "test", "./..."},
	})
	require.NoError(t, err)
	assert.True(t, plan.Enforced)
	assert.False(t, plan.FailClosed)
	assert.Contains(t, plan.Invocation.Argv, "/usr/bin/bwrap")
	assert.Contains(t, plan.Invocation.Argv, "/work/wu-1")
	assert.Equal(t, []string{"go", "test", "./..."}, plan.Invocation.Argv[len(plan.Invocation.Argv)-3:])
}

func TestUnsupportedBackend_FailsClosedByDefault(t *testing.T) {
	b := &UnsupportedBackend{Platform: "plan9"}
	plan, err := b.ResolveExecution(Request{Command: []string{"ls"}})
	require.NoError(t, err)
	assert.True(t, plan.FailClosed)
	assert.Contains(t, plan.Reason, "plan9")
}

func TestUnsupportedBackend_AllowsFallbackWhenRequested(t *testing.T) {
	b := &UnsupportedBackend{Platform: "plan9"}
	plan, err := b.ResolveExecution(Request{Command: []string{"ls"}, AllowUnsandboxedFallback: true})
	require.NoError(t, err)
	assert.False(t, plan.FailClosed)
	assert.Equal(t, []string{"ls"}, plan.Invocation.Argv)
}
