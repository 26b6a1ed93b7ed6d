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

// Package worktree implements the git worktree and merge orchestrator
// that safely integrates a lane branch back to main: preflight,
// auto-rebase, fast-forward merge with retry, artifact cleanup, and
// force-with-lease push. The VCS itself is an external collaborator,
// reached through the narrow Git interface below.
package worktree

import "context"

// Git is the narrow adapter the orchestrator uses to drive the
// underlying VCS (spec.md §6 "Subprocess contract (external)").
// Production wiring shells out to the git binary; tests supply a
// fake.
type Git interface {
	WorktreeList(ctx context.Context) ([]string, error)
	WorktreeAdd(ctx context.Context, path, branch string) error
	WorktreeRemove(ctx context.Context, path string) error

	BranchExists(ctx context.Context, branch string) (bool, error)
	BranchCreate(ctx context.Context, branch, from string) error
	BranchDelete(ctx context.Context, branch string) error
	Checkout(ctx context.Context, worktreePath, ref string) error

	MergeFastForwardOnly(ctx context.Context, worktreePath, branch string) error
	Rebase(ctx context.Context, worktreePath, onto string) error
	RebaseAbort(ctx context.Context, worktreePath string) error
	RebaseContinue(ctx context.Context, worktreePath string) error

	Fetch(ctx context.Context, remote string) error
	PullRebase(ctx context.Context, worktreePath, remote, branch string) error
	Push(ctx context.Context, worktreePath, remote, branch string) error
	PushForceWithLease(ctx context.Context, worktreePath, remote, branch string) error

	Raw(ctx context.Context, worktreePath string, args ...string) (string, error)

	CurrentBranch(ctx context.Context, worktreePath string) (string, error)
	Status(ctx context.Context, worktreePath string) (dirty bool, err error)
	DiffPaths(ctx context.Context, worktreePath, base string) ([]string, error)
	ShowAtRef(ctx context.Context, ref, path string) (string, error)
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)
	ConflictedPaths(ctx context.Context, worktreePath string) ([]string, error)
	Add(ctx context.Context, worktreePath string, paths ...string) error
	Commit(ctx context.Context, worktreePath, message string) error
}
