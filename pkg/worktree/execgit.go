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

package worktree

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecGit drives the real git binary via os/exec, implementing Git
// for production use. Grounded on the teacher's dev.GitManager, which
// shells out the same way for its self-development commits.
type ExecGit struct {
	ProjectRoot string
}

// NewExecGit returns a Git backed by the git binary found on PATH.
func NewExecGit(projectRoot string) *ExecGit {
	return &ExecGit{ProjectRoot: projectRoot}
}

func (g *ExecGit) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir == "" {
		dir = g.ProjectRoot
	}
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func (g *ExecGit) WorktreeList(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if p, ok := strings.CutPrefix(line, "worktree "); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (g *ExecGit) WorktreeAdd(ctx context.Context, path, branch string) error {
	_, err := g.run(ctx, "", "worktree", "add", path, branch)
	return err
}

func (g *ExecGit) WorktreeRemove(ctx context.Context, path string) error {
	_, err := g.run(ctx, "", "worktree", "remove", "--force", path)
	return err
}

func (g *ExecGit) BranchExists(ctx context.Context, branch string) (bool, error) {
	_, err := g.run(ctx, "", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil, nil
}

func (g *ExecGit) BranchCreate(ctx context.Context, branch, from string) error {
	_, err := g.run(ctx, "", "branch", branch, from)
	return err
}

func (g *ExecGit) BranchDelete(ctx context.Context, branch string) error {
	_, err := g.run(ctx, "", "branch", "-D", branch)
	return err
}

func (g *ExecGit) Checkout(ctx context.Context, worktreePath, ref string) error {
	_, err := g.run(ctx, worktreePath, "checkout", ref)
	return err
}

func (g *ExecGit) MergeFastForwardOnly(ctx context.Context, worktreePath, branch string) error {
	_, err := g.run(ctx, worktreePath, "merge", "--ff-only", branch)
	return err
}

func (g *ExecGit) Rebase(ctx context.Context, worktreePath, onto string) error {
	_, err := g.run(ctx, worktreePath, "rebase", onto)
	return err
}

func (g *ExecGit) RebaseAbort(ctx context.Context, worktreePath string) error {
	_, err := g.run(ctx, worktreePath, "rebase", "--abort")
	return err
}

func (g *ExecGit) RebaseContinue(ctx context.Context, worktreePath string) error {
	_, err := g.run(ctx, worktreePath, "rebase", "--continue")
	return err
}

func (g *ExecGit) Fetch(ctx context.Context, remote string) error {
	_, err := g.run(ctx, "", "fetch", remote)
	return err
}

func (g *ExecGit) PullRebase(ctx context.Context, worktreePath, remote, branch string) error {
	_, err := g.run(ctx, worktreePath, "pull", "--rebase", remote, branch)
	return err
}

func (g *ExecGit) Push(ctx context.Context, worktreePath, remote, branch string) error {
	_, err := g.run(ctx, worktreePath, "push", remote, branch)
	return err
}

func (g *ExecGit) PushForceWithLease(ctx context.Context, worktreePath, remote, branch string) error {
	_, err := g.run(ctx, worktreePath, "push", "--force-with-lease", remote, branch)
	return err
}

func (g *ExecGit) Raw(ctx context.Context, worktreePath string, args ...string) (string, error) {
	return g.run(ctx, worktreePath, args...)
}

func (g *ExecGit) CurrentBranch(ctx context.Context, worktreePath string) (string, error) {
	out, err := g.run(ctx, worktreePath, "branch", "--show-current")
	return strings.TrimSpace(out), err
}

func (g *ExecGit) Status(ctx context.Context, worktreePath string) (bool, error) {
	out, err := g.run(ctx, worktreePath, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (g *ExecGit) DiffPaths(ctx context.Context, worktreePath, base string) ([]string, error) {
	out, err := g.run(ctx, worktreePath, "diff", "--name-only", base)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

func (g *ExecGit) ShowAtRef(ctx context.Context, ref, path string) (string, error) {
	return g.run(ctx, "", "show", ref+":"+path)
}

func (g *ExecGit) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, err := g.run(ctx, "", "merge-base", "--is-ancestor", ancestor, descendant)
	return err == nil, nil
}

func (g *ExecGit) ConflictedPaths(ctx context.Context, worktreePath string) ([]string, error) {
	out, err := g.run(ctx, worktreePath, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

func (g *ExecGit) Add(ctx context.Context, worktreePath string, paths ...string) error {
	args := append([]string{"add"}, paths...)
	_, err := g.run(ctx, worktreePath, args...)
	return err
}

func (g *ExecGit) Commit(ctx context.Context, worktreePath, message string) error {
	_, err := g.run(ctx, worktreePath, "commit", "-m", message)
	return err
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

var _ Git = (*ExecGit)(nil)
