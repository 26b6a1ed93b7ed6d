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
	"path/filepath"
)

// ActivityProbe implements pkg/lanes.ActivityProbe by checking whether
// a WU's worktree has uncommitted changes, for the "active" lock
// policy. Worktree paths follow the fixed "<worktreesRoot>/<wuID>"
// convention every WorktreeAdd call in this package uses.
type ActivityProbe struct {
	git           Git
	worktreesRoot string
}

// NewActivityProbe returns a probe rooted at worktreesRoot.
func NewActivityProbe(git Git, worktreesRoot string) *ActivityProbe {
	return &ActivityProbe{git: git, worktreesRoot: worktreesRoot}
}

// HasUncommittedActivity reports whether wuID's worktree has a dirty
// working tree. A worktree that does not exist (not yet created, or
// already cleaned up after completion) is reported as inactive rather
// than an error, since the caller only needs a boolean signal.
func (p *ActivityProbe) HasUncommittedActivity(wuID string) (bool, error) {
	path := filepath.Join(p.worktreesRoot, wuID)
	dirty, err := p.git.Status(context.Background(), path)
	if err != nil {
		return false, nil
	}
	return dirty, nil
}
