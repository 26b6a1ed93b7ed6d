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

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lumenflow/lumenflow/pkg/sandbox"
)

// SandboxCmd groups sandbox backend subcommands.
type SandboxCmd struct {
	Probe SandboxProbeCmd `cmd:"" help:"Show the sandbox backend selected for this platform."`
	Exec  SandboxExecCmd  `cmd:"" help:"Resolve and print a command's sandboxed invocation without running it."`
}

// SandboxProbeCmd prints the backend id that would be selected for
// the current runtime.
type SandboxProbeCmd struct{}

func (c *SandboxProbeCmd) Run(cli *CLI) error {
	backend := sandbox.SelectForRuntime()
	fmt.Println(backend.ID())
	return nil
}

// SandboxExecCmd resolves a command's sandboxed invocation for the
// given work unit's worktree and prints the resolved plan without
// running it, so operators can inspect what would execute.
type SandboxExecCmd struct {
	WUID    string   `arg:"" help:"Work unit id whose worktree scopes the sandbox profile."`
	Command []string `arg:"" help:"Command and arguments to resolve." optional:""`
	Fallback bool `name:"allow-unsandboxed-fallback" help:"Allow falling back to unsandboxed execution if the backend cannot enforce isolation."`
}

func (c *SandboxExecCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	worktreePath := filepath.Join(a.cfg.SoftwareDelivery.Directories.WorktreesRoot, c.WUID)
	profile := sandbox.Profile{
		ProjectRoot:        cli.ProjectRoot,
		WorktreePath:       worktreePath,
		WUID:               c.WUID,
		ExtraWritableRoots: a.cfg.SoftwareDelivery.Sandbox.ExtraWritableRoots,
		DenyWritableRoots:  a.cfg.SoftwareDelivery.Sandbox.DenyWritableRoots,
	}
	if fallbackEnv := a.cfg.SoftwareDelivery.Sandbox.AllowUnsandboxedFallbackEnv; fallbackEnv != "" {
		if os.Getenv(fallbackEnv) != "" {
			c.Fallback = true
		}
	}

	plan, err := a.sandboxBack.ResolveExecution(sandbox.Request{
		Profile:                  profile,
		Command:                  c.Command,
		AllowUnsandboxedFallback: c.Fallback,
	})
	if err != nil {
		return err
	}
	a.metrics.ObserveSandboxInvocation(plan.BackendID, plan.Enforced)

	fmt.Printf("backend=%s enforced=%t fail_closed=%t\n", plan.BackendID, plan.Enforced, plan.FailClosed)
	if plan.Warning != "" {
		fmt.Printf("warning: %s\n", plan.Warning)
	}
	if plan.Invocation != nil {
		fmt.Println(strings.Join(plan.Invocation.Argv, " "))
	}
	return nil
}
