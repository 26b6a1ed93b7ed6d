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

// Command lumenflow is the CLI front end for the LumenFlow
// governance kernel.
//
// Usage:
//
//	lumenflow wu claim WU-100 --actor agent-1
//	lumenflow lane status backend
//	lumenflow serve --addr :9090
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/lumenflow/lumenflow/pkg/lferrors"
	"github.com/lumenflow/lumenflow/pkg/logger"
)

// CLI defines the full command-line interface surface.
type CLI struct {
	WU       WUCmd       `cmd:"" help:"Work unit lifecycle transitions."`
	Lane     LaneCmd     `cmd:"" help:"Lane lock and WIP status."`
	Delegate DelegateCmd `cmd:"" help:"Delegation and spawn registry."`
	Recover  RecoverCmd  `cmd:"" help:"Stuck-spawn classification and escalation."`
	Memory   MemoryCmd   `cmd:"" help:"Memory node store and context assembly."`
	Signal   SignalCmd   `cmd:"" help:"Signal bus send and watch."`
	Project  ProjectCmd  `cmd:"" help:"Status board and backlog projection."`
	Sandbox  SandboxCmd  `cmd:"" help:"Sandbox backend selection and probing."`
	Serve    ServeCmd    `cmd:"" help:"Serve Prometheus metrics."`
	Doctor   DoctorCmd   `cmd:"" help:"Diagnose and repair workspace state."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config      string `short:"c" help:"Path to workspace config file." default:".lumenflow/config.yaml" type:"path"`
	ProjectRoot string `help:"Path to the project root (defaults to the current directory)." type:"path"`
	LogLevel    string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile     string `help:"Log file path (empty = stderr)."`
	LogFormat   string `help:"Log format (simple, verbose)." default:"simple"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("lumenflow dev")
	return nil
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("lumenflow"),
		kong.Description("LumenFlow governance kernel for AI coding agents"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = f
	}
	logger.Init(level, output, cli.LogFormat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Get().Info("received shutdown signal")
		os.Exit(130)
	}()

	if cli.ProjectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve working directory: %v\n", err)
			os.Exit(1)
		}
		cli.ProjectRoot = wd
	}

	err = kctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", kctx.Command(), err)
		os.Exit(lferrors.ExitCode(err))
	}
}
