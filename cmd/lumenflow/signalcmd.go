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

	"github.com/lumenflow/lumenflow/pkg/signal"
)

// SignalCmd groups signal bus subcommands.
type SignalCmd struct {
	Send  SignalSendCmd  `cmd:"" help:"Append a signal to the bus."`
	Watch SignalWatchCmd `cmd:"" help:"Watch the bus for new signals."`
}

// SignalSendCmd appends a new message signal.
type SignalSendCmd struct {
	Message  string `arg:"" help:"Signal message."`
	Type     string `help:"Signal type." default:"message"`
	Severity string `help:"Signal severity (info, warning, error, critical)." default:"info"`
	WUID     string `help:"Work unit this signal concerns."`
	Lane     string `help:"Lane this signal concerns."`
}

func (c *SignalSendCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	id, err := a.signals.Create(signal.CreateOptions{
		Message:  c.Message,
		Type:     c.Type,
		Severity: signal.Severity(c.Severity),
		WUID:     c.WUID,
		Lane:     c.Lane,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// SignalWatchCmd blocks, printing signals as they are appended.
type SignalWatchCmd struct{}

func (c *SignalWatchCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	w, err := signal.NewWatcher(a.signals)
	if err != nil {
		return err
	}
	defer w.Stop()

	dir := a.cfg.MemoryDir()
	fmt.Println("watching for signals, press ctrl-c to stop")
	return w.Start(context.Background(), dir, func(batch []signal.Signal) {
		for _, s := range batch {
			fmt.Printf("%s  type=%s  severity=%s  wu=%s\n", s.ID, s.Type, s.Severity, s.WUID)
		}
	})
}
