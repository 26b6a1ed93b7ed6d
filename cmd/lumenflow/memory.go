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
	"time"

	"github.com/lumenflow/lumenflow/pkg/memory"
)

// MemoryCmd groups memory node store subcommands.
type MemoryCmd struct {
	Add     MemoryAddCmd     `cmd:"" help:"Append a memory node."`
	Query   MemoryQueryCmd   `cmd:"" help:"List ready nodes for a work unit."`
	Context MemoryContextCmd `cmd:"" help:"Render a deterministic context block for a work unit."`
}

// MemoryAddCmd appends a new memory observation.
type MemoryAddCmd struct {
	Type      string `arg:"" help:"Node type, e.g. discovery, summary, observation."`
	Content   string `arg:"" help:"Node content."`
	WUID      string `help:"Work unit this node is scoped to."`
	Lifecycle string `help:"Node lifecycle: project, session, wu, ephemeral." default:"wu"`
}

func (c *MemoryAddCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	now := time.Now().UTC()
	node := memory.Node{
		ID:        memory.NewID(c.Content),
		Type:      c.Type,
		Lifecycle: memory.Lifecycle(c.Lifecycle),
		Content:   c.Content,
		CreatedAt: now,
		WUID:      c.WUID,
	}
	if err := a.memory.Append(node); err != nil {
		return err
	}
	fmt.Println(node.ID)
	return nil
}

// MemoryQueryCmd lists unblocked, open nodes for a work unit, or
// searches node content across the whole store when --content is
// given.
type MemoryQueryCmd struct {
	WUID    string `arg:"" optional:"" help:"Work unit id. Omit when using --content."`
	Type    string `help:"Filter by node type."`
	Content string `help:"Search node content for this substring across the whole store, via the SQLite secondary index."`
}

func (c *MemoryQueryCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	if err := a.memory.Load(); err != nil {
		return err
	}

	if c.Content != "" {
		ids, err := a.memory.SearchContent(c.Content)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Printf("no nodes matching %q\n", c.Content)
			return nil
		}
		for _, id := range ids {
			n := a.memory.ByID(id)
			fmt.Printf("%s  type=%s  %s\n", n.ID, n.Type, n.Content)
		}
		return nil
	}

	nodes := a.memory.QueryReadyNodes(c.WUID, memory.ReadyOptions{Type: c.Type})
	if len(nodes) == 0 {
		fmt.Printf("no ready nodes for %s\n", c.WUID)
		return nil
	}
	for _, n := range nodes {
		fmt.Printf("%s  type=%s  %s\n", n.ID, n.Type, n.Content)
	}
	return nil
}

// MemoryContextCmd renders the fixed four-section context block used
// to prime a spawned agent.
type MemoryContextCmd struct {
	WUID        string `arg:"" help:"Work unit id."`
	SortByDecay bool   `name:"sort-by-decay" help:"Rank nodes by decay-weighted score instead of recency."`
	MaxSize     int    `name:"max-size" help:"Maximum rendered size in bytes." default:"4096"`
}

func (c *MemoryContextCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	if err := a.memory.Load(); err != nil {
		return err
	}
	out := a.memory.GenerateContext(memory.ContextOptions{
		WUID:        c.WUID,
		SortByDecay: c.SortByDecay,
		MaxSize:     c.MaxSize,
		TrackAccess: true,
	})
	fmt.Print(out)
	return nil
}
