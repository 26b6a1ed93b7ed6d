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

	"github.com/lumenflow/lumenflow/pkg/lanes"
)

// LaneCmd groups lane lock and WIP subcommands.
type LaneCmd struct {
	Status LaneStatusCmd `cmd:"" help:"Show current holders of a lane."`
}

// LaneStatusCmd lists the active/stale holders of a lane.
type LaneStatusCmd struct {
	Lane string `arg:"" help:"Lane name, e.g. backend."`
}

func (c *LaneStatusCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	holders, err := a.lanes.Holders(c.Lane)
	if err != nil {
		return err
	}
	idx, err := laneIndex(cli, a)
	if err != nil {
		return err
	}
	var inLane []lanes.Holder
	for _, h := range holders {
		if lanes.ParentLane(idx[h.WUID]) == h.Lane {
			inLane = append(inLane, h)
		}
	}
	holders = inLane
	if len(holders) == 0 {
		fmt.Printf("lane %s: no holders\n", c.Lane)
		return nil
	}
	for _, h := range holders {
		stale := ""
		if h.Stale {
			stale = " (stale)"
			a.metrics.ObserveLockConflict(c.Lane)
		}
		fmt.Printf("%s  claimed_at=%s%s\n", h.WUID, h.ClaimedAt.Format("2006-01-02T15:04:05Z"), stale)
	}
	return nil
}
