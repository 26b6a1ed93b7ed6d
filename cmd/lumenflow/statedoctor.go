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
	"sort"

	"github.com/lumenflow/lumenflow/pkg/lanes"
)

// DoctorCmd groups workspace diagnostic and repair subcommands. It
// never rewrites event log history (the log is append-only by
// design, spec.md §9); repair means reconciling derived state — the
// delegation registry's legacy filename, and reporting (not fixing)
// lock staleness for an operator to act on.
type DoctorCmd struct {
	Check   DoctorCheckCmd   `cmd:"" help:"Replay the event log and report per-status counts and stale lane holders."`
	Migrate DoctorMigrateCmd `cmd:"" help:"Migrate the legacy spawn-registry file forward if present."`
}

// DoctorCheckCmd replays the full event log and summarises it.
type DoctorCheckCmd struct {
	Lanes []string `help:"Lanes to check for stale holders."`
}

func (c *DoctorCheckCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	states, err := a.log.Replay()
	if err != nil {
		return fmt.Errorf("replay event log: %w", err)
	}

	counts := map[string]int{}
	for _, st := range states {
		counts[string(st.Status)]++
	}
	var statuses []string
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	fmt.Printf("%d work units tracked\n", len(states))
	for _, status := range statuses {
		fmt.Printf("  %-12s %d\n", status, counts[status])
	}

	idx, err := laneIndex(cli, a)
	if err != nil {
		return err
	}
	for _, lane := range c.Lanes {
		holders, err := a.lanes.Holders(lane)
		if err != nil {
			return fmt.Errorf("lane %s: %w", lane, err)
		}
		for _, h := range holders {
			if h.Stale && lanes.ParentLane(idx[h.WUID]) == h.Lane {
				fmt.Printf("stale holder: %s lane=%s claimed_at=%s\n", h.WUID, lane, h.ClaimedAt.Format("2006-01-02T15:04:05Z"))
			}
		}
	}
	return nil
}

// DoctorMigrateCmd runs the one-time legacy spawn-registry migration.
type DoctorMigrateCmd struct{}

func (c *DoctorMigrateCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	if err := a.delegation.Migrate(a.cfg.LegacySpawnRegistryPath()); err != nil {
		return err
	}
	fmt.Println("legacy spawn registry migration complete")
	return nil
}
