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

	"golang.org/x/sync/errgroup"

	"github.com/lumenflow/lumenflow/pkg/eventlog"
	"github.com/lumenflow/lumenflow/pkg/projector"
	"github.com/lumenflow/lumenflow/pkg/wu"
)

// ProjectCmd groups status board and backlog projection subcommands.
type ProjectCmd struct {
	Board   ProjectBoardCmd   `cmd:"" help:"Regenerate the status board from current WU state."`
	Backlog ProjectBacklogCmd `cmd:"" help:"Regenerate the backlog from current WU state."`
}

// statusHeading maps a WU's materialised status to the board heading
// it is projected under.
var statusHeading = map[eventlog.Status]string{
	eventlog.StatusReady:      "Ready",
	eventlog.StatusInProgress: "In Progress",
	eventlog.StatusBlocked:    "Blocked",
	eventlog.StatusDone:       "Done",
	eventlog.StatusCancelled:  "Cancelled",
}

// ProjectBoardCmd rewrites the status board Markdown file in place,
// moving every work unit to the heading matching its current
// materialised status.
type ProjectBoardCmd struct{}

func (c *ProjectBoardCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	statusPath := filepath.Join(cli.ProjectRoot, a.cfg.SoftwareDelivery.Directories.StatusPath)
	if err := projectBoard(a, cli.ProjectRoot, statusPath); err != nil {
		return err
	}
	fmt.Printf("status board updated: %s\n", statusPath)
	return nil
}

// ProjectBacklogCmd rewrites the backlog Markdown file in place,
// dropping any work unit that has reached a terminal status (done or
// cancelled) rather than moving it to a closing heading, since the
// backlog tracks only outstanding work.
type ProjectBacklogCmd struct{}

func (c *ProjectBacklogCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	backlogPath := filepath.Join(cli.ProjectRoot, a.cfg.SoftwareDelivery.Directories.BacklogPath)
	if err := projectBacklog(a, cli.ProjectRoot, backlogPath); err != nil {
		return err
	}
	fmt.Printf("backlog updated: %s\n", backlogPath)
	return nil
}

// projectBoard regenerates the status board at statusPath, moving
// every declared work unit to the heading matching its current
// materialised status. It is a pure rewrite: unrelated prose and
// heading order are preserved (pkg/projector.Parse/Render), and the
// file is left untouched when nothing changed
// (projector.WriteIfChanged).
func projectBoard(a *app, projectRoot, statusPath string) error {
	specs, err := wu.LoadAll(filepath.Join(projectRoot, a.cfg.SoftwareDelivery.Directories.WUDir))
	if err != nil {
		return err
	}

	existing, err := os.ReadFile(statusPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read status board: %w", err)
	}
	doc := projector.Parse(string(existing))
	if len(doc.Order) == 0 {
		doc.Order = []string{"Ready", "In Progress", "Blocked", "Done", "Cancelled"}
	}

	for _, spec := range specs {
		status, err := a.wu.Status(spec.ID)
		if err != nil {
			return err
		}
		heading, ok := statusHeading[status]
		if !ok {
			continue
		}
		line := fmt.Sprintf("- %s: %s", spec.ID, spec.Title)
		doc.MoveItem(spec.ID, currentHeading(doc, spec.ID), heading, line)
	}

	return projector.WriteIfChanged(statusPath, doc.Render())
}

// projectBacklog regenerates the backlog at backlogPath: work units
// that are still outstanding (ready/in_progress/blocked) are moved to
// the heading matching their status, exactly as the board is; work
// units that have reached done/cancelled are removed from every
// section entirely, since the backlog only tracks outstanding work
// (spec.md §8 scenario 1: "backlog removes it from 'In Progress'").
func projectBacklog(a *app, projectRoot, backlogPath string) error {
	specs, err := wu.LoadAll(filepath.Join(projectRoot, a.cfg.SoftwareDelivery.Directories.WUDir))
	if err != nil {
		return err
	}

	existing, err := os.ReadFile(backlogPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read backlog: %w", err)
	}
	doc := projector.Parse(string(existing))
	if len(doc.Order) == 0 {
		doc.Order = []string{"Ready", "In Progress", "Blocked"}
	}

	for _, spec := range specs {
		status, err := a.wu.Status(spec.ID)
		if err != nil {
			return err
		}
		if status == eventlog.StatusDone || status == eventlog.StatusCancelled {
			doc.RemoveEverywhere(spec.ID)
			continue
		}
		heading, ok := statusHeading[status]
		if !ok {
			continue
		}
		line := fmt.Sprintf("- %s: %s", spec.ID, spec.Title)
		doc.MoveItem(spec.ID, currentHeading(doc, spec.ID), heading, line)
	}

	return projector.WriteIfChanged(backlogPath, doc.Render())
}

// regenerateProjections rewrites the status board and backlog in
// parallel: each reads the WU specs and replays the event log
// independently and writes to its own file, so the two regenerations
// have no shared mutable state and join on an errgroup.Group rather
// than running back to back.
func regenerateProjections(a *app, projectRoot string) error {
	statusPath := filepath.Join(projectRoot, a.cfg.SoftwareDelivery.Directories.StatusPath)
	backlogPath := filepath.Join(projectRoot, a.cfg.SoftwareDelivery.Directories.BacklogPath)

	var g errgroup.Group
	g.Go(func() error { return projectBoard(a, projectRoot, statusPath) })
	g.Go(func() error { return projectBacklog(a, projectRoot, backlogPath) })
	return g.Wait()
}

// currentHeading returns the heading id is currently listed under, or
// "" if it is not present in doc yet.
func currentHeading(doc *projector.Document, id string) string {
	for heading, ids := range doc.Sections {
		for _, existing := range ids {
			if existing == id {
				return heading
			}
		}
	}
	return ""
}
