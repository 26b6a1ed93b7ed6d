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

	"github.com/lumenflow/lumenflow/pkg/delegation"
)

// DelegateCmd groups delegation registry subcommands.
type DelegateCmd struct {
	Create DelegateCreateCmd `cmd:"" help:"Record a new delegation."`
	Pickup DelegatePickupCmd `cmd:"" help:"Record that a spawned agent picked up a delegation."`
	List   DelegateListCmd   `cmd:"" help:"List delegations for a target work unit."`
}

// DelegateCreateCmd records a new parent->child delegation.
type DelegateCreateCmd struct {
	Parent string `arg:"" help:"Parent work unit id."`
	Target string `arg:"" help:"Target work unit id being delegated."`
	Lane   string `help:"Lane the delegation is scoped to."`
}

func (c *DelegateCreateCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	id, err := a.delegation.Record(c.Parent, c.Target, c.Lane, delegation.IntentDelegation)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// DelegatePickupCmd closes a delegation's pickup handshake.
type DelegatePickupCmd struct {
	ID    string `arg:"" help:"Delegation id, e.g. dlg-a1b2."`
	Actor string `help:"Identity picking up the delegation." default:"cli"`
}

func (c *DelegatePickupCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	if err := a.delegation.Pickup(c.ID, c.Actor); err != nil {
		return err
	}
	fmt.Printf("%s picked up by %s\n", c.ID, c.Actor)
	return nil
}

// DelegateListCmd lists delegations targeting a work unit.
type DelegateListCmd struct {
	Target string `arg:"" help:"Target work unit id."`
}

func (c *DelegateListCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	records, err := a.delegation.ForTarget(c.Target)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("no delegations for %s\n", c.Target)
		return nil
	}
	for _, r := range records {
		fmt.Printf("%s  parent=%s  status=%s  intent=%s\n", r.ID, r.ParentWUID, r.Status, r.Intent)
	}
	return nil
}
