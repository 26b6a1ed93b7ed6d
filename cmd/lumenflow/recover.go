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
)

// RecoverCmd groups stuck-delegation recovery subcommands.
type RecoverCmd struct {
	Classify RecoverClassifyCmd `cmd:"" help:"Classify why a delegation appears stuck."`
	Escalate RecoverEscalateCmd `cmd:"" help:"Escalate a stuck delegation."`
	Audits   RecoverAuditsCmd   `cmd:"" help:"List prior escalation audit records."`
}

// RecoverClassifyCmd prints a delegation's stuck classification.
type RecoverClassifyCmd struct {
	ID string `arg:"" help:"Delegation id, e.g. dlg-a1b2."`
}

func (c *RecoverClassifyCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	class, err := a.recovery.Classify(c.ID)
	if err != nil {
		return err
	}
	fmt.Println(class)
	return nil
}

// RecoverEscalateCmd escalates a stuck delegation, emitting a
// spawn_failure signal and an audit record.
type RecoverEscalateCmd struct {
	ID string `arg:"" help:"Delegation id, e.g. dlg-a1b2."`
}

func (c *RecoverEscalateCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	record, err := a.recovery.Escalate(c.ID)
	if err != nil {
		return err
	}
	a.metrics.ObserveEscalation(string(record.Classification), string(record.Severity))
	fmt.Printf("%s escalated: classification=%s severity=%s action=%s\n",
		record.DelegationID, record.Classification, record.Severity, record.SuggestedAction)
	return nil
}

// RecoverAuditsCmd lists a delegation's recorded escalation history.
type RecoverAuditsCmd struct {
	ID string `arg:"" help:"Delegation id, e.g. dlg-a1b2."`
}

func (c *RecoverAuditsCmd) Run(cli *CLI) error {
	a, loader, err := loadApp(context.Background(), cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()
	audits, err := a.recovery.ListAudits(c.ID)
	if err != nil {
		return err
	}
	if len(audits) == 0 {
		fmt.Printf("no audits for %s\n", c.ID)
		return nil
	}
	for _, rec := range audits {
		fmt.Printf("%s  classification=%s severity=%s prior=%d\n",
			rec.Timestamp.Format("2006-01-02T15:04:05Z"), rec.Classification, rec.Severity, rec.PriorEscalations)
	}
	return nil
}
