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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenflow/lumenflow/pkg/lanes"
	"github.com/lumenflow/lumenflow/pkg/lferrors"
	"github.com/lumenflow/lumenflow/pkg/policy"
)

func TestSetDefaults_FillsDocumentedPaths(t *testing.T) {
	c := &Config{}
	c.SetDefaults()

	d := c.SoftwareDelivery.Directories
	assert.Equal(t, ".lumenflow", d.OperationsRoot)
	assert.Equal(t, "docs/tasks/wu", d.WUDir)
	assert.Equal(t, "docs/tasks/backlog.md", d.BacklogPath)
	assert.Equal(t, "docs/tasks/status.md", d.StatusPath)
	assert.Equal(t, ".lumenflow/worktrees", d.WorktreesRoot)

	g := c.SoftwareDelivery.Git
	assert.Equal(t, "main", g.MainBranch)
	assert.Equal(t, "origin", g.DefaultRemote)
	assert.Equal(t, "lane/", g.LaneBranchPrefix)
	assert.Equal(t, 50, g.MaxBranchDrift)

	assert.Equal(t, string(policy.BriefOff), c.SoftwareDelivery.WU.Brief.PolicyMode)
	assert.Equal(t, "LUMENFLOW_CONTROL_PLANE_TOKEN", c.SoftwareDelivery.ControlPlane.TokenEnvVar)
}

func TestSetDefaults_DoesNotOverrideExplicitValues(t *testing.T) {
	c := &Config{}
	c.SoftwareDelivery.Git.MainBranch = "trunk"
	c.SetDefaults()
	assert.Equal(t, "trunk", c.SoftwareDelivery.Git.MainBranch)
}

func TestDerivedPaths_JoinOperationsRoot(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	assert.Equal(t, ".lumenflow/state/wu-events.jsonl", c.EventLogPath())
	assert.Equal(t, ".lumenflow/state/delegation-registry.jsonl", c.DelegationRegistryPath())
	assert.Equal(t, ".lumenflow/state/spawn-registry.jsonl", c.LegacySpawnRegistryPath())
	assert.Equal(t, ".lumenflow/memory", c.MemoryDir())
	assert.Equal(t, ".lumenflow/stamps", c.StampsDir())
	assert.Equal(t, ".lumenflow/recovery", c.RecoveryDir())
}

func TestValidate_RejectsUnknownLockPolicy(t *testing.T) {
	c := &Config{}
	c.SoftwareDelivery.Lanes = map[string]Lane{"backend": {LockPolicy: "sometimes"}}
	err := c.Validate()
	require.Error(t, err)
	assert.Equal(t, lferrors.KindValidation, lferrors.KindOf(err))
}

func TestValidate_RejectsNegativeWIPLimit(t *testing.T) {
	c := &Config{}
	c.SoftwareDelivery.Lanes = map[string]Lane{"backend": {LockPolicy: "all", WIPLimit: -1}}
	err := c.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsUnknownBriefPolicyMode(t *testing.T) {
	c := &Config{}
	c.SoftwareDelivery.WU.Brief.PolicyMode = "sometimes"
	err := c.Validate()
	require.Error(t, err)
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	c := &Config{}
	c.SoftwareDelivery.Lanes = map[string]Lane{"backend": {LockPolicy: "active", WIPLimit: 2}}
	c.SoftwareDelivery.WU.Brief.PolicyMode = "required"
	assert.NoError(t, c.Validate())
}

func TestLane_ToLanesConfig_DefaultsToAll(t *testing.T) {
	l := Lane{WIPLimit: 3}
	lc := l.ToLanesConfig()
	assert.Equal(t, lanes.PolicyAll, lc.LockPolicy)
	assert.Equal(t, 3, lc.WIPLimit)
}

func TestLanesConfig_ConvertsDeclaredLanes(t *testing.T) {
	c := &Config{}
	c.SoftwareDelivery.Lanes = map[string]Lane{
		"backend":  {LockPolicy: "active", WIPLimit: 2},
		"frontend": {LockPolicy: "none", WIPLimit: 1},
	}
	out := c.LanesConfig()
	require.Len(t, out, 2)
	assert.Equal(t, lanes.PolicyActive, out["backend"].LockPolicy)
	assert.Equal(t, lanes.PolicyNone, out["frontend"].LockPolicy)
}

func TestBriefPolicy_DefaultsToOff(t *testing.T) {
	c := &Config{}
	assert.Equal(t, policy.BriefOff, c.BriefPolicy())

	c.SoftwareDelivery.WU.Brief.PolicyMode = "required"
	assert.Equal(t, policy.BriefRequired, c.BriefPolicy())
}
