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

// Package config resolves a LumenFlow workspace's configuration: the
// directory layout, git policy, sandbox policy, lane policies, brief
// policy and optional control-plane mirror (spec.md §6). The loaded
// Config is an immutable, per-workspace value threaded through APIs —
// there is no process-wide mutable singleton (spec.md §9 "Global
// config cache").
package config

import (
	"github.com/lumenflow/lumenflow/pkg/lanes"
	"github.com/lumenflow/lumenflow/pkg/lferrors"
	"github.com/lumenflow/lumenflow/pkg/policy"
)

// Directories holds the workspace's file layout
// ("software_delivery.directories").
type Directories struct {
	WUDir            string `yaml:"wuDir"`
	BacklogPath      string `yaml:"backlogPath"`
	StatusPath       string `yaml:"statusPath"`
	InitiativesDir   string `yaml:"initiativesDir"`
	PlansDir         string `yaml:"plansDir"`
	TemplatesDir     string `yaml:"templatesDir"`
	OnboardingDir    string `yaml:"onboardingDir"`
	CompleteGuidePath string `yaml:"completeGuidePath"`
	OperationsRoot   string `yaml:"operationsRoot"`
	WorktreesRoot    string `yaml:"worktreesRoot"`
}

// Git holds the workspace's VCS policy
// ("software_delivery.git").
type Git struct {
	MainBranch                 string   `yaml:"mainBranch"`
	DefaultRemote               string   `yaml:"defaultRemote"`
	RequireRemote                bool     `yaml:"requireRemote"`
	AgentBranchPatterns          []string `yaml:"agentBranchPatterns"`
	LaneBranchPrefix             string   `yaml:"laneBranchPrefix"`
	MaxBranchDrift                int      `yaml:"maxBranchDrift"`
	DisableAgentPatternRegistry bool     `yaml:"disableAgentPatternRegistry"`
}

// Sandbox holds the workspace's sandbox policy
// ("software_delivery.sandbox").
type Sandbox struct {
	AllowUnsandboxedFallbackEnv string   `yaml:"allow_unsandboxed_fallback_env"`
	ExtraWritableRoots          []string `yaml:"extra_writable_roots"`
	DenyWritableRoots           []string `yaml:"deny_writable_roots"`
}

// Lane mirrors pkg/lanes.Config with YAML tags for
// "software_delivery.lanes.<name>".
type Lane struct {
	LockPolicy string `yaml:"lock_policy"`
	WIPLimit   int    `yaml:"wip_limit"`
}

// ToLanesConfig converts the declared policy string to pkg/lanes.Config.
func (l Lane) ToLanesConfig() lanes.Config {
	policyVal := lanes.PolicyAll
	switch l.LockPolicy {
	case string(lanes.PolicyNone):
		policyVal = lanes.PolicyNone
	case string(lanes.PolicyActive):
		policyVal = lanes.PolicyActive
	case string(lanes.PolicyAll), "":
		policyVal = lanes.PolicyAll
	}
	return lanes.Config{LockPolicy: policyVal, WIPLimit: l.WIPLimit}
}

// Brief holds "software_delivery.wu.brief".
type Brief struct {
	PolicyMode string `yaml:"policyMode"`
}

// ControlPlane holds the optional remote mirror
// ("software_delivery.control_plane").
type ControlPlane struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	TokenEnvVar  string `yaml:"tokenEnvVar"`
	PostgresDSN  string `yaml:"postgresDsn"`
}

// WU holds "software_delivery.wu".
type WU struct {
	Brief Brief `yaml:"brief"`
}

// SoftwareDelivery is the top-level "software_delivery" section.
type SoftwareDelivery struct {
	Directories Directories     `yaml:"directories"`
	Git         Git             `yaml:"git"`
	Sandbox     Sandbox         `yaml:"sandbox"`
	OwnerEmail  string          `yaml:"owner_email"`
	Lanes       map[string]Lane `yaml:"lanes"`
	WU          WU              `yaml:"wu"`
	ControlPlane ControlPlane   `yaml:"control_plane"`
}

// Config is the fully resolved, decoded and defaulted workspace
// configuration.
type Config struct {
	SoftwareDelivery SoftwareDelivery `yaml:"software_delivery"`
}

// LanesConfig converts the declared lane policies into the map
// pkg/lanes.NewManager expects.
func (c *Config) LanesConfig() map[string]lanes.Config {
	out := make(map[string]lanes.Config, len(c.SoftwareDelivery.Lanes))
	for name, l := range c.SoftwareDelivery.Lanes {
		out[name] = l.ToLanesConfig()
	}
	return out
}

// BriefPolicy converts the declared brief policy mode string to
// pkg/policy.BriefPolicyMode, defaulting to "off".
func (c *Config) BriefPolicy() policy.BriefPolicyMode {
	switch c.SoftwareDelivery.WU.Brief.PolicyMode {
	case string(policy.BriefManual):
		return policy.BriefManual
	case string(policy.BriefAuto):
		return policy.BriefAuto
	case string(policy.BriefRequired):
		return policy.BriefRequired
	default:
		return policy.BriefOff
	}
}

// SetDefaults fills in every zero-valued field with its documented
// default (spec.md §6 "Files on disk" defaults).
func (c *Config) SetDefaults() {
	d := &c.SoftwareDelivery.Directories
	if d.OperationsRoot == "" {
		d.OperationsRoot = ".lumenflow"
	}
	if d.WUDir == "" {
		d.WUDir = "docs/tasks/wu"
	}
	if d.BacklogPath == "" {
		d.BacklogPath = "docs/tasks/backlog.md"
	}
	if d.StatusPath == "" {
		d.StatusPath = "docs/tasks/status.md"
	}
	if d.InitiativesDir == "" {
		d.InitiativesDir = "docs/tasks/initiatives"
	}
	if d.PlansDir == "" {
		d.PlansDir = "docs/tasks/plans"
	}
	if d.TemplatesDir == "" {
		d.TemplatesDir = "docs/tasks/templates"
	}
	if d.OnboardingDir == "" {
		d.OnboardingDir = "docs/tasks/onboarding"
	}
	if d.CompleteGuidePath == "" {
		d.CompleteGuidePath = "docs/tasks/GUIDE.md"
	}
	if d.WorktreesRoot == "" {
		d.WorktreesRoot = ".lumenflow/worktrees"
	}

	g := &c.SoftwareDelivery.Git
	if g.MainBranch == "" {
		g.MainBranch = "main"
	}
	if g.DefaultRemote == "" {
		g.DefaultRemote = "origin"
	}
	if g.LaneBranchPrefix == "" {
		g.LaneBranchPrefix = "lane/"
	}
	if g.MaxBranchDrift == 0 {
		g.MaxBranchDrift = 50
	}

	s := &c.SoftwareDelivery.Sandbox
	if s.AllowUnsandboxedFallbackEnv == "" {
		s.AllowUnsandboxedFallbackEnv = "LUMENFLOW_SANDBOX_ALLOW_UNSANDBOXED"
	}

	if c.SoftwareDelivery.WU.Brief.PolicyMode == "" {
		c.SoftwareDelivery.WU.Brief.PolicyMode = string(policy.BriefOff)
	}
	if c.SoftwareDelivery.ControlPlane.TokenEnvVar == "" {
		c.SoftwareDelivery.ControlPlane.TokenEnvVar = "LUMENFLOW_CONTROL_PLANE_TOKEN"
	}
}

// EventLogPath returns the event log's path under the operations root.
func (c *Config) EventLogPath() string {
	return c.SoftwareDelivery.Directories.OperationsRoot + "/state/wu-events.jsonl"
}

// DelegationRegistryPath returns the delegation registry's current
// on-disk path (spec.md §9, Resolved Open Question 2).
func (c *Config) DelegationRegistryPath() string {
	return c.SoftwareDelivery.Directories.OperationsRoot + "/state/delegation-registry.jsonl"
}

// LegacySpawnRegistryPath returns the historic spawn-registry
// filename consulted once on migration.
func (c *Config) LegacySpawnRegistryPath() string {
	return c.SoftwareDelivery.Directories.OperationsRoot + "/state/spawn-registry.jsonl"
}

// MemoryDir returns the directory holding memory.jsonl,
// relationships.jsonl and signals.jsonl.
func (c *Config) MemoryDir() string {
	return c.SoftwareDelivery.Directories.OperationsRoot + "/memory"
}

// StampsDir returns the directory holding completion stamp files.
func (c *Config) StampsDir() string {
	return c.SoftwareDelivery.Directories.OperationsRoot + "/stamps"
}

// RecoveryDir returns the directory holding recovery audit records.
func (c *Config) RecoveryDir() string {
	return c.SoftwareDelivery.Directories.OperationsRoot + "/recovery"
}

// Validate reports a structural error for any field that cannot be
// defaulted sensibly. Unknown keys are warned about during
// normalization (see normalize.go), never rejected here.
func (c *Config) Validate() error {
	for name, lane := range c.SoftwareDelivery.Lanes {
		switch lane.LockPolicy {
		case "", "none", "active", "all":
		default:
			return &lferrors.ValidationError{Field: "software_delivery.lanes." + name + ".lock_policy", Reason: "must be one of none, active, all"}
		}
		if lane.WIPLimit < 0 {
			return &lferrors.ValidationError{Field: "software_delivery.lanes." + name + ".wip_limit", Reason: "must be >= 0"}
		}
	}
	switch c.SoftwareDelivery.WU.Brief.PolicyMode {
	case "", "off", "manual", "auto", "required":
	default:
		return &lferrors.ValidationError{Field: "software_delivery.wu.brief.policyMode", Reason: "must be one of off, manual, auto, required"}
	}
	return nil
}
