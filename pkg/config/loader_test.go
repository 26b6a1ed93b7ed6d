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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenflow/lumenflow/pkg/config/provider"
)

func TestLoadFile_MissingFileYieldsAllDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, loader, err := LoadFile(context.Background(), filepath.Join(dir, "lumenflow.yaml"))
	require.NoError(t, err)
	defer loader.Close()

	assert.Equal(t, ".lumenflow", cfg.SoftwareDelivery.Directories.OperationsRoot)
	assert.Equal(t, "main", cfg.SoftwareDelivery.Git.MainBranch)
}

func TestLoadFile_ParsesAndDecodesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumenflow.yaml")
	content := `
software_delivery:
  owner_email: team@example.com
  git:
    mainBranch: trunk
  lanes:
    backend:
      lock_policy: active
      wip_limit: 2
  wu:
    brief:
      policyMode: required
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, loader, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	defer loader.Close()

	assert.Equal(t, "team@example.com", cfg.SoftwareDelivery.OwnerEmail)
	assert.Equal(t, "trunk", cfg.SoftwareDelivery.Git.MainBranch)
	assert.Equal(t, "origin", cfg.SoftwareDelivery.Git.DefaultRemote) // still defaulted
	require.Contains(t, cfg.SoftwareDelivery.Lanes, "backend")
	assert.Equal(t, "active", cfg.SoftwareDelivery.Lanes["backend"].LockPolicy)
	assert.Equal(t, 2, cfg.SoftwareDelivery.Lanes["backend"].WIPLimit)
	assert.Equal(t, "required", cfg.SoftwareDelivery.WU.Brief.PolicyMode)
}

func TestLoadFile_InvalidConfigFailsValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumenflow.yaml")
	content := `
software_delivery:
  lanes:
    backend:
      lock_policy: sometimes
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, _, err := LoadFile(context.Background(), path)
	require.Error(t, err)
}

func TestLoader_Watch_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumenflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("software_delivery:\n  owner_email: a@example.com\n"), 0o644))

	p, err := provider.NewFileProvider(path)
	require.NoError(t, err)
	defer p.Close()

	reloaded := make(chan *Config, 1)
	loader := NewLoader(p, WithOnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go loader.Watch(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("software_delivery:\n  owner_email: b@example.com\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "b@example.com", cfg.SoftwareDelivery.OwnerEmail)
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("timed out waiting for config reload")
	}
}
