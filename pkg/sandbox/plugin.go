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

package sandbox

import (
	"encoding/gob"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// PluginBackend dispenses sandbox resolution to an out-of-process
// plugin binary over go-plugin's net/rpc transport, for
// organisations that want to supply a proprietary or
// platform-specific isolation backend without forking LumenFlow.
// Grounded on the teacher's pkg/plugins/grpc.GRPCLoader, simplified
// from gRPC to net/rpc since ResolveExecution's request/response
// shapes are small, already-gob-encodable values.
type PluginBackend struct {
	id     string
	client *plugin.Client
	impl   BackendRPC
}

// BackendRPC is the interface a sandbox plugin binary implements and
// exposes via net/rpc.
type BackendRPC interface {
	ResolveExecution(req Request, resp *Plan) error
}

// Handshake is the magic-cookie handshake every LumenFlow sandbox
// plugin must match, mirroring the teacher's plugin handshake
// pattern (pkg/plugins/grpc.handshakeConfig) with LumenFlow's own
// cookie key/value so a hector plugin binary can never be loaded by
// mistake.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "LUMENFLOW_SANDBOX_PLUGIN",
	MagicCookieValue: "lumenflow_sandbox_v1",
}

func init() {
	gob.Register(Request{})
	gob.Register(Plan{})
}

// BackendPlugin is the go-plugin Plugin implementation both the host
// and the plugin binary link against.
type BackendPlugin struct {
	Impl BackendRPC
}

func (p *BackendPlugin) Server(*plugin.MuxBroker) (any, error) {
	return &backendRPCServer{impl: p.Impl}, nil
}

func (p *BackendPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (any, error) {
	return &backendRPCClient{client: c}, nil
}

type backendRPCServer struct {
	impl BackendRPC
}

func (s *backendRPCServer) ResolveExecution(req Request, resp *Plan) error {
	return s.impl.ResolveExecution(req, resp)
}

type backendRPCClient struct {
	client *rpc.Client
}

func (c *backendRPCClient) ResolveExecution(req Request, resp *Plan) error {
	return c.client.Call("Plugin.ResolveExecution", req, resp)
}

// LoadPluginBackend launches the plugin binary at path and returns a
// Backend that proxies ResolveExecution calls to it. The returned
// Backend's Close must be called to kill the plugin subprocess.
func LoadPluginBackend(id, path string) (*PluginBackend, error) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "lumenflow-sandbox-plugin",
		Level: hclog.Warn,
	})

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			"sandbox": &BackendPlugin{},
		},
		Cmd:              exec.Command(path),
		Logger:           logger,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("connect to sandbox plugin %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense("sandbox")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense sandbox plugin %s: %w", path, err)
	}

	impl, ok := raw.(BackendRPC)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("sandbox plugin %s does not implement BackendRPC", path)
	}

	return &PluginBackend{id: id, client: client, impl: impl}, nil
}

func (b *PluginBackend) ID() string { return b.id }

func (b *PluginBackend) ResolveExecution(req Request) (*Plan, error) {
	var resp Plan
	if err := b.impl.ResolveExecution(req, &resp); err != nil {
		return nil, fmt.Errorf("plugin sandbox resolve: %w", err)
	}
	return &resp, nil
}

// Close kills the plugin subprocess.
func (b *PluginBackend) Close() {
	b.client.Kill()
}

var _ Backend = (*PluginBackend)(nil)
