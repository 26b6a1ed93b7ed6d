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

// Package provider defines the config source abstraction LumenFlow's
// config loader reads from. Only the file provider exists; any other
// provider type is rejected with an error (see DESIGN.md).
package provider

import (
	"context"
	"fmt"
)

// Type identifies the config source type.
type Type string

const (
	TypeFile Type = "file"
)

// ParseType converts a string to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "file", "":
		return TypeFile, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// Provider abstracts config sources. Implementations must be safe
// for concurrent use.
type Provider interface {
	// Type returns the provider type for logging/debugging.
	Type() Type
	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)
	// Watch starts watching for changes and signals via the returned
	// channel. Returns a nil channel if watching is not supported.
	Watch(ctx context.Context) (<-chan struct{}, error)
	// Close releases any resources held by the provider.
	Close() error
}

// Config configures provider creation.
type Config struct {
	Type Type
	Path string
}

// New creates a Provider based on Config.
func New(cfg Config) (Provider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	switch cfg.Type {
	case TypeFile, "":
		return NewFileProvider(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
