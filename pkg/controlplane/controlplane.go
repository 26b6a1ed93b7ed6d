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

// Package controlplane mirrors workspace lifecycle events to an
// optional remote collector, fire-and-forget: a workspace that never
// configures "software_delivery.control_plane" behaves exactly as if
// the package did not exist (SPEC_FULL.md Part E item 3, "drop with
// recorded signal" rather than blocking local operations on a remote
// call).
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lumenflow/lumenflow/pkg/retry"
)

// Event is the envelope pushed to the control plane for every event
// log append (pkg/eventlog.Event, flattened for transport).
type Event struct {
	WUID      string            `json:"wu_id"`
	Type      string            `json:"type"`
	Status    string            `json:"status,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Lane      string            `json:"lane,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Config configures the remote mirror.
type Config struct {
	Enabled     bool
	Endpoint    string
	TokenEnvVar string
	Timeout     time.Duration
}

// Sink pushes events to the configured HTTP endpoint, bearer-token
// authenticated, retrying transient failures and dropping (with a
// logged signal) once retries are exhausted.
type Sink struct {
	cfg     Config
	client  *http.Client
	retryer *retry.Retryer
	onDrop  func(Event, error)
}

// NewSink constructs a Sink. A disabled or endpoint-less config
// yields a Sink whose Push is a no-op, so callers never need to
// branch on whether the control plane is configured.
func NewSink(cfg Config, opts ...Option) *Sink {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	s := &Sink{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		retryer: retry.New(retry.DefaultConfig()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a Sink.
type Option func(*Sink)

// WithOnDrop registers a callback invoked when an event is dropped
// after retry exhaustion, so callers can surface it as a recovery
// audit signal instead of losing it silently.
func WithOnDrop(fn func(Event, error)) Option {
	return func(s *Sink) { s.onDrop = fn }
}

// Enabled reports whether the sink is configured to push anywhere.
func (s *Sink) Enabled() bool {
	return s.cfg.Enabled && s.cfg.Endpoint != ""
}

// Push mirrors ev to the control plane. It never returns an error to
// the caller — local operations never block on remote availability —
// but it logs and invokes onDrop when the push ultimately fails.
func (s *Sink) Push(ctx context.Context, ev Event) {
	if !s.Enabled() {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		slog.Error("control plane: failed to marshal event", "error", err)
		return
	}

	token := os.Getenv(s.cfg.TokenEnvVar)

	// A 4xx response is reported back to the caller as a dropped event,
	// but it must not consume the retry budget: the retryer only sees
	// transient (5xx/429) failures as errors, so it stops after a
	// single attempt instead of retrying a request the endpoint will
	// never accept.
	var rejected error
	err = s.retryer.Do(ctx, "controlplane.push", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("control plane returned %s", resp.Status)
		}
		if resp.StatusCode >= 400 {
			rejected = &nonRetryable{status: resp.Status}
			return nil
		}
		return nil
	})

	if err == nil {
		err = rejected
	}

	if err != nil {
		slog.Warn("control plane: dropping event after failed push", "wu_id", ev.WUID, "type", ev.Type, "error", err)
		if s.onDrop != nil {
			s.onDrop(ev, err)
		}
	}
}

// nonRetryable wraps a client error (4xx) that the retryer should not
// keep retrying.
type nonRetryable struct{ status string }

func (e *nonRetryable) Error() string { return "control plane rejected event: " + e.status }
