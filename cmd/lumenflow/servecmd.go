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
	"errors"
	"log/slog"
	"net/http"

	"github.com/lumenflow/lumenflow/pkg/observability"
)

// ServeCmd starts the metrics HTTP listener.
type ServeCmd struct {
	Addr    string  `help:"Listen address for the Prometheus metrics endpoint." default:":9090"`
	Trace   bool    `help:"Enable stdout-exported OpenTelemetry tracing."`
	Sampling float64 `help:"Trace sampling rate, 0..1." default:"1.0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, loader, err := loadApp(ctx, cli.Config, cli.ProjectRoot)
	if err != nil {
		return err
	}
	defer loader.Close()

	tp, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:      c.Trace,
		SamplingRate: c.Sampling,
		ServiceName:  "lumenflow",
	})
	if err != nil {
		return err
	}
	if tp != nil {
		defer tp.Shutdown(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	slog.Info("serving metrics", "addr", c.Addr)
	err = http.ListenAndServe(c.Addr, mux)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
