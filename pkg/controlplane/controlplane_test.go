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

package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenflow/lumenflow/pkg/retry"
)

func newFastRetryer() *retry.Retryer {
	return retry.New(retry.Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, JitterFactor: 0})
}

func TestSink_Enabled_RequiresFlagAndEndpoint(t *testing.T) {
	assert.False(t, NewSink(Config{}).Enabled())
	assert.False(t, NewSink(Config{Enabled: true}).Enabled())
	assert.False(t, NewSink(Config{Endpoint: "http://x"}).Enabled())
	assert.True(t, NewSink(Config{Enabled: true, Endpoint: "http://x"}).Enabled())
}

func TestSink_Push_NoopWhenDisabled(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	s := NewSink(Config{Enabled: false, Endpoint: srv.URL})
	s.Push(context.Background(), Event{WUID: "WU-1"})
	assert.False(t, called)
}

func TestSink_Push_SendsEventWithBearerToken(t *testing.T) {
	t.Setenv("TEST_CP_TOKEN", "secret-token")

	var gotAuth string
	var gotEvent Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvent))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSink(Config{Enabled: true, Endpoint: srv.URL, TokenEnvVar: "TEST_CP_TOKEN"})
	s.Push(context.Background(), Event{WUID: "WU-1", Type: "claim", Lane: "backend"})

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "WU-1", gotEvent.WUID)
	assert.Equal(t, "claim", gotEvent.Type)
}

func TestSink_Push_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	retryer := newFastRetryer()
	s := &Sink{cfg: Config{Enabled: true, Endpoint: srv.URL, Timeout: 2 * time.Second}, client: srv.Client(), retryer: retryer}

	var dropped bool
	s.onDrop = func(Event, error) { dropped = true }
	s.Push(context.Background(), Event{WUID: "WU-2"})

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.False(t, dropped)
}

func TestSink_Push_DropsAndInvokesOnDropAfterExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var droppedEvent Event
	var dropErr error
	s := &Sink{
		cfg:     Config{Enabled: true, Endpoint: srv.URL, Timeout: 2 * time.Second},
		client:  srv.Client(),
		retryer: newFastRetryer(),
		onDrop:  func(ev Event, err error) { droppedEvent = ev; dropErr = err },
	}

	s.Push(context.Background(), Event{WUID: "WU-3"})
	assert.Equal(t, "WU-3", droppedEvent.WUID)
	require.Error(t, dropErr)
}

func TestSink_Push_4xxIsNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := &Sink{cfg: Config{Enabled: true, Endpoint: srv.URL, Timeout: 2 * time.Second}, client: srv.Client(), retryer: newFastRetryer()}
	s.Push(context.Background(), Event{WUID: "WU-4"})

	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}
