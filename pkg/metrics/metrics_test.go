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

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCountersIndependentlyPerInstance(t *testing.T) {
	m1 := New()
	m2 := New()

	m1.ObserveClaim("backend")
	m1.ObserveClaim("backend")
	m2.ObserveClaim("backend")

	body1 := scrape(t, m1)
	body2 := scrape(t, m2)

	assert.Contains(t, body1, `lumenflow_wu_claims_total{lane="backend"} 2`)
	assert.Contains(t, body2, `lumenflow_wu_claims_total{lane="backend"} 1`)
}

func TestObserveEscalation_IncrementsBothClassificationAndSeverity(t *testing.T) {
	m := New()
	m.ObserveEscalation("no_pickup", "warning")
	m.ObserveEscalation("no_pickup", "critical")

	body := scrape(t, m)
	assert.Contains(t, body, `lumenflow_recovery_escalations_total{classification="no_pickup"} 2`)
	assert.Contains(t, body, `lumenflow_recovery_escalations_by_severity_total{severity="critical"} 1`)
	assert.Contains(t, body, `lumenflow_recovery_escalations_by_severity_total{severity="warning"} 1`)
}

func TestObserveSandboxInvocation_LabelsEnforcedAsString(t *testing.T) {
	m := New()
	m.ObserveSandboxInvocation("linux-bwrap", true)
	m.ObserveSandboxInvocation("unsupported", false)

	body := scrape(t, m)
	assert.Contains(t, body, `lumenflow_sandbox_invocations_total{backend="linux-bwrap",enforced="true"} 1`)
	assert.Contains(t, body, `lumenflow_sandbox_invocations_total{backend="unsupported",enforced="false"} 1`)
}

func TestObserveMergeDuration_RecordsIntoHistogram(t *testing.T) {
	m := New()
	m.ObserveMergeDuration("backend", 1.5)
	m.ObserveMergeRetry("backend")

	body := scrape(t, m)
	assert.Contains(t, body, "lumenflow_worktree_merge_duration_seconds_count{lane=\"backend\"} 1")
	assert.Contains(t, body, `lumenflow_worktree_merge_retries_total{lane="backend"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
