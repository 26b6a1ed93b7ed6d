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

package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel_RecognizesDocumentedLevels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseLevel_UnknownFallsBackToWarn(t *testing.T) {
	got, err := ParseLevel("chatty")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, got)
}

func TestOpenLogFile_CreatesAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumenflow.log")

	f, cleanup, err := OpenLogFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("first\n")
	require.NoError(t, err)
	cleanup()

	f2, cleanup2, err := OpenLogFile(path)
	require.NoError(t, err)
	_, err = f2.WriteString("second\n")
	require.NoError(t, err)
	cleanup2()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestGet_InitializesDefaultLoggerWhenUnset(t *testing.T) {
	defaultLogger = nil
	l := Get()
	assert.NotNil(t, l)
	assert.Same(t, l, Get())
}

func TestInit_SimpleFormatWritesLevelAndMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	Init(slog.LevelInfo, f, "simple")
	slog.Info("claimed work unit", "wu_id", "WU-1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO")
	assert.Contains(t, string(data), "claimed work unit")
	assert.Contains(t, string(data), "wu_id=WU-1")
}

func TestFilteringHandler_DropsBelowMinLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	Init(slog.LevelWarn, f, "simple")
	slog.Info("should be dropped")
	slog.Warn("should appear")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be dropped")
	assert.Contains(t, string(data), "should appear")
}
