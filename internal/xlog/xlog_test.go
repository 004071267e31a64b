// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package xlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-stack/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoWritesLevelAndKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Info("booted", "classes", 3)
	assert.Contains(t, buf.String(), "[INFO]")
	assert.Contains(t, buf.String(), "booted")
	assert.Contains(t, buf.String(), "classes=3")
}

func TestWarnAndErrorLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Warn("low memory")
	l.Error("lost connection")
	assert.Contains(t, buf.String(), "[WARN]")
	assert.Contains(t, buf.String(), "[ERROR]")
}

func TestFatalPanicsWithFatalError(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	assert.PanicsWithValue(t, &FatalError{Message: "boom"}, func() {
		l.Fatal("boom")
	})
	assert.Contains(t, buf.String(), "[FATAL]")
	assert.Contains(t, buf.String(), "boom")
}

func TestSetHooksOverridesDefaultBehavior(t *testing.T) {
	l := New(&bytes.Buffer{})
	var gotLevel Level
	var gotMsg string
	var fatalCalled bool

	l.SetHooks(
		func(level Level, msg string, kv ...interface{}) {
			gotLevel = level
			gotMsg = msg
		},
		func(msg string, cs stack.CallStack) {
			fatalCalled = true
		},
	)

	l.Info("hello")
	assert.Equal(t, LevelInfo, gotLevel)
	assert.Equal(t, "hello", gotMsg)

	require.NotPanics(t, func() { l.Fatal("unreachable") })
	assert.True(t, fatalCalled)
}

func TestSetHooksNilLeavesExistingHookInPlace(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.SetHooks(nil, nil)
	l.Info("still default")
	assert.Contains(t, buf.String(), "still default")
}

func TestFatalErrorImplementsError(t *testing.T) {
	var err error = &FatalError{Message: "oops"}
	assert.Equal(t, "oops", err.Error())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "CRIT", LevelCrit.String())
	assert.Equal(t, "?", Level(99).String())
}

func TestFatalfFormatsMessage(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	assert.Panics(t, func() { l.Fatalf("failed: %s (%d)", "reason", 42) })
	assert.True(t, strings.Contains(buf.String(), "failed: reason (42)"))
}
