// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgescript-go/surgescript/engine"
)

func newEngineWithSource(t *testing.T, source string) *engine.Engine {
	t.Helper()
	e := engine.New(engine.Options{})
	require.NoError(t, e.Compile("test.ss", source))
	require.NoError(t, e.Launch("Application"))
	return e
}

func appHeapVar(t *testing.T, e *engine.Engine, name string) string {
	t.Helper()
	app := e.FindDescendant(e.Root(), "Application")
	require.NotNil(t, app)
	v, ok := app.Get(name)
	require.True(t, ok, "%q was never declared public", name)
	return v.String()
}

func TestLetForeachAndArrayLiteral(t *testing.T) {
	src := `
object "Application" {
	public total = 0;

	state "main" {
		let items = [1, 2, 3, 4];
		let sum = 0;
		foreach (item in items) {
			sum = sum + item;
		}
		total = sum;
	}
}`
	e := newEngineWithSource(t, src)
	e.Update()
	assert.Equal(t, "10", appHeapVar(t, e, "total"))
}

func TestSwitchDefaultAndBreak(t *testing.T) {
	src := `
object "Application" {
	public result = "";

	state "main" {
		let code = 2;
		switch (code) {
		case 1:
			result = "one";
			break;
		case 2:
			result = "two";
			break;
		default:
			result = "other";
		}
	}
}`
	e := newEngineWithSource(t, src)
	e.Update()
	assert.Equal(t, "two", appHeapVar(t, e, "result"))
}

func TestDictionaryLiteralAndIndexAssignment(t *testing.T) {
	src := `
object "Application" {
	public value = 0;

	state "main" {
		let d = { "a": 1, "b": 2 };
		d["a"] = 99;
		value = d.get("a");
	}
}`
	e := newEngineWithSource(t, src)
	e.Update()
	assert.Equal(t, "99", appHeapVar(t, e, "value"))
}

func TestPublicAccessorsFromAnotherObject(t *testing.T) {
	src := `
object "Counter" {
	public count = 0;
	public readonly label = "counter";
}

object "Application" {
	public observed = 0;

	state "main" {
		let c = spawn("Counter");
		c.count = 5;
		observed = c.count;
	}
}`
	e := newEngineWithSource(t, src)
	e.Update()
	assert.Equal(t, "5", appHeapVar(t, e, "observed"))
}

func TestTimeoutOutsideStateIsCompileError(t *testing.T) {
	src := `
object "Application" {
	fun badFun() {
		timeout(1);
	}
}`
	e := engine.New(engine.Options{})
	err := e.Compile("test.ss", src)
	require.Error(t, err)
}

func TestApplicationWithoutMainIsCompileError(t *testing.T) {
	src := `
object "Application" {
	state "other" {
	}
}`
	e := engine.New(engine.Options{})
	err := e.Compile("test.ss", src)
	require.Error(t, err)
}

func TestNonApplicationClassDefaultsToNoopMain(t *testing.T) {
	src := `
object "Application" {
	state "main" {
		spawn("Widget");
	}
}

object "Widget" {
}`
	e := newEngineWithSource(t, src)
	require.NotPanics(t, func() { e.Update() })
}

func TestUsingDottedPathResolvesThroughPluginTree(t *testing.T) {
	src := `
@Package object "Services" {
}

using Services;

object "Application" {
	public ok = false;

	state "main" {
		let svc = Services;
		ok = true;
	}
}`
	e := newEngineWithSource(t, src)
	require.NotPanics(t, func() { e.Update() })
	assert.Equal(t, "true", appHeapVar(t, e, "ok"))
}
