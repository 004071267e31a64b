// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgescript-go/surgescript/runtime/program"
	"github.com/surgescript-go/surgescript/runtime/tagsystem"
)

func newTestParser() (*Parser, *program.Pool) {
	pool := program.NewPool()
	return New(pool, tagsystem.New()), pool
}

// opsOf fails the test with a go-spew dump of the compiled program when the
// expected function never got compiled, the one case where printing the
// pool/err state by hand would be tedious to keep in sync.
func opsOf(t *testing.T, pool *program.Pool, class, fun string) []program.Operation {
	t.Helper()
	prog, ok := pool.Get(class, fun)
	if !ok {
		t.Fatalf("no program compiled for %s.%s\npool state: %s", class, fun, spew.Sdump(pool))
	}
	return prog.Operations
}

func TestParsePublicVariableGeneratesAccessors(t *testing.T) {
	p, pool := newTestParser()
	err := p.Parse("t.ss", `
object "Widget" {
	public count = 0;
}`)
	require.NoError(t, err)
	assert.Empty(t, p.Errors())

	opsOf(t, pool, "Widget", "get_count")
	opsOf(t, pool, "Widget", "set_count")
}

func TestParseReadonlyVariableHasNoSetter(t *testing.T) {
	p, pool := newTestParser()
	require.NoError(t, p.Parse("t.ss", `
object "Widget" {
	public readonly label = "x";
}`))
	opsOf(t, pool, "Widget", "get_label")
	_, ok := pool.Get("Widget", "set_label")
	assert.False(t, ok)
}

func TestCompoundAssignmentOnMemberIsCompileError(t *testing.T) {
	p, _ := newTestParser()
	p.Parse("t.ss", `
object "Widget" {
	state "main" {
		let c = spawn("Widget");
		c.count += 1;
	}
}`)
	assert.NotEmpty(t, p.Errors())
}

func TestDuplicateSwitchCaseIsCompileError(t *testing.T) {
	p, _ := newTestParser()
	p.Parse("t.ss", `
object "Widget" {
	state "main" {
		switch (1) {
		case 1:
			break;
		case 1:
			break;
		}
	}
}`)
	assert.NotEmpty(t, p.Errors())
}

func TestDuplicateDefaultIsCompileError(t *testing.T) {
	p, _ := newTestParser()
	p.Parse("t.ss", `
object "Widget" {
	state "main" {
		switch (1) {
		default:
			break;
		default:
			break;
		}
	}
}`)
	assert.NotEmpty(t, p.Errors())
}

func TestAssertEmitsAssertOpWithLineNumber(t *testing.T) {
	p, pool := newTestParser()
	require.NoError(t, p.Parse("t.ss", `
object "Widget" {
	state "main" {
		assert(1 == 1);
	}
}`))
	ops := opsOf(t, pool, "Widget", "state:main")
	found := false
	for _, op := range ops {
		if op.Op == program.ASSERTOP {
			found = true
			assert.EqualValues(t, 4, op.C, "line operand should be the assert() call's source line")
		}
	}
	assert.True(t, found, "expected an ASSERTOP in:\n%s", spew.Sdump(ops))
}

func TestPluginAnnotationIsRegistered(t *testing.T) {
	p, _ := newTestParser()
	require.NoError(t, p.Parse("t.ss", `
@Plugin object "MyPlugin" {
}`))
	assert.Contains(t, p.Plugins(), "MyPlugin")
}

func TestUsingDefaultsAliasToLastPathSegment(t *testing.T) {
	p, pool := newTestParser()
	require.NoError(t, p.Parse("t.ss", `
@Package object "Services" {
}

using Services;

object "Widget" {
	state "main" {
		let s = Services;
	}
}`))
	ops := opsOf(t, pool, "Widget", "state:main")
	hasSysobj := false
	for _, op := range ops {
		if op.Op == program.SYSOBJ {
			hasSysobj = true
		}
	}
	assert.True(t, hasSysobj)
}

func TestUndeclaredIdentifierIsCompileError(t *testing.T) {
	p, _ := newTestParser()
	p.Parse("t.ss", `
object "Widget" {
	state "main" {
		x = 1;
	}
}`)
	assert.NotEmpty(t, p.Errors())
}
