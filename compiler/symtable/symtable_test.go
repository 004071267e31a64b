// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package symtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgescript-go/surgescript/runtime/heap"
)

func TestResolveHeapThenStaticFallback(t *testing.T) {
	tbl := New()
	tbl.DeclareHeap("score", heap.Addr(3), false)

	sym, ok := tbl.Resolve("score")
	require.True(t, ok)
	assert.Equal(t, KindHeap, sym.Kind)
	assert.Equal(t, heap.Addr(3), sym.HeapAddr)

	this, ok := tbl.Resolve("this")
	require.True(t, ok)
	assert.Equal(t, KindStatic, this.Kind)

	_, ok = tbl.Resolve("undeclared")
	assert.False(t, ok)
}

func TestResolveOrderInnermostScopeWins(t *testing.T) {
	tbl := New()
	tbl.DeclareHeap("x", heap.Addr(0), false)

	tbl.PushScope()
	tbl.DeclareParam("x", 0, 1)
	sym, ok := tbl.Resolve("x")
	require.True(t, ok)
	assert.Equal(t, KindStack, sym.Kind, "a local param shadows a heap variable of the same name")

	tbl.PopScope()
	sym, ok = tbl.Resolve("x")
	require.True(t, ok)
	assert.Equal(t, KindHeap, sym.Kind, "popping the scope restores heap resolution")
}

func TestDeclareParamOffsetsAreNegative(t *testing.T) {
	tbl := New()
	tbl.PushScope()
	tbl.DeclareParam("a", 0, 2)
	tbl.DeclareParam("b", 1, 2)

	a, _ := tbl.Resolve("a")
	b, _ := tbl.Resolve("b")
	assert.Equal(t, -2, a.StackOff)
	assert.Equal(t, -1, b.StackOff)
}

func TestResetLocalsStartsAtOffsetOne(t *testing.T) {
	// offset 0 from bp is the saved-bp cell PushEnv writes (runtime/stack);
	// the first local must never alias it.
	tbl := New()
	tbl.PushScope()
	tbl.ResetLocals()
	assert.Equal(t, 1, tbl.LocalDepth())

	first := tbl.DeclareLocal("a")
	assert.Equal(t, 1, first.StackOff)
	second := tbl.DeclareLocal("b")
	assert.Equal(t, 2, second.StackOff)
}

func TestSetLocalDepthRollsBackBookkeeping(t *testing.T) {
	tbl := New()
	tbl.PushScope()
	tbl.ResetLocals()
	base := tbl.LocalDepth()
	tbl.DeclareLocal("tmp1")
	tbl.DeclareLocal("tmp2")
	assert.Equal(t, base+2, tbl.LocalDepth())

	tbl.SetLocalDepth(base)
	assert.Equal(t, base, tbl.LocalDepth())

	// the slot is reused by the next declaration, matching the physical
	// stack cell the compiler's matching POPN already freed.
	next := tbl.DeclareLocal("tmp3")
	assert.Equal(t, base, next.StackOff)
}

func TestDeclarePluginSingleSegment(t *testing.T) {
	tbl := New()
	tbl.DeclarePlugin("MyPlugin", "MyPlugin")

	sym, ok := tbl.Resolve("MyPlugin")
	require.True(t, ok)
	assert.Equal(t, KindPlugin, sym.Kind)
	assert.Equal(t, "MyPlugin", sym.Plugin)
	assert.Equal(t, []string{"MyPlugin"}, sym.PluginPath)
}

func TestDeclarePluginPathDottedImport(t *testing.T) {
	tbl := New()
	tbl.DeclarePluginPath("db", []string{"Foo", "Bar", "Database"})

	sym, ok := tbl.Resolve("db")
	require.True(t, ok)
	assert.Equal(t, KindPlugin, sym.Kind)
	assert.Equal(t, "Database", sym.Plugin, "Plugin holds the last path segment")
	assert.Equal(t, []string{"Foo", "Bar", "Database"}, sym.PluginPath)
}

func TestStaticSymbolsAreReadOnly(t *testing.T) {
	tbl := New()
	sym, ok := tbl.Resolve("true")
	require.True(t, ok)
	assert.True(t, sym.ReadOnly)
}
