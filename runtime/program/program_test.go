// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgescript-go/surgescript/runtime/variable"
)

func TestInternLiteralDedups(t *testing.T) {
	p := New(0)
	a := p.InternLiteral("hello")
	b := p.InternLiteral("world")
	c := p.InternLiteral("hello")
	assert.Equal(t, a, c)
	assert.NotEqual(t, a, b)
	assert.Equal(t, []string{"hello", "world"}, p.Literals)
}

func TestLabelResolution(t *testing.T) {
	p := New(0)
	end := p.NewLabel()
	p.Emit(JMP, 0, int64(end), 0)
	p.Emit(MOVN, 0, 0, 0)
	p.BindLabel(end)
	p.Emit(RET, 0, 0, 0)

	p.ResolveLabels()
	assert.Equal(t, int64(2), p.Operations[0].B, "JMP's label operand is rewritten to the bound instruction index")
	assert.Nil(t, p.Labels, "the label table is discarded after relocation")
}

func TestResolveLabelsIsIdempotent(t *testing.T) {
	p := New(0)
	lbl := p.NewLabel()
	p.Emit(JMP, 0, int64(lbl), 0)
	p.BindLabel(lbl)
	p.ResolveLabels()
	require.NotPanics(t, func() { p.ResolveLabels() })
}

func TestCallSiteSpecializesAfterThreshold(t *testing.T) {
	p := New(0)
	cs := p.CallSiteAt(10)
	specialized := false
	for i := 0; i < 10; i++ {
		if cs.Record(5, p) {
			specialized = true
			break
		}
	}
	assert.True(t, specialized)
}

func TestCallSiteResetsOnClassChange(t *testing.T) {
	p := New(0)
	cs := p.CallSiteAt(0)
	cs.Record(1, p)
	cs.Record(1, p)
	cs.Record(2, p) // different class resets the streak
	assert.Equal(t, uint8(1), cs.Hits)
	assert.Equal(t, uint32(2), cs.ClassID)
}

func TestPutGetHas(t *testing.T) {
	pool := NewPool()
	prog := New(0)
	require.NoError(t, pool.Put("Application", "main", prog))

	got, ok := pool.Get("Application", "main")
	require.True(t, ok)
	assert.Same(t, prog, got)
	assert.True(t, pool.Has("Application"))
	assert.False(t, pool.Has("Nonexistent"))
}

func TestPutAfterLockRejectsNewKey(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Put("A", "f", New(0)))
	pool.Lock()

	err := pool.Put("B", "g", New(0))
	require.Error(t, err)
	var frozen *ErrFrozen
	assert.ErrorAs(t, err, &frozen)
}

func TestPutAfterLockAllowsReplacingUnexecutedProgram(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Put("A", "f", New(0)))
	pool.Lock()

	require.NoError(t, pool.Put("A", "f", New(0)))
}

func TestPutRejectsReplacingExecutedProgram(t *testing.T) {
	pool := NewPool()
	prog := New(0)
	require.NoError(t, pool.Put("A", "f", prog))
	prog.MarkExecuted()

	err := pool.Put("A", "f", New(0))
	require.Error(t, err)
	var already *ErrAlreadyExecuted
	assert.ErrorAs(t, err, &already)
}

func TestClassNamesSortedAndDeduped(t *testing.T) {
	pool := NewPool()
	require.NoError(t, pool.Put("Zebra", "f", New(0)))
	require.NoError(t, pool.Put("Apple", "g", New(0)))
	require.NoError(t, pool.Put("Apple", "h", New(0)))

	assert.Equal(t, []string{"Apple", "Zebra"}, pool.ClassNames())
}

func TestNativeProgramIsNative(t *testing.T) {
	p := NewNative(1, func(NativeContext, []variable.Variable) variable.Variable {
		return variable.Null()
	})
	assert.True(t, p.IsNative())

	scripted := New(0)
	assert.False(t, scripted.IsNative())
}
