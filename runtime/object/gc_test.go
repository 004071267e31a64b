// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgescript-go/surgescript/runtime/program"
	"github.com/surgescript-go/surgescript/runtime/tagsystem"
	"github.com/surgescript-go/surgescript/runtime/variable"
)

// TestCollectReclaimsObjectOnlyHeldByAHeapSlot is end-to-end scenario 5: an
// object reachable only through a heap cell is collected the instant that
// cell is cleared, regardless of its position in the tree.
func TestCollectReclaimsObjectOnlyHeldByAHeapSlot(t *testing.T) {
	m := newTestManager(t, "Application", "Widget")
	root, _ := m.SpawnRoot()
	holder, err := m.Spawn("Widget", root.Handle(), "holder")
	require.NoError(t, err)
	widget, err := m.Spawn("Widget", root.Handle(), "target")
	require.NoError(t, err)

	m.Stack.Push(variable.ObjectHandle(holder.Handle()))

	addr := holder.Heap().Malloc()
	holder.Heap().Set(addr, variable.ObjectHandle(widget.Handle()))

	m.GC.Collect()
	assert.NotNil(t, m.Get(widget.Handle()), "still referenced from holder's heap, must survive")

	holder.Heap().Set(addr, variable.Null())
	m.GC.Collect()
	assert.Nil(t, m.Get(widget.Handle()), "no longer referenced anywhere, must be reclaimed")
}

// TestCollectNeverReachesThroughTreeLinksAlone confirms fix for the
// opposite failure mode: being someone's tree child must not itself keep an
// object alive when nothing on the stack or in a heap points at it.
func TestCollectNeverReachesThroughTreeLinksAlone(t *testing.T) {
	m := newTestManager(t, "Application", "Widget")
	root, _ := m.SpawnRoot()
	child, err := m.Spawn("Widget", root.Handle(), "orphan")
	require.NoError(t, err)

	m.GC.Collect()
	assert.Nil(t, m.Get(child.Handle()), "a tree child with no heap/stack reference is garbage")
}

// TestCollectDoesNotCascadeKillIntoStillReachableChildren guards against the
// tempting-but-wrong shortcut of reusing the cascading Destroy() inside
// sweep: an unreachable parent must not take an independently reachable
// child down with it.
func TestCollectDoesNotCascadeKillIntoStillReachableChildren(t *testing.T) {
	m := newTestManager(t, "Application", "Widget")
	root, _ := m.SpawnRoot()
	holder, err := m.Spawn("Widget", root.Handle(), "holder")
	require.NoError(t, err)
	parent, err := m.Spawn("Widget", root.Handle(), "parent")
	require.NoError(t, err)
	child, err := m.Spawn("Widget", parent.Handle(), "child")
	require.NoError(t, err)

	m.Stack.Push(variable.ObjectHandle(holder.Handle()))

	addr := holder.Heap().Malloc()
	holder.Heap().Set(addr, variable.ObjectHandle(child.Handle()))

	m.GC.Collect()
	assert.Nil(t, m.Get(parent.Handle()), "parent has no reference left, must be collected")
	assert.NotNil(t, m.Get(child.Handle()), "child is still held via holder's heap")
	assert.False(t, m.Get(child.Handle()).Killed())
}

// TestCollectReclaimsAnUnreachableObjectEvenIfNeverExplicitlyDestroyed
// guards the GC's sweep against the older bug where only already
// destroy()-ed objects were ever collected.
func TestCollectReclaimsAnUnreachableObjectEvenIfNeverExplicitlyDestroyed(t *testing.T) {
	m := newTestManager(t, "Application", "Widget")
	root, _ := m.SpawnRoot()
	w, err := m.Spawn("Widget", root.Handle(), "w")
	require.NoError(t, err)
	require.False(t, m.Get(w.Handle()).Killed())

	m.GC.Collect()
	assert.Nil(t, m.Get(w.Handle()))
}

func TestTickReapsRootOnceExitTeardownCompletes(t *testing.T) {
	pool := program.NewPool()
	require.NoError(t, pool.Put("Application", "__preconstructor", program.NewNative(0, noop)))
	require.NoError(t, pool.Put(BaseClass, "__preconstructor", program.NewNative(0, noop)))

	m := NewManager(pool, tagsystem.New(), variable.NewPool(), nil)
	require.NoError(t, m.Boot())
	root, err := m.SpawnRoot()
	require.NoError(t, err)
	app, err := m.Spawn("Application", root.Handle(), "Application")
	require.NoError(t, err)

	m.Exit()
	assert.True(t, m.Get(app.Handle()).Killed())
	require.NotNil(t, m.Get(root.Handle()), "root is reaped by Tick, not by Exit itself")

	m.Tick()
	assert.Nil(t, m.Get(root.Handle()), "root must be removed once its subtree has emptied out")
}
