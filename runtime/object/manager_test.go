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

func noop(program.NativeContext, []variable.Variable) variable.Variable {
	return variable.Null()
}

func newTestManager(t *testing.T, classes ...string) *Manager {
	t.Helper()
	pool := program.NewPool()
	for _, c := range classes {
		require.NoError(t, pool.Put(c, "__preconstructor", program.NewNative(0, noop)))
	}
	require.NoError(t, pool.Put(BaseClass, "__preconstructor", program.NewNative(0, noop)))
	m := NewManager(pool, tagsystem.New(), variable.NewPool(), nil)
	require.NoError(t, m.Boot())
	return m
}

func TestSpawnRootThenChild(t *testing.T) {
	m := newTestManager(t, "Application", "Widget")
	root, err := m.SpawnRoot()
	require.NoError(t, err)
	assert.Equal(t, root.Handle(), m.Root())

	child, err := m.Spawn("Widget", root.Handle(), "w")
	require.NoError(t, err)
	assert.Equal(t, root.Handle(), child.Parent())
	assert.Contains(t, root.Children(), child.Handle())
}

func TestSpawnUnknownClassFails(t *testing.T) {
	m := newTestManager(t, "Application")
	root, _ := m.SpawnRoot()
	_, err := m.Spawn("Ghost", root.Handle(), "g")
	require.Error(t, err)
	var unknown *ErrUnknownClass
	assert.ErrorAs(t, err, &unknown)
}

func TestSpawnRootClassDirectlyIsRejected(t *testing.T) {
	m := newTestManager(t, "Application")
	_, err := m.Spawn(RootClassName, 0, "root")
	require.Error(t, err)
}

func TestConstructorRunsAfterPreConstructor(t *testing.T) {
	pool := program.NewPool()
	var order []string
	require.NoError(t, pool.Put("Application", "__preconstructor", program.NewNative(0, func(program.NativeContext, []variable.Variable) variable.Variable {
		order = append(order, "pre")
		return variable.Null()
	})))
	require.NoError(t, pool.Put("Application", "constructor", program.NewNative(0, func(program.NativeContext, []variable.Variable) variable.Variable {
		order = append(order, "ctor")
		return variable.Null()
	})))
	require.NoError(t, pool.Put(BaseClass, "__preconstructor", program.NewNative(0, noop)))

	m := NewManager(pool, tagsystem.New(), variable.NewPool(), nil)
	require.NoError(t, m.Boot())
	_, err := m.Spawn("Application", 0, "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "ctor"}, order)
}

func TestDestroyRunsDestructorAndDetachesFromParent(t *testing.T) {
	pool := program.NewPool()
	destroyed := false
	require.NoError(t, pool.Put("Application", "__preconstructor", program.NewNative(0, noop)))
	require.NoError(t, pool.Put("Widget", "__preconstructor", program.NewNative(0, noop)))
	require.NoError(t, pool.Put("Widget", "destructor", program.NewNative(0, func(program.NativeContext, []variable.Variable) variable.Variable {
		destroyed = true
		return variable.Null()
	})))
	require.NoError(t, pool.Put(BaseClass, "__preconstructor", program.NewNative(0, noop)))

	m := NewManager(pool, tagsystem.New(), variable.NewPool(), nil)
	require.NoError(t, m.Boot())
	root, _ := m.SpawnRoot()
	child, err := m.Spawn("Widget", root.Handle(), "w")
	require.NoError(t, err)

	m.Destroy(child.Handle())
	assert.True(t, destroyed)
	assert.True(t, m.Get(child.Handle()).Killed())
	assert.NotContains(t, root.Children(), child.Handle())
}

func TestDestroyRecursesIntoChildren(t *testing.T) {
	pool := program.NewPool()
	require.NoError(t, pool.Put("Application", "__preconstructor", program.NewNative(0, noop)))
	require.NoError(t, pool.Put("Widget", "__preconstructor", program.NewNative(0, noop)))
	require.NoError(t, pool.Put(BaseClass, "__preconstructor", program.NewNative(0, noop)))

	m := NewManager(pool, tagsystem.New(), variable.NewPool(), nil)
	require.NoError(t, m.Boot())
	root, _ := m.SpawnRoot()
	parent, _ := m.Spawn("Widget", root.Handle(), "p")
	grandchild, _ := m.Spawn("Widget", parent.Handle(), "g")

	m.Destroy(parent.Handle())
	assert.True(t, m.Get(grandchild.Handle()).Killed())
}

func TestTickRunsStateProgramDepthFirst(t *testing.T) {
	pool := program.NewPool()
	var visited []string
	require.NoError(t, pool.Put("Application", "__preconstructor", program.NewNative(0, noop)))
	require.NoError(t, pool.Put("Application", "state:main", program.NewNative(0, func(ctx program.NativeContext, _ []variable.Variable) variable.Variable {
		visited = append(visited, "Application")
		return variable.Null()
	})))
	require.NoError(t, pool.Put("Widget", "__preconstructor", program.NewNative(0, noop)))
	require.NoError(t, pool.Put("Widget", "state:main", program.NewNative(0, func(ctx program.NativeContext, _ []variable.Variable) variable.Variable {
		visited = append(visited, "Widget")
		return variable.Null()
	})))
	require.NoError(t, pool.Put(BaseClass, "__preconstructor", program.NewNative(0, noop)))

	m := NewManager(pool, tagsystem.New(), variable.NewPool(), nil)
	require.NoError(t, m.Boot())
	root, _ := m.SpawnRoot()
	app, err := m.Spawn("Application", root.Handle(), "app")
	require.NoError(t, err)
	_, err = m.Spawn("Widget", app.Handle(), "w")
	require.NoError(t, err)

	m.Tick()
	assert.Equal(t, []string{"Application", "Widget"}, visited)
}

func TestResolveFallsBackToBaseClass(t *testing.T) {
	pool := program.NewPool()
	require.NoError(t, pool.Put("Application", "__preconstructor", program.NewNative(0, noop)))
	require.NoError(t, pool.Put(BaseClass, "__preconstructor", program.NewNative(0, noop)))
	require.NoError(t, pool.Put(BaseClass, "hasTag", program.NewNative(1, func(program.NativeContext, []variable.Variable) variable.Variable {
		return variable.Bool(false)
	})))

	m := NewManager(pool, tagsystem.New(), variable.NewPool(), nil)
	require.NoError(t, m.Boot())
	root, _ := m.SpawnRoot()

	prog, ctx, ok := m.Resolve(root.Handle(), "hasTag")
	require.True(t, ok)
	assert.Same(t, root, ctx)
	assert.True(t, prog.IsNative())
}

func TestFindRootChildAndChildByClassName(t *testing.T) {
	m := newTestManager(t, "Application", "Plugin", "Services")
	root, _ := m.SpawnRoot()
	plugin, err := m.Spawn("Plugin", root.Handle(), "Plugin")
	require.NoError(t, err)
	services, err := m.Spawn("Services", plugin.Handle(), "Services")
	require.NoError(t, err)

	found, ok := m.FindRootChild("Plugin")
	require.True(t, ok)
	assert.Equal(t, plugin.Handle(), found)

	child, ok := m.ChildByClassName(plugin.Handle(), "Services")
	require.True(t, ok)
	assert.Equal(t, services.Handle(), child)

	_, ok = m.ChildByClassName(plugin.Handle(), "Nonexistent")
	assert.False(t, ok)
}
