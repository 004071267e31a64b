// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"fmt"
	"math/rand"

	"github.com/surgescript-go/surgescript/internal/xlog"
	"github.com/surgescript-go/surgescript/runtime/heap"
	"github.com/surgescript-go/surgescript/runtime/program"
	"github.com/surgescript-go/surgescript/runtime/stack"
	"github.com/surgescript-go/surgescript/runtime/tagsystem"
	"github.com/surgescript-go/surgescript/runtime/variable"
	"github.com/surgescript-go/surgescript/runtime/vm"
	"github.com/surgescript-go/surgescript/util"
)

// Manager owns every live Object, the shared Stack and VM they run on, and
// coordinates the class-id perfect hash, the tag system and the incremental
// collector (spec §4.6 ObjectManager).
type Manager struct {
	Pool  *program.Pool
	Tags  *tagsystem.TagSystem
	VM    *vm.VM
	Stack *stack.Stack
	Vars  *variable.Pool
	log   *xlog.Logger

	objects    map[Handle]*Object
	nextHandle Handle
	root       Handle

	classIDs map[string]uint32
	seed     uint64
	bound    bool

	GC *GC

	exiting bool
	clock   float64 // pausable VM-wide clock (spec §5), advanced by the host via Advance
}

// RootClassName is the synthetic class of the tree's single root object
// (spec §4.7 "the root is a fixed node the engine owns, not a script
// class"). Pool.Put registers its no-op pre-constructor in NewManager;
// Spawn refuses to instantiate it from script code — only SpawnRoot may.
const RootClassName = "$Root"

// BaseClass is the fallback class every object's method/accessor lookup
// falls back to when its own class has no matching program (spec §4.2
// "every object inherits from a common base": spawn, destroy, kill, hasTag,
// and the state accessor pair live here instead of being duplicated onto
// every user class by the compiler).
const BaseClass = "Object"

// NewManager creates a Manager with a fresh Stack and VM wired together,
// ready to have classes declared into Pool/Tags before Boot locks them.
func NewManager(pool *program.Pool, tags *tagsystem.TagSystem, vars *variable.Pool, log *xlog.Logger) *Manager {
	if log == nil {
		log = xlog.Default
	}
	st := stack.New(0, log)
	m := &Manager{
		Pool:     pool,
		Tags:     tags,
		Stack:    st,
		Vars:     vars,
		log:      log,
		objects:  make(map[Handle]*Object),
		classIDs: make(map[string]uint32),
	}
	m.VM = vm.New(st, m, vars, log)
	m.GC = newGC(m)
	pool.Put(RootClassName, preConstructorFunction, program.NewNative(0, func(program.NativeContext, []variable.Variable) variable.Variable {
		return variable.Null()
	}))
	return m
}

// Clock returns the current reading of the pausable VM-wide clock (spec §5)
// that timeout() and state elapsed-time tracking are measured against.
func (m *Manager) Clock() float64 { return m.clock }

// Advance moves the clock forward by dt seconds; the host calls this once
// per Update before Tick, and never while paused.
func (m *Manager) Advance(dt float64) { m.clock += dt }

// Boot freezes the ProgramPool and TagSystem and assigns every registered
// class a perfect-hashed id (spec §4.7: "once startup completes, the set of
// classes never changes again"). Call once, after every class has been
// declared via Pool.Put/Tags.Tag.
func (m *Manager) Boot() error {
	names := m.Pool.ClassNames()
	seed, err := util.FindPerfectSeed(names, rand.New(rand.NewSource(1)))
	if err != nil {
		return err
	}
	m.seed = seed
	for _, n := range names {
		m.classIDs[n] = uint32(util.Hash64(n, seed))
	}
	m.Tags.Bind(seed)
	m.Pool.Lock()
	m.bound = true
	return nil
}

// ClassID returns the perfect-hashed id for a class name; classes must have
// been registered before Boot.
func (m *Manager) ClassID(class string) uint32 { return m.classIDs[class] }

// Root returns the handle of the tree's root object, or 0 if none has been
// spawned yet.
func (m *Manager) Root() Handle { return m.root }

// Get returns the live object for handle, or nil if it doesn't exist
// (already destroyed, or never valid).
func (m *Manager) Get(handle Handle) *Object { return m.objects[handle] }

// ErrUnknownClass is returned by Spawn when class has no registered
// constructor program.
type ErrUnknownClass struct{ Class string }

func (e *ErrUnknownClass) Error() string { return fmt.Sprintf("object: unknown class %q", e.Class) }

// Spawn creates a new object of the given class as a child of parent (0 for
// the root), runs its pre-constructor then its user-defined constructor
// (spec §4.6: "construction happens in two phases, the first hidden from
// script code"), and returns it. Spawning RootClassName from here is
// rejected; only the Manager itself may create the root, via SpawnRoot.
func (m *Manager) Spawn(class string, parent Handle, name string) (*Object, error) {
	if class == RootClassName {
		return nil, fmt.Errorf("object: %q is a reserved class and cannot be spawned", class)
	}
	return m.spawn(class, parent, name)
}

// SpawnRoot creates the tree's single root object. Call once, immediately
// after Boot.
func (m *Manager) SpawnRoot() (*Object, error) {
	return m.spawn(RootClassName, 0, "root")
}

// SpawnChild implements vm.Dispatcher: it backs the SPAWN opcode emitted for
// the script-level spawn("Class") call, always parenting the new object
// under parent.
func (m *Manager) SpawnChild(class string, parent Handle) (Handle, bool) {
	o, err := m.Spawn(class, parent, class)
	if err != nil {
		return 0, false
	}
	return o.handle, true
}

func (m *Manager) spawn(class string, parent Handle, name string) (*Object, error) {
	if !m.Pool.Has(class) {
		return nil, &ErrUnknownClass{class}
	}
	if name == "" {
		name = class
	}

	m.nextHandle++
	handle := m.nextHandle
	o := &Object{
		handle:         handle,
		name:           name,
		className:      class,
		classID:        m.classIDs[class],
		parent:         parent,
		heap:           heap.New(0, m.log),
		manager:        m,
		active:         true,
		reachable:      true, // spec §4.6: "mark reachable for the current GC cycle"
		public:         make(map[string]heap.Addr),
		stateEnteredAt: m.Clock(),
	}
	m.objects[handle] = o

	if parent == 0 && m.root == 0 {
		m.root = handle
	} else if parentObj := m.objects[parent]; parentObj != nil {
		parentObj.children = append(parentObj.children, handle)
	}

	// Construction happens in two phases (spec §4.6): a hidden
	// pre-constructor the compiler emits for every class (heap allocation of
	// declared public/private variables, default-value initialization)
	// always runs first, then the user-defined constructor() body, if any.
	if prog, ok := m.Pool.Get(class, preConstructorFunction); ok {
		m.VM.Run(prog, o, nil)
	}
	if prog, ok := m.Pool.Get(class, "constructor"); ok {
		m.VM.Run(prog, o, nil)
	}
	o.constructed = true
	return o, nil
}

// FindRootChild implements vm.Dispatcher: it backs the SYSOBJ opcode used to
// resolve a system object (e.g. "Plugin") by class name as a direct child
// of the tree root.
func (m *Manager) FindRootChild(name string) (Handle, bool) {
	return m.ChildByClassName(m.root, name)
}

// ChildByClassName implements vm.Dispatcher: it backs the CHILDBYNAME opcode
// the compiler emits for each segment of a `using a.b.c;` plugin path.
func (m *Manager) ChildByClassName(parent Handle, name string) (Handle, bool) {
	o := m.objects[parent]
	if o == nil {
		return 0, false
	}
	for _, c := range o.children {
		if co := m.objects[c]; co != nil && co.className == name {
			return c, true
		}
	}
	return 0, false
}

// preConstructorFunction is the reserved function name the compiler emits
// a class's variable-allocation prologue under (spec §4.6 "hidden from
// script code"). The parser does not reject this name in source, so a user
// function declared as __preconstructor registers under the same pool key.
const preConstructorFunction = "__preconstructor"

// Destroy requests destruction of handle. Per spec §4.6 the destructor runs
// immediately, the object is detached from its parent's child list, and its
// children are recursively destroyed the same way — but the handle itself
// and its heap are only actually reclaimed once the incremental collector
// sweeps it (so stray references observed mid-tick see a killed, inert
// object rather than a dangling one).
func (m *Manager) Destroy(handle Handle) {
	o := m.killOne(handle)
	if o == nil {
		return
	}
	for _, c := range o.Children() {
		m.Destroy(c)
	}
}

// killOne runs the destructor for handle and detaches it from its parent,
// without touching its children; Destroy calls it once per node on its way
// down the subtree, and the collector's sweep calls it directly on a
// handle it has independently found unreachable.
func (m *Manager) killOne(handle Handle) *Object {
	o := m.objects[handle]
	if o == nil || o.killed {
		return o
	}
	if prog, ok := m.Pool.Get(o.className, "destructor"); ok {
		m.VM.Run(prog, o, nil)
	}
	o.killed = true
	o.reachable = false

	if p := m.objects[o.parent]; p != nil {
		p.children = removeHandle(p.children, handle)
	}
	return o
}

// orphanChildren reparents whatever children o still has onto the root.
// The collector calls this right before reclaiming o's handle: o's
// children are reachability-independent of o (spec §4.8), so one of them
// may still be alive through its own heap/stack reference even though o
// itself is not — it must not end up pointing at a freed handle.
func (m *Manager) orphanChildren(o *Object) {
	if len(o.children) == 0 {
		return
	}
	root := m.objects[m.root]
	for _, c := range o.children {
		if co := m.objects[c]; co != nil {
			co.parent = m.root
			if root != nil {
				root.children = append(root.children, c)
			}
		}
	}
}

func removeHandle(hs []Handle, target Handle) []Handle {
	out := hs[:0]
	for _, h := range hs {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

// reclaim frees handle's heap and removes it from the handle table. Callers
// are responsible for having already killed it (or for it being the root,
// which has no destructor of its own kind to run).
func (m *Manager) reclaim(handle Handle) {
	o := m.objects[handle]
	if o == nil {
		return
	}
	o.heap.Destroy()
	delete(m.objects, handle)
}

// Tick advances the tree by one frame: a pre-order pre-update pass (spec
// §4.6 "pre-update hook, depth-first, parent before children") followed by
// a post-order late-update pass, skipping any subtree rooted at a paused
// object, then hands off to the incremental collector for one GC step.
func (m *Manager) Tick() {
	if m.root != 0 {
		m.preUpdate(m.root)
		m.lateUpdate(m.root)
	}
	m.GC.Step()
	if m.exiting && m.root != 0 && len(m.objects[m.root].children) == 0 {
		// The root has no parent to detach from and GC.mark always seeds it
		// as reachable, so it would otherwise never leave m.objects: reap it
		// directly once its subtree has genuinely emptied out, giving the
		// driver loop (cmd/ssc's `for Manager.Get(root) != nil`) a real
		// terminated signal to observe.
		m.killOne(m.root)
		m.reclaim(m.root)
		m.root = 0
	}
}

func (m *Manager) preUpdate(handle Handle) {
	o := m.objects[handle]
	if o == nil || !o.active || o.killed {
		return
	}
	if prog, ok := m.Pool.Get(o.className, "state:"+o.State()); ok {
		m.VM.Run(prog, o, nil)
	}
	for _, c := range o.Children() {
		m.preUpdate(c)
	}
}

func (m *Manager) lateUpdate(handle Handle) {
	o := m.objects[handle]
	if o == nil || !o.active || o.killed {
		return
	}
	for _, c := range o.Children() {
		m.lateUpdate(c)
	}
	if prog, ok := m.Pool.Get(o.className, "lateUpdate"); ok {
		m.VM.Run(prog, o, nil)
	}
}

// Exit requests termination of the whole tree. Per original_source's
// object_manager.c, the root's children are destroyed in reverse spawn
// order (last spawned, first destroyed) rather than all at once.
func (m *Manager) Exit() {
	m.exiting = true
	root := m.objects[m.root]
	if root == nil {
		return
	}
	children := root.Children()
	for i := len(children) - 1; i >= 0; i-- {
		m.Destroy(children[i])
	}
}

// Resolve implements vm.Dispatcher: it looks up the program implementing
// function on the class of the object at handle, falling back to BaseClass
// (spawn, destroy, kill, hasTag, get_state/set_state) when the object's own
// class has no such function.
func (m *Manager) Resolve(handle Handle, function string) (*program.Program, vm.Context, bool) {
	o := m.objects[handle]
	if o == nil {
		return nil, nil, false
	}
	if prog, ok := m.Pool.Get(o.className, function); ok {
		return prog, o, true
	}
	if prog, ok := m.Pool.Get(BaseClass, function); ok {
		return prog, o, true
	}
	return nil, nil, false
}

// Count returns the number of live (not-yet-swept) objects, for the
// GarbageCollector.objectCount() binding (spec §9).
func (m *Manager) Count() int { return len(m.objects) }
