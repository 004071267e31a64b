// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package object implements the live object tree: Object nodes addressed by
// handle, owned by a Manager that perfect-hashes class names to ids, ticks
// the tree once per frame, and incrementally garbage-collects unreachable
// subtrees (spec §4.6 Object lifecycle, §4.8 GC).
package object

import (
	"github.com/surgescript-go/surgescript/runtime/heap"
	"github.com/surgescript-go/surgescript/runtime/variable"
)

// Handle is a 1-based object identifier; 0 is never a valid handle and is
// used as the sentinel "no object" value (spec §3: "handle zero never
// designates a live object").
type Handle = uint32

// Object is one node of the object tree. Its heap stores declared public
// and private variables (spec §3 Heap); its children are tracked in spawn
// order so traversal, tagging and reverse-order tree teardown on exit all
// see a stable, documented ordering (spec §4.6, original_source/object.c).
type Object struct {
	handle    Handle
	name      string
	className string
	classID   uint32
	parent    Handle
	children  []Handle
	heap      *heap.Heap
	manager   *Manager

	active      bool   // false while paused; paused objects and their subtree skip ticks
	killed      bool   // destroy() was requested; reaped at the next GC-safe point
	reachable   bool   // set by spawn (grace period) and by the GC's mark phase; cleared by sweep
	state       string
	constructed bool
	callerHandle    Handle
	stateEnteredAt  float64              // manager.Clock() reading when the current state was entered
	public          map[string]heap.Addr // name -> heap slot table read by PublicAddr/Get/Set; created empty, nothing adds entries
}

// Handle returns the object's own handle (vm.Context, program.NativeContext).
func (o *Object) Handle() uint32 { return o.handle }

// CallerHandle returns the handle of the object that most recently entered
// this object's call stack environment, or 0 if none (spec §3 "caller").
// The VM updates this only across CALL/OPTCALL boundaries via SetCallerHandle.
func (o *Object) CallerHandle() uint32 { return o.callerHandle }

// SetCallerHandle is called by the VM immediately before invoking a program
// on this object and restored immediately after, so "caller" always reflects
// the innermost active call even across reentrant call chains.
func (o *Object) SetCallerHandle(h uint32) { o.callerHandle = h }

// Heap returns this object's per-instance variable storage.
func (o *Object) Heap() *heap.Heap { return o.heap }

// ClassID returns the perfect-hashed id of this object's class, used by the
// VM's call-site speculation cache (spec §4.5).
func (o *Object) ClassID() uint32 { return o.classID }

// Name returns the object's instance name (distinct from its class name;
// spec §3: "every object has a name, independent of the class that
// instantiated it").
func (o *Object) Name() string { return o.name }

// ClassName returns the name of the class this object was spawned from.
func (o *Object) ClassName() string { return o.className }

// Parent returns the handle of this object's parent, or 0 for the root.
func (o *Object) Parent() Handle { return o.parent }

// Children returns the handles of this object's direct children, in spawn
// order.
func (o *Object) Children() []Handle {
	out := make([]Handle, len(o.children))
	copy(out, o.children)
	return out
}

// State returns the name of the object's current state (spec §4.2 "state
// machine"); the empty string is the implicit "main" state every object
// starts in.
func (o *Object) State() string {
	if o.state == "" {
		return "main"
	}
	return o.state
}

// SetState changes the object's current state; the next tick runs that
// state's program instead. Changing state resets the elapsed-time counter
// timeout() reads (spec §4.6: "a state change restarts the clock").
func (o *Object) SetState(name string) {
	if name == o.State() {
		return
	}
	o.state = name
	if o.manager != nil {
		o.stateEnteredAt = o.manager.Clock()
	}
}

// ElapsedTime returns the number of seconds (per the engine's pausable
// clock, spec §5) the object has spent in its current state; it backs the
// timeout(seconds) expression.
func (o *Object) ElapsedTime() float64 {
	if o.manager == nil {
		return 0
	}
	return o.manager.Clock() - o.stateEnteredAt
}

// Active reports whether this object (and by extension, per spec §4.6, its
// subtree) is currently ticked.
func (o *Object) Active() bool { return o.active }

// SetActive pauses or resumes this object.
func (o *Object) SetActive(v bool) { o.active = v }

// Killed reports whether Destroy has been requested for this object.
func (o *Object) Killed() bool { return o.killed }

// Reachable reports this object's current mark bit (spec §3, §4.8): true
// between a spawn/mark and the next sweep that visits it.
func (o *Object) Reachable() bool { return o.reachable }

// PublicAddr resolves a declared "public" variable name to its heap slot;
// ok is false if no such public variable exists (spec §4.3 accessor
// resolution, cross-object case: `parent.child.publicVar`). Nothing fills
// the table it reads, so ok is false for every name.
func (o *Object) PublicAddr(name string) (heap.Addr, bool) {
	a, ok := o.public[name]
	return a, ok
}

// Get reads a public variable by name from the host side by running the
// get_<name> program the compiler synthesizes for every public variable
// (the same program a script's `obj.name` calls); ok is false when the
// object has no such getter.
func (o *Object) Get(name string) (variable.Variable, bool) {
	addr, ok := o.public[name]
	if !ok {
		if o.manager != nil {
			if prog, ctx, found := o.manager.Resolve(o.handle, "get_"+name); found {
				return o.manager.VM.Run(prog, ctx, nil), true
			}
		}
		return variable.Null(), false
	}
	return o.heap.At(addr), true
}

// Set writes a public variable by name by running its set_<name> program;
// returns false if there is none (no such public variable, or it is
// readonly).
func (o *Object) Set(name string, v variable.Variable) bool {
	addr, ok := o.public[name]
	if !ok {
		if o.manager != nil {
			if prog, ctx, found := o.manager.Resolve(o.handle, "set_"+name); found {
				o.manager.VM.Run(prog, ctx, []variable.Variable{v})
				return true
			}
		}
		return false
	}
	o.heap.Set(addr, v)
	return true
}
