// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine is the embeddable driver (spec §4.6, §6): create a VM,
// compile scripts into it, spawn the root object tree, and drive it one
// tick at a time. This is the package a host program imports.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/surgescript-go/surgescript/compiler/parser"
	"github.com/surgescript-go/surgescript/internal/xlog"
	"github.com/surgescript-go/surgescript/runtime/object"
	"github.com/surgescript-go/surgescript/runtime/program"
	"github.com/surgescript-go/surgescript/runtime/tagsystem"
	"github.com/surgescript-go/surgescript/runtime/variable"
	"github.com/surgescript-go/surgescript/stdlib"
)

// Options configures a new Engine. All fields are optional.
type Options struct {
	Logger  *xlog.Logger
	Argv    []string
	TickHz  float64 // 0 disables rate pacing: Update runs as fast as the host calls it
}

// Engine is one embeddable SurgeScript VM instance (spec §6 "External
// Interface"): a compiler, an object manager, and the paused/running
// clock state the host drives via Update.
type Engine struct {
	Parser  *parser.Parser
	Manager *object.Manager
	Vars    *variable.Pool
	log     *xlog.Logger

	limiter *rate.Limiter
	paused  bool
	started time.Time
	lastTick time.Time
}

// systemObjectClasses are spawned as direct children of the tree root
// during Launch, before the user's root class (spec §4.7: "a handful of
// system objects are guaranteed to exist before Application does"). Plugin
// must come last among these since plugin classes are spawned as its
// children immediately afterward.
var systemObjectClasses = []string{
	"String", "Number", "Boolean", "Math", "Time", "Date",
	"Console", "GarbageCollector", "TagSystem", "Arguments", "Plugin",
}

// New creates an Engine with the standard library already registered, but
// not yet booted: call Compile for every source file (including any stdlib
// overrides), then Launch once to freeze the class set and spawn the root
// object.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = xlog.Default
	}

	vars := variable.NewPool()
	pool := program.NewPool()
	tags := tagsystem.New()
	manager := object.NewManager(pool, tags, vars, log)

	e := &Engine{
		Parser:   parser.New(pool, tags),
		Manager:  manager,
		Vars:     vars,
		log:      log,
		started:  time.Now(),
		lastTick: time.Now(),
	}

	stdlib.Register(stdlib.Args{
		Manager: manager,
		Vars:    vars,
		Log:     log,
		Argv:    opts.Argv,
		Start:   e.started,
	})

	if opts.TickHz > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.TickHz), 1)
	}
	return e
}

// Compile parses source and registers its declared classes. filename is
// used for diagnostics; pass "" to have a synthetic one generated (spec §6:
// "a virtual filename for in-memory buffers"), via google/uuid so repeated
// anonymous buffers never collide in error messages.
func (e *Engine) Compile(filename, source string) error {
	if filename == "" {
		filename = "buffer-" + uuid.NewString() + ".ss"
	}
	return e.Parser.Parse(filename, source)
}

// CompileFile is a convenience wrapper; the host is expected to have read
// the file itself (this package never touches the filesystem, keeping
// Compile's virtual-filename path the only entry point spec §6 requires).
func (e *Engine) CompileFile(filename, source string) error {
	return e.Compile(filename, source)
}

// Launch freezes the class set (ProgramPool/TagSystem, spec §4.7), spawns
// the tree root, then the system objects, then any @Plugin/@Package classes
// declared by Compile, and finally rootClass (typically "Application") as
// the last child of the root. Call once, after every Compile.
func (e *Engine) Launch(rootClass string) error {
	if err := e.Manager.Boot(); err != nil {
		return err
	}
	if _, err := e.Manager.SpawnRoot(); err != nil {
		return err
	}
	root := e.Manager.Root()
	for _, class := range systemObjectClasses {
		if !e.Manager.Pool.Has(class) {
			continue
		}
		if _, err := e.Manager.Spawn(class, root, class); err != nil {
			return err
		}
	}
	if pluginRoot, ok := e.Manager.FindRootChild("Plugin"); ok {
		for _, class := range e.Parser.Plugins() {
			if _, err := e.Manager.Spawn(class, pluginRoot, class); err != nil {
				return err
			}
		}
	}
	e.lastTick = time.Now()
	_, err := e.Manager.Spawn(rootClass, root, rootClass)
	return err
}

// Update advances the pausable clock by the real time elapsed since the
// last Update and ticks the tree once (spec §4.6 pre/late update hooks,
// §5 pausable clock), unless the engine is paused. When TickHz pacing is
// enabled, Update blocks until the next tick is due.
func (e *Engine) Update() {
	if e.paused {
		return
	}
	if e.limiter != nil {
		_ = e.limiter.Wait(context.Background())
	}
	now := time.Now()
	e.Manager.Advance(now.Sub(e.lastTick).Seconds())
	e.lastTick = now
	e.Manager.Tick()
}

// Pause stops Update from ticking the tree until Resume is called (spec §6
// "pause/resume"); the VM-wide clock other timing primitives read
// (timeout(s), GC interval) only advances inside Update, so it stands still
// while the engine is paused.
func (e *Engine) Pause() { e.paused = true }

// Resume undoes Pause. The time spent paused is not added to the clock: the
// next Update measures elapsed time from the moment of resuming.
func (e *Engine) Resume() {
	e.paused = false
	e.lastTick = time.Now()
}

// Paused reports whether the engine is currently paused.
func (e *Engine) Paused() bool { return e.paused }

// Terminate requests the whole tree be torn down (spec §6 "terminate"): the
// root's children are destroyed in reverse spawn order, and the root itself
// follows once it has no children left (Manager.Tick notices this).
func (e *Engine) Terminate() { e.Manager.Exit() }

// Root returns the handle of the spawned root object, or 0 before Launch.
func (e *Engine) Root() object.Handle { return e.Manager.Root() }

// Spawn creates a new object of the given class as a child of parent.
func (e *Engine) Spawn(class string, parent object.Handle, name string) (*object.Object, error) {
	return e.Manager.Spawn(class, parent, name)
}

// FindDescendant performs a depth-first search for the first descendant of
// root (inclusive) whose instance name matches name (spec §6 "find a
// descendant by name").
func (e *Engine) FindDescendant(root object.Handle, name string) *object.Object {
	o := e.Manager.Get(root)
	if o == nil {
		return nil
	}
	if o.Name() == name {
		return o
	}
	for _, c := range o.Children() {
		if found := e.FindDescendant(c, name); found != nil {
			return found
		}
	}
	return nil
}

// BindNative installs a host Go function as the implementation of
// function on class, arity argument count (spec §6 "bind a native
// function"). Call before Launch.
func (e *Engine) BindNative(class, function string, arity int, fn program.NativeFunc) {
	e.Manager.Pool.Put(class, function, program.NewNative(arity, fn))
}
