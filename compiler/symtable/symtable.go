// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package symtable implements the compiler's scope chain and four
// identifier resolution strategies: a local heap slot (object variable
// declared in this class), a stack slot (function parameter or local), a
// plugin path (a `using` import), or a static reserved word. There is no
// accessor strategy: a name is never resolved to a get_<name>/set_<name>
// call on this; the parser compiles only the explicit `obj.name` member
// form into such calls.
package symtable

import "github.com/surgescript-go/surgescript/runtime/heap"

// Kind discriminates how an identifier resolves.
type Kind int

const (
	// KindHeap: the identifier is this class's own declared variable,
	// stored at a fixed heap address.
	KindHeap Kind = iota
	// KindStack: the identifier is a function parameter or local, stored at
	// a fixed offset from bp.
	KindStack
	// KindPlugin: the identifier is a "using" import, resolved at load time
	// by starting at the Plugin system object and looking up one child by
	// name per path segment (spec §4.3 "using" declarations).
	KindPlugin
	// KindStatic: the identifier is a compile-time constant or reserved
	// word resolved without any runtime lookup (true/false/null, this,
	// caller).
	KindStatic
)

// Symbol is one resolved binding.
type Symbol struct {
	Kind       Kind
	HeapAddr   heap.Addr // valid when Kind == KindHeap
	StackOff   int       // valid when Kind == KindStack, signed offset from bp
	Plugin     string    // valid when Kind == KindPlugin, the target object's name (single-segment form)
	PluginPath []string  // valid when Kind == KindPlugin, the full dotted "using" path
	ReadOnly   bool
}

// scope is one nested lexical scope: function parameters/locals stacked on
// block entry, popped on block exit.
type scope struct {
	symbols map[string]Symbol
	parent  *scope
}

// Table is the symbol table for a single class being compiled. Object-level
// (heap) declarations live in the table itself; block scopes nest on top of
// it for parameters and locals.
type Table struct {
	heapSymbols  map[string]Symbol
	plugins      map[string][]string // imported ("using") name -> dotted class path
	cur          *scope
	nextStackOff int
}

// New creates an empty Table with the class-level (heap) scope ready and no
// block scope pushed yet.
func New() *Table {
	return &Table{
		heapSymbols: make(map[string]Symbol),
		plugins:     make(map[string][]string),
	}
}

// DeclareHeap registers a class-level variable at addr. readOnly marks
// declarations made with the `readonly` modifier (spec §4.3).
func (t *Table) DeclareHeap(name string, addr heap.Addr, readOnly bool) {
	t.heapSymbols[name] = Symbol{Kind: KindHeap, HeapAddr: addr, ReadOnly: readOnly}
}

// DeclarePlugin registers a `using` import: name becomes a KindPlugin
// symbol resolving to className.
func (t *Table) DeclarePlugin(name, className string) {
	t.plugins[name] = []string{className}
}

// DeclarePluginPath registers a `using a.b.c [as name];` import: name
// becomes a KindPlugin symbol whose access chain starts at the Plugin
// system object and walks path one CHILDBYNAME hop at a time.
func (t *Table) DeclarePluginPath(name string, path []string) {
	t.plugins[name] = path
}

// PushScope opens a new nested block scope (function body, for/if/while
// block) for parameter and local declarations.
func (t *Table) PushScope() {
	t.cur = &scope{symbols: make(map[string]Symbol), parent: t.cur}
}

// PopScope closes the innermost block scope.
func (t *Table) PopScope() {
	if t.cur != nil {
		t.cur = t.cur.parent
	}
}

// DeclareParam registers a function parameter at a fixed negative offset
// from bp (spec §3: arguments are pushed before the callee's environment,
// so they sit at negative offsets once bp moves to the new environment).
func (t *Table) DeclareParam(name string, index, arity int) {
	off := -(arity - index)
	t.cur.symbols[name] = Symbol{Kind: KindStack, StackOff: off}
}

// DeclareLocal registers a local variable at the next free positive stack
// offset within the current environment.
func (t *Table) DeclareLocal(name string) Symbol {
	sym := Symbol{Kind: KindStack, StackOff: t.nextStackOff}
	t.nextStackOff++
	if t.cur != nil {
		t.cur.symbols[name] = sym
	}
	return sym
}

// ResetLocals clears the local-offset counter; called when compiling a new
// function body. Offset 0 from bp is always the saved-bp cell PushEnv writes
// (spec §3), so the first local lives at offset 1.
func (t *Table) ResetLocals() { t.nextStackOff = 1 }

// LocalDepth returns the next free local-stack offset, i.e. the number of
// local slots allocated so far in the current function body.
func (t *Table) LocalDepth() int { return t.nextStackOff }

// SetLocalDepth rolls the local-offset counter back to n, discarding the
// bookkeeping (not the emitted POPN) for every local declared since. Used
// at block/loop/switch exit to keep scoped `let` bindings from leaking
// their stack slots into sibling statements.
func (t *Table) SetLocalDepth(n int) { t.nextStackOff = n }

// Resolve looks up name, searching the block scope chain innermost-first,
// then the class's heap declarations, then its plugin imports, then the
// small set of static reserved identifiers. ok is false if name is
// undeclared anywhere.
func (t *Table) Resolve(name string) (Symbol, bool) {
	for s := t.cur; s != nil; s = s.parent {
		if sym, ok := s.symbols[name]; ok {
			return sym, true
		}
	}
	if sym, ok := t.heapSymbols[name]; ok {
		return sym, true
	}
	if path, ok := t.plugins[name]; ok {
		return Symbol{Kind: KindPlugin, Plugin: path[len(path)-1], PluginPath: path}, true
	}
	if sym, ok := staticSymbols[name]; ok {
		return sym, true
	}
	return Symbol{}, false
}

// staticSymbols are the reserved words every scope resolves without a
// lookup: literals and the implicit `this`/`caller` bindings.
var staticSymbols = map[string]Symbol{
	"this":   {Kind: KindStatic},
	"caller": {Kind: KindStatic},
	"true":   {Kind: KindStatic, ReadOnly: true},
	"false":  {Kind: KindStatic, ReadOnly: true},
	"null":   {Kind: KindStatic, ReadOnly: true},
}
