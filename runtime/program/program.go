// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package program implements the compiled unit the parser emits into and
// the VM executes: a flat operation list plus an interned string-literal
// table and a label table (spec §4.4 Program).
package program

import "github.com/surgescript-go/surgescript/runtime/variable"

// Op is an 8-bit VM opcode (spec §4.5).
type Op uint8

const (
	NOP Op = iota
	SELF
	STATE   // A: dst temp; B!=0 means "set current state to t[A]" instead of read
	CALLERH // CALLER — t[a] := handle of calling object, else null
	MOV     // t[a] := t[B]
	MOVN    // t[a] := null
	MOVB    // t[a] := bool(B!=0)
	MOVF    // t[a] := number(bits in B, reinterpreted as float64)
	MOVS    // t[a] := string literal B
	MOVO    // t[a] := object handle B
	MOVX    // t[a] := raw bits B
	XCHG    // swap t[a] and t[B]
	ALLOC   // t[a] := heap.Malloc()
	PEEK    // t[a] := owner.heap[B]
	POKE    // owner.heap[B] := t[a]
	PUSH    // push t[a]
	POP     // t[a] := pop()
	SPEEK   // t[a] := stack.At(B)
	SPOKE   // stack.SetAt(B, t[a])
	PUSHN   // push N nulls, N = B
	POPN    // pop N cells, N = B
	INC     // t[a]++ (numeric, or raw-bits if a==2)
	DEC     // t[a]-- (numeric, or raw-bits if a==2)
	ADD     // t[a] := t[a] + t[B]
	SUB     // t[a] := t[a] - t[B]
	MUL     // t[a] := t[a] * t[B]
	DIV     // t[a] := t[a] / t[B]
	MOD     // t[a] := mod(t[a], t[B])
	NEG     // t[a] := -t[a]
	LNOT    // t[a] := !truthy(t[a])
	LNOT2   // t[a] := truthy(t[a])  (double negation / coercion)
	BNOT    // t[a] := ^raw(t[a])
	BAND    // t[a] := raw(t[a]) & raw(t[B])
	BOR     // t[a] := raw(t[a]) | raw(t[B])
	BXOR    // t[a] := raw(t[a]) ^ raw(t[B])
	TEST    // t2 := type-mask(t[a], t[B])
	TCHK    // t2 := 1 if t[a] has type B else 0
	TC01    // t2 := 1 if t[a] and t[B] share a type else 0
	TCMP    // t2 := type-difference(t[a], t[B])
	CMP     // t2 := -1/0/1 comparing t[a] against t[B]
	JMP     // pc := label B
	JE      // if t2==0: pc := label B
	JNE     // if t2!=0: pc := label B
	JL      // if t2<0:  pc := label B
	JLE     // if t2<=0: pc := label B
	JG      // if t2>0:  pc := label B
	JGE     // if t2>=0: pc := label B
	CALL    // call text[B] on stack callee, argc = C; t0 := return value
	OPTCALL // speculatively-optimized CALL; B = cache-table index, C = argc
	RET     // return; t0 := return value

	SPAWN       // t[a] := handle of a freshly spawned child of self, class text[B]
	SYSOBJ      // t[a] := handle of root's direct child named text[B]
	CHILDBYNAME // t[a] := handle of t[a]'s direct child whose class is named text[B]
	TIMEOUTOP   // t[a] := elapsed-time-in-state(self) >= t[a] (seconds)
	ASSERTOP    // fatal with message text(t[B]) unless truthy(t[a]); C = source line

	opCount
)

var opNames = [...]string{
	NOP: "NOP", SELF: "SELF", STATE: "STATE", CALLERH: "CALLER",
	MOV: "MOV", MOVN: "MOVN", MOVB: "MOVB", MOVF: "MOVF", MOVS: "MOVS", MOVO: "MOVO", MOVX: "MOVX",
	XCHG: "XCHG", ALLOC: "ALLOC", PEEK: "PEEK", POKE: "POKE",
	PUSH: "PUSH", POP: "POP", SPEEK: "SPEEK", SPOKE: "SPOKE", PUSHN: "PUSHN", POPN: "POPN",
	INC: "INC", DEC: "DEC", ADD: "ADD", SUB: "SUB", MUL: "MUL", DIV: "DIV", MOD: "MOD", NEG: "NEG",
	LNOT: "LNOT", LNOT2: "LNOT2", BNOT: "NOT", BAND: "AND", BOR: "OR", BXOR: "XOR",
	TEST: "TEST", TCHK: "TCHK", TC01: "TC01", TCMP: "TCMP", CMP: "CMP",
	JMP: "JMP", JE: "JE", JNE: "JNE", JL: "JL", JLE: "JLE", JG: "JG", JGE: "JGE",
	CALL: "CALL", OPTCALL: "OPTCALL", RET: "RET",
	SPAWN: "SPAWN", SYSOBJ: "SYSOBJ", CHILDBYNAME: "CHILDBYNAME", TIMEOUTOP: "TIMEOUT", ASSERTOP: "ASSERT",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "?"
}

// Operation is one bytecode instruction: an opcode plus up to two 64-bit
// operand words, interpreted per-opcode (register index, label id, literal
// index, stack/heap offset, or raw bit pattern).
type Operation struct {
	Op Op
	A  uint8
	B  int64
	C  int64
}

// Program is either Scripted (runs Operations through the VM) or Native
// (invokes a host Go function). A program is identified by the class that
// declared it and the function name it implements (constructor,
// "state:<name>", or an ordinary function) — that pairing is the
// ProgramPool's key, not stored on Program itself.
type Program struct {
	Arity      int
	Operations []Operation
	Literals   []string       // interned string-literal pool, dedup on insert
	Labels     []int          // label id -> instruction index, set at compile time
	Native     NativeFunc     // non-nil iff this is a native program
	relocated  bool           // one-shot label relocation has run
	executed   bool           // true once any call has entered this program
	litIndex   map[string]int // compile-time dedup index; nil after freeze
	callSites  map[int]*CallSite
}

// NativeFunc is a host-provided function bound to (class, function, arity).
// args are the call's positional arguments; the return value (possibly
// Null) becomes the caller's t0.
type NativeFunc func(self NativeContext, args []variable.Variable) variable.Variable

// NativeContext is the minimal handle-oriented view a native function needs
// of its caller; concrete runtime packages (runtime/object) implement it to
// avoid an import cycle between program and object.
type NativeContext interface {
	Handle() uint32
	CallerHandle() uint32
}

// New creates an empty scripted program with the given arity.
func New(arity int) *Program {
	return &Program{Arity: arity, litIndex: make(map[string]int)}
}

// NewNative wraps a host function as a native program.
func NewNative(arity int, fn NativeFunc) *Program {
	return &Program{Arity: arity, Native: fn}
}

// IsNative reports whether this program dispatches to a host function.
func (p *Program) IsNative() bool { return p.Native != nil }

// Emit appends an operation and returns its instruction index.
func (p *Program) Emit(op Op, a uint8, b, c int64) int {
	p.Operations = append(p.Operations, Operation{Op: op, A: a, B: b, C: c})
	return len(p.Operations) - 1
}

// Patch overwrites the operand words of a previously emitted instruction;
// used to back-patch forward jumps once their target is known.
func (p *Program) Patch(index int, b, c int64) {
	p.Operations[index].B = b
	p.Operations[index].C = c
}

// NewLabel allocates a fresh label id with no known target yet.
func (p *Program) NewLabel() int {
	p.Labels = append(p.Labels, -1)
	return len(p.Labels) - 1
}

// BindLabel records that label id now targets the instruction about to be
// emitted (i.e., the current end of the operation list).
func (p *Program) BindLabel(id int) {
	p.Labels[id] = len(p.Operations)
}

// InternLiteral adds s to the literal pool if not already present and
// returns its index (spec §4.4: "a list of interned string literals").
func (p *Program) InternLiteral(s string) int {
	if idx, ok := p.litIndex[s]; ok {
		return idx
	}
	idx := len(p.Literals)
	p.Literals = append(p.Literals, s)
	p.litIndex[s] = idx
	return idx
}

// MarkExecuted records that this program has run at least once. Per spec
// §4.4, "once any program of a class has executed, the pool is frozen
// against replacing that program" — ProgramPool consults this flag.
func (p *Program) MarkExecuted() { p.executed = true }

// HasExecuted reports whether MarkExecuted has ever been called.
func (p *Program) HasExecuted() bool { return p.executed }

// ResolveLabels performs the one-shot relocation described in spec §4.4:
// the first time this program runs, every jump-family instruction's B
// operand (a label id) is rewritten in place to the label's instruction
// index, and the Labels table itself is discarded. Safe to call more than
// once; only the first call does any work.
func (p *Program) ResolveLabels() {
	if p.relocated {
		return
	}
	for i, op := range p.Operations {
		if isJump(op.Op) {
			target := p.Labels[op.B]
			p.Operations[i].B = int64(target)
		}
	}
	p.relocated = true
	p.Labels = nil
}

// CallSite is the per-call-site speculation state for a CALL instruction:
// the class id of the last callee, a consecutive-hit counter, and — once
// the site has been rewritten to OPTCALL — the cached Program pointer.
// The state lives in a side table keyed by instruction index rather than in
// operand words (Go has no portable way to stash a live pointer inside an
// int64 operand), so rewriting CALL to OPTCALL only changes the opcode in
// place and never resizes or relabels the instruction list; the codegen
// reserves no filler slots after a CALL.
type CallSite struct {
	ClassID uint32
	Hits    uint8
	Cached  *Program
}

// callSiteThreshold is the number of consecutive same-class hits before a
// CALL site is rewritten to OPTCALL (spec §4.5: "approximately 8").
const callSiteThreshold = 8

// CallSiteAt returns (creating if necessary) the speculation state for the
// CALL/OPTCALL instruction at pc.
func (p *Program) CallSiteAt(pc int) *CallSite {
	if p.callSites == nil {
		p.callSites = make(map[int]*CallSite)
	}
	cs, ok := p.callSites[pc]
	if !ok {
		cs = &CallSite{}
		p.callSites[pc] = cs
	}
	return cs
}

// Record tells the call site that its callee resolved to classID this time,
// caching resolved. It returns true the instant the consecutive-same-class
// hit count reaches callSiteThreshold, telling the caller it may rewrite the
// CALL instruction at this site to OPTCALL.
func (cs *CallSite) Record(classID uint32, resolved *Program) (specialize bool) {
	if cs.ClassID == classID {
		cs.Hits++
	} else {
		cs.ClassID = classID
		cs.Hits = 1
	}
	cs.Cached = resolved
	return cs.Hits >= callSiteThreshold
}

// Deopt resets a call site's speculation state, used when an OPTCALL site's
// cached class assumption no longer holds.
func (cs *CallSite) Deopt() {
	cs.Hits = 0
	cs.Cached = nil
}

func isJump(op Op) bool {
	switch op {
	case JMP, JE, JNE, JL, JLE, JG, JGE:
		return true
	}
	return false
}
