// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgescript-go/surgescript/runtime/heap"
	"github.com/surgescript-go/surgescript/runtime/program"
	"github.com/surgescript-go/surgescript/runtime/stack"
	"github.com/surgescript-go/surgescript/runtime/variable"
)

// fakeContext is the minimal Context a hand-assembled program needs; it
// does not model a real object tree, only what exec() reads and writes.
type fakeContext struct {
	handle, caller uint32
	h              *heap.Heap
	classID        uint32
	state          string
	elapsed        float64
}

func (c *fakeContext) Handle() uint32            { return c.handle }
func (c *fakeContext) CallerHandle() uint32      { return c.caller }
func (c *fakeContext) SetCallerHandle(h uint32)  { c.caller = h }
func (c *fakeContext) Heap() *heap.Heap          { return c.h }
func (c *fakeContext) ClassID() uint32           { return c.classID }
func (c *fakeContext) State() string             { return c.state }
func (c *fakeContext) SetState(s string)         { c.state = s }
func (c *fakeContext) ElapsedTime() float64      { return c.elapsed }

// fakeDispatcher resolves every CALL against a single fixed program, as if
// every handle were the same one-method object; good enough to exercise
// doCall/invoke without bringing in runtime/object.
type fakeDispatcher struct {
	programs map[string]*program.Program
	ctx      *fakeContext
}

func (d *fakeDispatcher) Resolve(handle uint32, function string) (*program.Program, Context, bool) {
	p, ok := d.programs[function]
	return p, d.ctx, ok
}
func (d *fakeDispatcher) SpawnChild(class string, parent uint32) (uint32, bool)   { return 0, false }
func (d *fakeDispatcher) FindRootChild(name string) (uint32, bool)                { return 0, false }
func (d *fakeDispatcher) ChildByClassName(parent uint32, name string) (uint32, bool) { return 0, false }

func newTestVM() (*VM, *fakeContext) {
	pool := variable.NewPool()
	st := stack.New(0, nil)
	ctx := &fakeContext{handle: 1, h: heap.New(0, nil), state: "main"}
	dispatcher := &fakeDispatcher{programs: map[string]*program.Program{}, ctx: ctx}
	machine := New(st, dispatcher, pool, nil)
	return machine, ctx
}

func TestArithmeticAndConcat(t *testing.T) {
	machine, ctx := newTestVM()
	p := program.New(0)
	p.Emit(program.MOVF, 0, int64Bits(3), 0)
	p.Emit(program.MOVF, 1, int64Bits(4), 0)
	p.Emit(program.ADD, 0, 1, 0)
	p.Emit(program.RET, 0, 0, 0)

	ret := machine.Run(p, ctx, nil)
	assert.Equal(t, float64(7), ret.AsNumber())
}

func TestJumpSkipsInstruction(t *testing.T) {
	machine, ctx := newTestVM()
	p := program.New(0)
	lbl := p.NewLabel()
	p.Emit(program.MOVF, 0, int64Bits(1), 0)
	p.Emit(program.JMP, 0, int64(lbl), 0)
	p.Emit(program.MOVF, 0, int64Bits(99), 0) // skipped
	p.BindLabel(lbl)
	p.Emit(program.RET, 0, 0, 0)

	ret := machine.Run(p, ctx, nil)
	assert.Equal(t, float64(1), ret.AsNumber())
}

func TestConditionalJumpOnCompare(t *testing.T) {
	machine, ctx := newTestVM()
	p := program.New(0)
	lbl := p.NewLabel()
	p.Emit(program.MOVF, 0, int64Bits(5), 0)
	p.Emit(program.MOVF, 1, int64Bits(5), 0)
	p.Emit(program.CMP, 0, 1, 0)
	p.Emit(program.JE, 0, int64(lbl), 0)
	p.Emit(program.MOVB, 0, 0, 0) // not taken if equal
	p.BindLabel(lbl)
	p.Emit(program.MOVB, 0, 1, 0)
	p.Emit(program.RET, 0, 0, 0)

	ret := machine.Run(p, ctx, nil)
	assert.True(t, ret.AsBool())
}

func TestPeekPokeRoundTrip(t *testing.T) {
	machine, ctx := newTestVM()
	addr := ctx.h.Malloc()
	p := program.New(0)
	p.Emit(program.MOVF, 0, int64Bits(42), 0)
	p.Emit(program.POKE, 0, int64(addr), 0)
	p.Emit(program.PEEK, 1, int64(addr), 0)
	p.Emit(program.MOV, 0, 1, 0)
	p.Emit(program.RET, 0, 0, 0)

	ret := machine.Run(p, ctx, nil)
	assert.Equal(t, float64(42), ret.AsNumber())
}

func TestCallInvokesCalleeAndReturnsValue(t *testing.T) {
	machine, ctx := newTestVM()

	callee := program.New(1)
	callee.Emit(program.SPEEK, 0, -1, 0) // arity 1, index 0 -> bp-relative offset -1
	callee.Emit(program.INC, 0, 0, 0)
	callee.Emit(program.RET, 0, 0, 0)
	dispatcher := machine.Dispatcher.(*fakeDispatcher)
	dispatcher.programs["increment"] = callee

	caller := program.New(0)
	lit := caller.InternLiteral("increment")
	caller.Emit(program.MOVF, 0, int64Bits(10), 0)
	caller.Emit(program.PUSH, 0, 0, 0) // arg
	caller.Emit(program.MOVO, 0, int64(ctx.Handle()), 0)
	caller.Emit(program.PUSH, 0, 0, 0) // callee handle
	caller.Emit(program.CALL, 0, int64(lit), 1)
	caller.Emit(program.RET, 0, 0, 0)

	ret := machine.Run(caller, ctx, nil)
	assert.Equal(t, float64(11), ret.AsNumber())
}

func TestCallSpecializesToOptCallAfterRepeatedHits(t *testing.T) {
	machine, ctx := newTestVM()
	callee := program.New(0)
	callee.Emit(program.RET, 0, 0, 0)
	dispatcher := machine.Dispatcher.(*fakeDispatcher)
	dispatcher.programs["noop"] = callee

	caller := program.New(0)
	lit := caller.InternLiteral("noop")
	caller.Emit(program.MOVO, 0, int64(ctx.Handle()), 0)
	caller.Emit(program.PUSH, 0, 0, 0)
	caller.Emit(program.CALL, 0, int64(lit), 0)
	caller.Emit(program.RET, 0, 0, 0)

	for i := 0; i < 20; i++ {
		machine.Run(caller, ctx, nil)
	}
	assert.Equal(t, program.OPTCALL, caller.Operations[2].Op, "repeated monomorphic calls rewrite the call site in place")
}

func TestAssertFatalOnFalsy(t *testing.T) {
	machine, ctx := newTestVM()
	p := program.New(0)
	p.Emit(program.MOVB, 0, 0, 0) // false
	p.Emit(program.MOVS, 1, int64(p.InternLiteral("boom")), 0)
	p.Emit(program.ASSERTOP, 0, 1, 7)
	p.Emit(program.RET, 0, 0, 0)

	require.Panics(t, func() { machine.Run(p, ctx, nil) })
}

func TestTimeoutOpComparesElapsedTime(t *testing.T) {
	machine, ctx := newTestVM()
	ctx.elapsed = 5
	p := program.New(0)
	p.Emit(program.MOVF, 0, int64Bits(3), 0)
	p.Emit(program.TIMEOUTOP, 0, 0, 0)
	p.Emit(program.RET, 0, 0, 0)

	ret := machine.Run(p, ctx, nil)
	assert.True(t, ret.AsBool(), "5s elapsed >= 3s timeout")
}

func int64Bits(n float64) int64 {
	return int64(math.Float64bits(n))
}
