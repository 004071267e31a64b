// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package vm implements the register+stack interpreter described in spec
// §4.5: four general registers (t0-t3, with t2 doubling as the comparison
// flag written by TEST/TCHK/TC01/TCMP/CMP), a shared call stack, and a
// per-object heap reached through the Context a caller supplies.
//
// vm depends only on runtime/program, runtime/stack, runtime/heap,
// runtime/variable and internal/xlog; it never imports runtime/object, so that object can
// import vm instead — the Dispatcher/Context interfaces below are the seam.
package vm

import (
	"math"

	"github.com/surgescript-go/surgescript/internal/xlog"
	"github.com/surgescript-go/surgescript/runtime/heap"
	"github.com/surgescript-go/surgescript/runtime/program"
	"github.com/surgescript-go/surgescript/runtime/stack"
	"github.com/surgescript-go/surgescript/runtime/variable"
)

// registerCount is the number of general-purpose registers (spec §4.5: t0-t3).
const registerCount = 4

// compareRegister is the register TEST/TCHK/TC01/TCMP/CMP always write to
// and the jump family always reads from, regardless of the instruction's A
// operand.
const compareRegister = 2

// Context is the minimal view of a running object the interpreter needs:
// its own handle, its caller's handle (or 0 if none), and its heap for
// PEEK/POKE. runtime/object.Object implements this.
type Context interface {
	Handle() uint32
	CallerHandle() uint32
	SetCallerHandle(uint32)
	Heap() *heap.Heap
	ClassID() uint32
	State() string
	SetState(string)
	ElapsedTime() float64
}

// Dispatcher resolves a CALL/OPTCALL target: given the handle sitting on
// the stack and a function name, it returns the Program implementing that
// function together with the Context it should run against. It also backs
// the SPAWN/SYSOBJ/CHILDBYNAME opcodes, each a different way of turning a
// name into an object handle. runtime/object.Manager implements this.
type Dispatcher interface {
	Resolve(handle uint32, function string) (prog *program.Program, ctx Context, ok bool)
	SpawnChild(class string, parent uint32) (handle uint32, ok bool)
	FindRootChild(name string) (handle uint32, ok bool)
	ChildByClassName(parent uint32, name string) (handle uint32, ok bool)
}

// VM is one interpreter instance; it is not goroutine-safe and is meant to
// be driven by a single cooperative scheduler (spec §5: no thread-level
// parallelism).
type VM struct {
	Stack      *stack.Stack
	Dispatcher Dispatcher
	log        *xlog.Logger

	regs [registerCount]variable.Variable
	pool *variable.Pool // for string results produced by the interpreter itself (concatenation)
}

// New creates a VM sharing the given Stack and Dispatcher.
func New(st *stack.Stack, dispatcher Dispatcher, pool *variable.Pool, log *xlog.Logger) *VM {
	if log == nil {
		log = xlog.Default
	}
	return &VM{Stack: st, Dispatcher: dispatcher, pool: pool, log: log}
}

// Run executes prog against ctx's heap/handle and returns the program's
// return value (t0 at RET, or Null if the program falls off its end without
// one). Native programs are invoked directly. Run is reentrant: CALL/OPTCALL
// recurse into Run for the callee, Go's own call stack doubling as the
// interpreter's frame stack.
func (vm *VM) Run(prog *program.Program, ctx Context, args []variable.Variable) variable.Variable {
	if prog.IsNative() {
		prog.MarkExecuted()
		return prog.Native(ctx, args)
	}

	prog.MarkExecuted()
	prog.ResolveLabels()

	for _, a := range args {
		vm.Stack.Push(a)
	}
	vm.Stack.PushEnv()

	saved := vm.regs
	vm.regs = [registerCount]variable.Variable{}
	ret := vm.exec(prog, ctx)
	vm.regs = saved

	vm.Stack.PopEnv()
	vm.Stack.PopN(len(args))
	return ret
}

// exec runs prog's operation list to completion (a RET instruction or
// falling off the end) and returns t0.
func (vm *VM) exec(prog *program.Program, ctx Context) variable.Variable {
	h := ctx.Heap()
	pc := 0
	ops := prog.Operations

	for pc < len(ops) {
		op := ops[pc]
		switch op.Op {
		case program.NOP:

		case program.SELF:
			vm.regs[op.A] = variable.ObjectHandle(ctx.Handle())

		case program.CALLERH:
			vm.regs[op.A] = variable.ObjectHandle(ctx.CallerHandle())

		case program.MOV:
			vm.regs[op.A] = vm.regs[op.B]
		case program.MOVN:
			vm.regs[op.A] = variable.Null()
		case program.MOVB:
			vm.regs[op.A] = variable.Bool(op.B != 0)
		case program.MOVF:
			vm.regs[op.A] = variable.Number(int64ToFloat(op.B))
		case program.MOVS:
			vm.regs[op.A] = variable.String(vm.pool, prog.Literals[op.B])
		case program.MOVO:
			vm.regs[op.A] = variable.ObjectHandle(uint32(op.B))
		case program.MOVX:
			vm.regs[op.A] = variable.RawBits(op.B)
		case program.XCHG:
			vm.regs[op.A], vm.regs[op.B] = vm.regs[op.B], vm.regs[op.A]

		case program.ALLOC:
			vm.regs[op.A] = variable.RawBits(int64(h.Malloc()))
		case program.PEEK:
			vm.regs[op.A] = h.At(heap.Addr(op.B))
		case program.POKE:
			h.Set(heap.Addr(op.B), vm.regs[op.A])

		case program.PUSH:
			vm.Stack.Push(vm.regs[op.A])
		case program.POP:
			vm.regs[op.A] = vm.Stack.Pop()
		case program.SPEEK:
			vm.regs[op.A] = vm.Stack.At(int(op.B))
		case program.SPOKE:
			vm.Stack.SetAt(int(op.B), vm.regs[op.A])
		case program.PUSHN:
			vm.Stack.PushN(int(op.B))
		case program.POPN:
			vm.Stack.PopN(int(op.B))

		case program.INC:
			vm.incdec(op.A, 1)
		case program.DEC:
			vm.incdec(op.A, -1)

		case program.ADD:
			vm.regs[op.A] = vm.add(vm.regs[op.A], vm.regs[op.B])
		case program.SUB:
			vm.regs[op.A] = variable.Number(vm.num(vm.regs[op.A]) - vm.num(vm.regs[op.B]))
		case program.MUL:
			vm.regs[op.A] = variable.Number(vm.num(vm.regs[op.A]) * vm.num(vm.regs[op.B]))
		case program.DIV:
			// IEEE-754 division by zero yields +-Inf/NaN rather than
			// terminating (spec §4.5/§8; original_source/program.c).
			vm.regs[op.A] = variable.Number(vm.num(vm.regs[op.A]) / vm.num(vm.regs[op.B]))
		case program.MOD:
			vm.regs[op.A] = variable.Number(modFloat(vm.num(vm.regs[op.A]), vm.num(vm.regs[op.B])))
		case program.NEG:
			vm.regs[op.A] = variable.Number(-vm.num(vm.regs[op.A]))

		case program.LNOT:
			vm.regs[op.A] = variable.Bool(!vm.regs[op.A].IsTruthy())
		case program.LNOT2:
			vm.regs[op.A] = variable.Bool(vm.regs[op.A].IsTruthy())

		case program.BNOT:
			vm.regs[op.A] = variable.RawBits(^vm.raw(vm.regs[op.A]))
		case program.BAND:
			vm.regs[op.A] = variable.RawBits(vm.raw(vm.regs[op.A]) & vm.raw(vm.regs[op.B]))
		case program.BOR:
			vm.regs[op.A] = variable.RawBits(vm.raw(vm.regs[op.A]) | vm.raw(vm.regs[op.B]))
		case program.BXOR:
			vm.regs[op.A] = variable.RawBits(vm.raw(vm.regs[op.A]) ^ vm.raw(vm.regs[op.B]))

		case program.TEST:
			mask := int64(1<<uint(vm.regs[op.A].Kind())) | int64(1<<uint(vm.regs[op.B].Kind()))
			vm.regs[compareRegister] = variable.RawBits(mask)
		case program.TCHK:
			hit := vm.regs[op.A].Kind() == variable.Kind(op.B)
			vm.regs[compareRegister] = variable.RawBits(boolToInt(hit))
		case program.TC01:
			hit := vm.regs[op.A].Kind() == vm.regs[op.B].Kind()
			vm.regs[compareRegister] = variable.RawBits(boolToInt(hit))
		case program.TCMP:
			d := int64(vm.regs[op.A].Kind()) - int64(vm.regs[op.B].Kind())
			vm.regs[compareRegister] = variable.RawBits(d)
		case program.CMP:
			vm.regs[compareRegister] = variable.RawBits(int64(vm.compare(vm.regs[op.A], vm.regs[op.B])))

		case program.JMP:
			pc = int(op.B)
			continue
		case program.JE:
			if vm.raw(vm.regs[compareRegister]) == 0 {
				pc = int(op.B)
				continue
			}
		case program.JNE:
			if vm.raw(vm.regs[compareRegister]) != 0 {
				pc = int(op.B)
				continue
			}
		case program.JL:
			if vm.raw(vm.regs[compareRegister]) < 0 {
				pc = int(op.B)
				continue
			}
		case program.JLE:
			if vm.raw(vm.regs[compareRegister]) <= 0 {
				pc = int(op.B)
				continue
			}
		case program.JG:
			if vm.raw(vm.regs[compareRegister]) > 0 {
				pc = int(op.B)
				continue
			}
		case program.JGE:
			if vm.raw(vm.regs[compareRegister]) >= 0 {
				pc = int(op.B)
				continue
			}

		case program.CALL:
			vm.doCall(prog, pc, op, ctx)
		case program.OPTCALL:
			vm.doOptCall(prog, pc, op, ctx)

		case program.RET:
			return vm.regs[0]

		case program.STATE:
			if op.B != 0 {
				ctx.SetState(vm.regs[op.A].AsString())
			} else {
				vm.regs[op.A] = variable.String(vm.pool, ctx.State())
			}

		case program.SPAWN:
			class := prog.Literals[op.B]
			h, ok := vm.Dispatcher.SpawnChild(class, ctx.Handle())
			if !ok {
				vm.log.Fatal("vm: spawn failed", "class", class)
				break
			}
			vm.regs[op.A] = variable.ObjectHandle(h)

		case program.SYSOBJ:
			name := prog.Literals[op.B]
			h, ok := vm.Dispatcher.FindRootChild(name)
			if !ok {
				vm.log.Fatal("vm: system object not found", "name", name)
				break
			}
			vm.regs[op.A] = variable.ObjectHandle(h)

		case program.CHILDBYNAME:
			name := prog.Literals[op.B]
			h, ok := vm.Dispatcher.ChildByClassName(vm.regs[op.A].AsObjectHandle(), name)
			if !ok {
				vm.log.Fatal("vm: plugin path segment not found", "name", name)
				break
			}
			vm.regs[op.A] = variable.ObjectHandle(h)

		case program.TIMEOUTOP:
			vm.regs[op.A] = variable.Bool(ctx.ElapsedTime() >= vm.num(vm.regs[op.A]))

		case program.ASSERTOP:
			if !vm.regs[op.A].IsTruthy() {
				vm.log.Fatal("assertion failed", "message", vm.regs[op.B].String(), "line", op.C)
			}

		default:
			vm.log.Fatal("vm: unknown opcode", "op", op.Op)
		}
		pc++
	}
	return vm.regs[0]
}

func (vm *VM) incdec(reg uint8, delta int64) {
	if reg == compareRegister {
		vm.regs[reg] = variable.RawBits(vm.regs[reg].AsRawBits() + delta)
		return
	}
	vm.regs[reg] = variable.Number(vm.regs[reg].AsNumber() + float64(delta))
}

func (vm *VM) num(v variable.Variable) float64 {
	if v.Kind() == variable.KindNumber {
		return v.AsNumber()
	}
	if v.IsTruthy() {
		return 1
	}
	return 0
}

func (vm *VM) raw(v variable.Variable) int64 {
	if v.Kind() == variable.KindRawBits {
		return v.AsRawBits()
	}
	return int64(vm.num(v))
}

// add implements SurgeScript's overloaded '+': string concatenation if
// either operand is a string, numeric addition otherwise.
func (vm *VM) add(a, b variable.Variable) variable.Variable {
	if a.Kind() == variable.KindString || b.Kind() == variable.KindString {
		return variable.String(vm.pool, a.String()+b.String())
	}
	return variable.Number(vm.num(a) + vm.num(b))
}

// compare returns -1/0/1 the way CMP's t2 result is consumed by the jump
// family: numeric comparison for numbers, lexicographic for strings,
// identity (handle/raw-bits equality) otherwise.
func (vm *VM) compare(a, b variable.Variable) int {
	switch {
	case a.Kind() == variable.KindString && b.Kind() == variable.KindString:
		switch {
		case a.AsString() < b.AsString():
			return -1
		case a.AsString() > b.AsString():
			return 1
		default:
			return 0
		}
	case a.Kind() == variable.KindObjectHandle || b.Kind() == variable.KindObjectHandle:
		if a.AsObjectHandle() == b.AsObjectHandle() {
			return 0
		}
		return 1
	default:
		x, y := vm.num(a), vm.num(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	}
}

func (vm *VM) doCall(prog *program.Program, pc int, op program.Operation, ctx Context) {
	function := prog.Literals[op.B]
	calleeVar := vm.Stack.Pop()
	handle := calleeVar.AsObjectHandle()

	callee, calleeCtx, ok := vm.Dispatcher.Resolve(handle, function)
	if !ok {
		vm.log.Fatal("vm: call to undefined function", "function", function, "handle", handle)
		return
	}

	cs := prog.CallSiteAt(pc)
	if cs.Record(calleeCtx.ClassID(), callee) {
		prog.Operations[pc].Op = program.OPTCALL
	}

	vm.invoke(ctx, callee, calleeCtx, int(op.C))
}

func (vm *VM) doOptCall(prog *program.Program, pc int, op program.Operation, ctx Context) {
	function := prog.Literals[op.B]
	calleeVar := vm.Stack.Pop()
	handle := calleeVar.AsObjectHandle()

	_, calleeCtx, ok := vm.Dispatcher.Resolve(handle, function)
	if !ok {
		vm.log.Fatal("vm: call to undefined function", "function", function, "handle", handle)
		return
	}

	cs := prog.CallSiteAt(pc)
	if calleeCtx.ClassID() != cs.ClassID || cs.Cached == nil {
		// speculation failed: fall back to a full resolve and de-optimize
		// this site back to CALL so it can re-learn the new class.
		cs.Deopt()
		prog.Operations[pc].Op = program.CALL
		callee, calleeCtx2, ok := vm.Dispatcher.Resolve(handle, function)
		if !ok {
			vm.log.Fatal("vm: call to undefined function", "function", function, "handle", handle)
			return
		}
		vm.invoke(ctx, callee, calleeCtx2, int(op.C))
		return
	}
	vm.invoke(ctx, cs.Cached, calleeCtx, int(op.C))
}

// invoke pops argc arguments and runs callee against calleeCtx, bracketing
// the call with the caller's handle so that the "caller" keyword resolves
// correctly even across reentrant calls onto the same object.
func (vm *VM) invoke(callerCtx Context, callee *program.Program, calleeCtx Context, argc int) {
	args := make([]variable.Variable, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = vm.Stack.Pop()
	}
	prevCaller := calleeCtx.CallerHandle()
	calleeCtx.SetCallerHandle(callerCtx.Handle())
	vm.regs[0] = vm.Run(callee, calleeCtx, args)
	calleeCtx.SetCallerHandle(prevCaller)
}

func int64ToFloat(bits int64) float64 {
	return math.Float64frombits(uint64(bits))
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func modFloat(a, b float64) float64 {
	return math.Mod(a, b)
}
