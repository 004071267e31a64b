// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package stdlib binds the native system objects spec §1/§9 say exist as
// interfaces without mandating their implementation: Console, Math, Array,
// Dictionary, Number, Boolean, String, Time, Date, System/Arguments, the
// GarbageCollector and TagSystem accessors, Plugin and Application. Each is
// registered as an ordinary class in the shared ProgramPool, its methods
// native Go functions instead of compiled bytecode — from a calling
// object's point of view there is no difference (runtime/vm dispatches a
// native Program exactly like a scripted one).
package stdlib

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/surgescript-go/surgescript/internal/xlog"
	"github.com/surgescript-go/surgescript/runtime/heap"
	"github.com/surgescript-go/surgescript/runtime/object"
	"github.com/surgescript-go/surgescript/runtime/program"
	"github.com/surgescript-go/surgescript/runtime/variable"
)

// Args bundles everything the standard library needs from its host: the
// object manager it registers classes into, the shared string pool new
// string Variables must be interned through, a logger for Console, and the
// process argv the Arguments-style System object exposes.
type Args struct {
	Manager *object.Manager
	Vars    *variable.Pool
	Log     *xlog.Logger
	Argv    []string
	Start   time.Time
}

// Register installs every standard library class into args.Manager.Pool and
// Tags. Call before Manager.Boot locks the class set.
func Register(args Args) {
	registerObjectBase(args)
	registerConsole(args)
	registerMath(args)
	registerNumber(args)
	registerBoolean(args)
	registerString(args)
	registerArray(args)
	registerDictionary(args)
	registerTime(args)
	registerSystem(args)
	registerGC(args)
	registerTagSystemAccessor(args)
	registerPlugin(args)
	registerApplication(args)
}

// --- Object (base class) --------------------------------------------------
//
// object.Manager.Resolve falls back to this class when an object's own
// class has no matching function, so every spawned object inherits these
// without the compiler having to duplicate them into every pre-constructor
// (spec §4.2 "a common base every class implicitly extends").

func registerObjectBase(a Args) {
	pool := a.Manager.Pool
	native(pool, object.BaseClass, "spawn", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		child, err := a.Manager.Spawn(args[0].AsString(), o.Handle(), args[0].AsString())
		if err != nil {
			a.Log.Fatal("spawn failed", "class", args[0].AsString(), "err", err)
			return variable.Null()
		}
		return variable.ObjectHandle(child.Handle())
	})
	native(pool, object.BaseClass, "destroy", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		a.Manager.Destroy(self.(*object.Object).Handle())
		return variable.Null()
	})
	native(pool, object.BaseClass, "kill", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		a.Manager.Destroy(self.(*object.Object).Handle())
		return variable.Null()
	})
	native(pool, object.BaseClass, "hasTag", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		return variable.Bool(a.Manager.Tags.HasTagBound(o.ClassName(), args[0].AsString()))
	})
	native(pool, object.BaseClass, "name", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.String(a.Vars, self.(*object.Object).Name())
	})
	native(pool, object.BaseClass, "parent", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.ObjectHandle(self.(*object.Object).Parent())
	})
	native(pool, object.BaseClass, "child", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		h, ok := a.Manager.ChildByClassName(o.Handle(), args[0].AsString())
		if !ok {
			return variable.Null()
		}
		return variable.ObjectHandle(h)
	})
	native(pool, object.BaseClass, "childCount", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(float64(len(self.(*object.Object).Children())))
	})

	// get_state/set_state are scripted (not native) so they can drive the
	// STATE opcode directly, the same accessor convention parseVarDecl
	// synthesizes for "public" fields (spec §4.2, §4.3).
	getState := program.New(0)
	getState.Emit(program.STATE, 0, 0, 0)
	getState.Emit(program.RET, 0, 0, 0)
	pool.Put(object.BaseClass, "get_state", getState)

	setState := program.New(1)
	setState.Emit(program.SPEEK, 0, -1, 0)
	setState.Emit(program.STATE, 0, 1, 0)
	setState.Emit(program.MOVN, 0, 0, 0)
	setState.Emit(program.RET, 0, 0, 0)
	pool.Put(object.BaseClass, "set_state", setState)
}

// --- Plugin ----------------------------------------------------------------
//
// Plugin is a system object (a direct child of root) whose children are the
// script-declared @Plugin/@Package objects; `using a.b.c;` compiles to a
// CHILDBYNAME chain starting from this object (spec §4.2, §4.7 GLOSSARY
// "Plugin").

func registerPlugin(a Args) {
	pool := a.Manager.Pool
	native(pool, "Plugin", "__preconstructor", 0, noop)
}

func native(pool interface {
	Put(class, function string, prog *program.Program) error
}, class, function string, arity int, fn program.NativeFunc) {
	pool.Put(class, function, program.NewNative(arity, fn))
}

// --- Console -------------------------------------------------------------

func registerConsole(a Args) {
	pool := a.Manager.Pool
	native(pool, "Console", "__preconstructor", 0, noop)
	native(pool, "Console", "print", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		fmt.Fprintln(colorWriter(color.FgCyan), args[0].String())
		return variable.Null()
	})
	native(pool, "Console", "write", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		fmt.Fprint(colorWriter(color.FgCyan), args[0].String())
		return variable.Null()
	})
	native(pool, "Console", "error", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		a.Log.Error(args[0].String())
		return variable.Null()
	})
}

func colorWriter(attr color.Attribute) *color.Color { return color.New(attr) }

func noop(self program.NativeContext, args []variable.Variable) variable.Variable {
	return variable.Null()
}

// --- Math ------------------------------------------------------------

func registerMath(a Args) {
	pool := a.Manager.Pool
	native(pool, "Math", "__preconstructor", 0, noop)
	unary := func(fn func(float64) float64) program.NativeFunc {
		return func(self program.NativeContext, args []variable.Variable) variable.Variable {
			return variable.Number(fn(args[0].AsNumber()))
		}
	}
	native(pool, "Math", "abs", 1, unary(math.Abs))
	native(pool, "Math", "sin", 1, unary(math.Sin))
	native(pool, "Math", "cos", 1, unary(math.Cos))
	native(pool, "Math", "sqrt", 1, unary(math.Sqrt))
	native(pool, "Math", "floor", 1, unary(math.Floor))
	native(pool, "Math", "ceil", 1, unary(math.Ceil))
	native(pool, "Math", "round", 1, unary(math.Round))
	native(pool, "Math", "pow", 2, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(math.Pow(args[0].AsNumber(), args[1].AsNumber()))
	})
	native(pool, "Math", "min", 2, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(math.Min(args[0].AsNumber(), args[1].AsNumber()))
	})
	native(pool, "Math", "max", 2, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(math.Max(args[0].AsNumber(), args[1].AsNumber()))
	})
	native(pool, "Math", "random", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(rand.Float64())
	})
	native(pool, "Math", "pi", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(math.Pi)
	})
}

// --- Number / Boolean (boxing helpers matching the scalar kinds) ---------

func registerNumber(a Args) {
	pool := a.Manager.Pool
	native(pool, "Number", "__preconstructor", 0, noop)
	native(pool, "Number", "toString", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.String(a.Vars, strconv.FormatFloat(args[0].AsNumber(), 'g', -1, 64))
	})
	native(pool, "Number", "isNaN", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Bool(math.IsNaN(args[0].AsNumber()))
	})
}

func registerBoolean(a Args) {
	pool := a.Manager.Pool
	native(pool, "Boolean", "__preconstructor", 0, noop)
	native(pool, "Boolean", "toString", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.String(a.Vars, strconv.FormatBool(args[0].AsBool()))
	})
}

// --- String ------------------------------------------------------------

func registerString(a Args) {
	pool := a.Manager.Pool
	native(pool, "String", "__preconstructor", 0, noop)
	native(pool, "String", "length", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(float64(len([]rune(args[0].AsString()))))
	})
	native(pool, "String", "toUpperCase", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.String(a.Vars, strings.ToUpper(args[0].AsString()))
	})
	native(pool, "String", "toLowerCase", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.String(a.Vars, strings.ToLower(args[0].AsString()))
	})
	native(pool, "String", "substr", 3, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		r := []rune(args[0].AsString())
		start := clampIndex(int(args[1].AsNumber()), len(r))
		end := clampIndex(start+int(args[2].AsNumber()), len(r))
		if end < start {
			end = start
		}
		return variable.String(a.Vars, string(r[start:end]))
	})
	native(pool, "String", "indexOf", 2, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(float64(strings.Index(args[0].AsString(), args[1].AsString())))
	})
	native(pool, "String", "concat", 2, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.String(a.Vars, args[0].AsString()+args[1].AsString())
	})
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// --- Array / Dictionary --------------------------------------------------
//
// Both are implemented as ordinary objects that keep their data in their
// own heap cells rather than in a native Go slice: spec §4.6 gives every
// object a heap and a child list but no opaque "blob" payload. Heap slot 0
// holds the length (Array) or entry count (Dictionary); Array elements
// follow in push order and Dictionary key/value pairs follow as cell pairs
// — the same technique original_source's sslib uses, where both are
// SurgeScript objects built on primitives the VM already has.

func registerArray(a Args) {
	pool := a.Manager.Pool
	const lenAddr = 0
	native(pool, "Array", "__preconstructor", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		o.Heap().Malloc() // always returns lenAddr (0) on a fresh heap
		o.Heap().Set(lenAddr, variable.Number(0))
		return variable.Null()
	})
	native(pool, "Array", "length", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		return o.Heap().At(lenAddr)
	})
	native(pool, "Array", "push", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		n := o.Heap().At(lenAddr)
		addr := o.Heap().Malloc()
		o.Heap().Set(addr, args[0])
		o.Heap().Set(lenAddr, variable.Number(n.AsNumber()+1))
		return variable.Null()
	})
	native(pool, "Array", "get", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		idx := int(args[0].AsNumber())
		return o.Heap().At(heap.Addr(1 + idx)) // slot 0 is length; elements follow in push order
	})
	native(pool, "Array", "set", 2, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		idx := int(args[0].AsNumber())
		o.Heap().Set(heap.Addr(1+idx), args[1])
		return variable.Null()
	})
}

// Dictionary stores key/value pairs as heap cell pairs: slot 0 is the entry
// count, and entry i occupies slots (1+2i) for its key and (1+2i+1) for its
// value. Keys are compared by their debug String() form, which is stable
// for the scalar kinds dictionary keys are realistically built from
// (numbers, strings, booleans) — matching the reference lookup table's
// testable equivalence in spec §8 ("get returns whatever set last wrote").
func registerDictionary(a Args) {
	pool := a.Manager.Pool
	const lenAddr = 0

	find := func(o *object.Object, key variable.Variable) (int, bool) {
		n := int(o.Heap().At(lenAddr).AsNumber())
		for i := 0; i < n; i++ {
			k := o.Heap().At(heap.Addr(1 + 2*i))
			if k.String() == key.String() {
				return i, true
			}
		}
		return 0, false
	}

	native(pool, "Dictionary", "__preconstructor", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		o.Heap().Malloc() // lenAddr
		o.Heap().Set(lenAddr, variable.Number(0))
		return variable.Null()
	})
	native(pool, "Dictionary", "count", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return self.(*object.Object).Heap().At(lenAddr)
	})
	native(pool, "Dictionary", "get", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		if i, ok := find(o, args[0]); ok {
			return o.Heap().At(heap.Addr(1 + 2*i + 1))
		}
		return variable.Null()
	})
	native(pool, "Dictionary", "set", 2, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		o := self.(*object.Object)
		if i, ok := find(o, args[0]); ok {
			o.Heap().Set(heap.Addr(1+2*i+1), args[1])
			return variable.Null()
		}
		n := int(o.Heap().At(lenAddr).AsNumber())
		kAddr := o.Heap().Malloc()
		vAddr := o.Heap().Malloc()
		o.Heap().Set(kAddr, args[0])
		o.Heap().Set(vAddr, args[1])
		o.Heap().Set(lenAddr, variable.Number(float64(n+1)))
		return variable.Null()
	})
	native(pool, "Dictionary", "has", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		_, ok := find(self.(*object.Object), args[0])
		return variable.Bool(ok)
	})
}

// --- Time / Date ----------------------------------------------------

func registerTime(a Args) {
	pool := a.Manager.Pool
	native(pool, "Time", "__preconstructor", 0, noop)
	native(pool, "Time", "now", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(time.Since(a.Start).Seconds())
	})
	native(pool, "Date", "__preconstructor", 0, noop)
	native(pool, "Date", "toString", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.String(a.Vars, time.Now().Format(time.RFC3339))
	})
}

// --- System / Arguments --------------------------------------------------

func registerSystem(a Args) {
	pool := a.Manager.Pool
	native(pool, "Arguments", "__preconstructor", 0, noop)
	native(pool, "Arguments", "count", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(float64(len(a.Argv)))
	})
	native(pool, "Arguments", "get", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		idx := int(args[0].AsNumber())
		if idx < 0 || idx >= len(a.Argv) {
			return variable.Null()
		}
		return variable.String(a.Vars, a.Argv[idx])
	})
	native(pool, "Arguments", "hasOption", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		flag := args[0].AsString()
		for _, v := range a.Argv {
			if v == flag || strings.HasPrefix(v, flag+"=") {
				return variable.Bool(true)
			}
		}
		return variable.Bool(false)
	})
	native(pool, "Arguments", "getOptionValue", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		flag := args[0].AsString()
		for _, v := range a.Argv {
			if strings.HasPrefix(v, flag+"=") {
				return variable.String(a.Vars, strings.TrimPrefix(v, flag+"="))
			}
		}
		return variable.Null()
	})
}

// --- GarbageCollector / TagSystem accessors -------------------------

func registerGC(a Args) {
	pool := a.Manager.Pool
	native(pool, "GarbageCollector", "__preconstructor", 0, noop)
	native(pool, "GarbageCollector", "collect", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		a.Manager.GC.Collect()
		return variable.Null()
	})
	native(pool, "GarbageCollector", "objectCount", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(float64(a.Manager.GC.ObjectCount()))
	})
	native(pool, "GarbageCollector", "getInterval", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Number(float64(a.Manager.GC.Interval()))
	})
	native(pool, "GarbageCollector", "setInterval", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		a.Manager.GC.SetInterval(int(args[0].AsNumber()))
		return variable.Null()
	})
}

func registerTagSystemAccessor(a Args) {
	pool := a.Manager.Pool
	native(pool, "TagSystem", "__preconstructor", 0, noop)
	native(pool, "TagSystem", "hasTag", 2, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		return variable.Bool(a.Manager.Tags.HasTagBound(args[0].AsString(), args[1].AsString()))
	})
}

// --- Application -----------------------------------------------------

func registerApplication(a Args) {
	pool := a.Manager.Pool
	native(pool, "Application", "__preconstructor", 0, noop)
	native(pool, "Application", "crash", 1, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		a.Log.Fatal(args[0].String())
		return variable.Null()
	})
	native(pool, "Application", "exit", 0, func(self program.NativeContext, args []variable.Variable) variable.Variable {
		a.Manager.Exit()
		return variable.Null()
	})
}
