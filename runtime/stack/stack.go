// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package stack implements the single call stack shared by every running
// program (spec §3 Stack): a flat array of Variables addressed by a stack
// pointer (sp) and base pointer (bp), where bp always points to a saved-bp
// cell whose contents are the caller's bp (zero at the bottom).
package stack

import (
	"github.com/surgescript-go/surgescript/internal/xlog"
	"github.com/surgescript-go/surgescript/runtime/variable"
)

// InitialCapacity is the number of cells preallocated for a new Stack.
const InitialCapacity = 256

// DefaultMaxDepth bounds the stack to guard against runaway recursion;
// exceeding it is a fatal error (spec §4.5 "stack overflow on push").
const DefaultMaxDepth = 1 << 20

// Stack is the VM-wide value stack. sp is the index one past the last
// occupied cell; bp is the base of the current call environment.
type Stack struct {
	cells   []variable.Variable
	sp      int
	bp      int
	maxSize int
	log     *xlog.Logger
}

// New creates an empty Stack with bp/sp both at 0 (environment 0's saved-bp
// cell, containing the sentinel zero, has not yet been pushed; PushEnv
// pushes it on the first call).
func New(maxSize int, log *xlog.Logger) *Stack {
	if maxSize <= 0 {
		maxSize = DefaultMaxDepth
	}
	if log == nil {
		log = xlog.Default
	}
	return &Stack{
		cells:   make([]variable.Variable, InitialCapacity),
		maxSize: maxSize,
		log:     log,
	}
}

// SP returns the current stack pointer.
func (s *Stack) SP() int { return s.sp }

// BP returns the current base pointer.
func (s *Stack) BP() int { return s.bp }

func (s *Stack) ensure(idx int) {
	if idx >= s.maxSize {
		s.log.Fatal("stack: overflow", "index", idx, "maxSize", s.maxSize)
	}
	if idx < len(s.cells) {
		return
	}
	newCap := len(s.cells) * 2
	for newCap <= idx {
		newCap *= 2
	}
	if newCap > s.maxSize {
		newCap = s.maxSize
	}
	grown := make([]variable.Variable, newCap)
	copy(grown, s.cells)
	s.cells = grown
}

// Push pushes v onto the top of the stack, retaining any string payload.
func (s *Stack) Push(v variable.Variable) {
	s.ensure(s.sp)
	v.Retain()
	s.cells[s.sp] = v
	s.sp++
}

// Pop removes and returns the top of the stack. Popping an empty stack is a
// fatal error.
func (s *Stack) Pop() variable.Variable {
	if s.sp <= 0 {
		s.log.Fatal("stack: pop on empty stack")
	}
	s.sp--
	v := s.cells[s.sp]
	s.cells[s.sp] = variable.Null()
	return v
}

// PushN reserves n additional null cells without producing user-visible
// values (OpPushN — bulk local-variable reservation).
func (s *Stack) PushN(n int) {
	for i := 0; i < n; i++ {
		s.Push(variable.Null())
	}
}

// PopN discards the top n cells, releasing any string payloads.
func (s *Stack) PopN(n int) {
	for i := 0; i < n; i++ {
		s.Pop().Release()
	}
}

// At returns the variable at an offset relative to bp (spec: "Addresses
// referenced by bytecode are signed offsets from bp"). Out-of-range offsets
// are a fatal error.
func (s *Stack) At(offset int) variable.Variable {
	idx := s.bp + offset
	if idx < 0 || idx >= s.sp {
		s.log.Fatal("stack: peek out of range", "offset", offset, "bp", s.bp, "sp", s.sp)
	}
	return s.cells[idx]
}

// SetAt overwrites the variable at an offset relative to bp.
func (s *Stack) SetAt(offset int, v variable.Variable) {
	idx := s.bp + offset
	if idx < 0 || idx >= s.sp {
		s.log.Fatal("stack: poke out of range", "offset", offset, "bp", s.bp, "sp", s.sp)
	}
	s.cells[idx].Release()
	v.Retain()
	s.cells[idx] = v
}

// PushEnv saves the current bp in a new cell at sp, then sets bp to point
// at that cell (spec §3: "pushenv saves the old bp as a cell at sp+1 and
// sets bp := sp+1" — 0-indexed here, so the saved cell lands at the current
// sp before it is incremented).
func (s *Stack) PushEnv() {
	s.ensure(s.sp)
	s.cells[s.sp] = variable.RawBits(int64(s.bp))
	s.bp = s.sp
	s.sp++
}

// PopEnv restores the previous bp from the saved-bp cell and discards
// everything above it, including that cell itself.
func (s *Stack) PopEnv() {
	prevBP := int(s.cells[s.bp].AsRawBits())
	for s.sp > s.bp {
		s.sp--
		s.cells[s.sp].Release()
		s.cells[s.sp] = variable.Null()
	}
	s.bp = prevBP
}

// ScanHandles calls fn for every live object-handle variable currently on
// the stack, from index 0 to sp; used by the garbage collector, which must
// never collect an object reachable from any stack cell (spec §4.8).
func (s *Stack) ScanHandles(fn func(handle uint32)) {
	for i := 0; i < s.sp; i++ {
		if s.cells[i].Kind() == variable.KindObjectHandle && s.cells[i].AsObjectHandle() != 0 {
			fn(s.cells[i].AsObjectHandle())
		}
	}
}
