// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package heap implements the per-object variable slot pool (spec §3
// Heap). Allocation scans forward from a cursor for the first empty cell;
// freeing a cell resets the cursor to it so the very next allocation reuses
// that address before scanning further — this is the behavior
// original_source/.../heap.c implements and spec §8 calls out as a
// testable property.
package heap

import (
	"fmt"

	"github.com/surgescript-go/surgescript/internal/xlog"
	"github.com/surgescript-go/surgescript/runtime/variable"
)

// InitialSize is the number of cells a freshly created Heap starts with.
const InitialSize = 8

// DefaultMaxSize is the default ceiling on heap growth (10 Mi cells).
const DefaultMaxSize = 10 * 1024 * 1024

// Addr is a heap cell address.
type Addr int

// Heap is an array of optional Variables, grown geometrically on demand.
type Heap struct {
	cells   []*variable.Variable // nil means empty/free
	ptr     Addr                 // allocation cursor
	maxSize int
	log     *xlog.Logger
}

// New creates an empty Heap with InitialSize cells and the given ceiling.
// A zero ceiling defaults to DefaultMaxSize.
func New(maxSize int, log *xlog.Logger) *Heap {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if log == nil {
		log = xlog.Default
	}
	return &Heap{
		cells:   make([]*variable.Variable, InitialSize),
		maxSize: maxSize,
		log:     log,
	}
}

// Malloc allocates a cell and returns its address. It scans forward from
// the cursor for the first empty slot, doubling the backing array (and
// logging once past the first few resizes, mirroring the reference
// implementation) when none is found, up to maxSize.
func (h *Heap) Malloc() Addr {
	for int(h.ptr) < len(h.cells) {
		if h.cells[h.ptr] == nil {
			v := variable.Null()
			h.cells[h.ptr] = &v
			addr := h.ptr
			h.ptr++
			return addr
		}
		h.ptr++
	}

	newSize := len(h.cells) * 2
	if newSize >= h.maxSize {
		h.log.Fatal("heap: max size exceeded", "maxSize", h.maxSize)
	}
	if newSize >= 256 {
		h.log.Info("heap: resizing", "cells", newSize)
	}
	grown := make([]*variable.Variable, newSize)
	copy(grown, h.cells)
	h.cells = grown
	return h.Malloc()
}

// Free releases the cell at addr and resets the allocation cursor to addr
// so the next Malloc reuses it. Freeing an address that is out of range or
// already empty is a no-op, matching the reference implementation.
func (h *Heap) Free(addr Addr) {
	if addr < 0 || int(addr) >= len(h.cells) || h.cells[addr] == nil {
		return
	}
	h.cells[addr].Release()
	h.cells[addr] = nil
	h.ptr = addr
}

// At returns the variable stored at addr. Reading an empty or out-of-range
// slot is a fatal error (spec §3 invariant).
func (h *Heap) At(addr Addr) variable.Variable {
	if addr < 0 || int(addr) >= len(h.cells) || h.cells[addr] == nil {
		h.log.Fatal(fmt.Sprintf("heap: null pointer exception at 0x%X", addr))
	}
	return *h.cells[addr]
}

// Set overwrites the variable stored at addr, releasing the prior value and
// retaining the new one so string refcounts stay balanced.
func (h *Heap) Set(addr Addr, v variable.Variable) {
	if addr < 0 || int(addr) >= len(h.cells) || h.cells[addr] == nil {
		h.log.Fatal(fmt.Sprintf("heap: null pointer exception at 0x%X", addr))
	}
	h.cells[addr].Release()
	v.Retain()
	*h.cells[addr] = v
}

// Size returns the current capacity of the heap (allocated or not).
func (h *Heap) Size() int { return len(h.cells) }

// ScanHandles calls fn for every live object-handle variable currently
// stored in the heap; used by the garbage collector's mark phase
// (spec §4.8).
func (h *Heap) ScanHandles(fn func(handle uint32)) {
	for _, c := range h.cells {
		if c != nil && c.Kind() == variable.KindObjectHandle && c.AsObjectHandle() != 0 {
			fn(c.AsObjectHandle())
		}
	}
}

// Destroy releases every live cell's string reference, if any. Call once
// when the owning object is destroyed.
func (h *Heap) Destroy() {
	for i, c := range h.cells {
		if c != nil {
			c.Release()
			h.cells[i] = nil
		}
	}
}
