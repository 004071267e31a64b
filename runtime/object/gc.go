// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	mapset "github.com/deckarep/golang-set"
)

// sweepBatchSize bounds how many objects GC.Step inspects per tick during
// the sweep phase, spreading collection over several frames instead of
// pausing the whole tree at once (spec §4.8: "incremental").
const sweepBatchSize = 64

// defaultGCInterval is the number of ticks between automatic mark phases.
const defaultGCInterval = 60

// GC is the incremental mark-and-sweep collector bound to a Manager. It
// never frees a handle reachable from the root, from the shared stack, or
// from any live object's heap (spec §4.8 reachability set).
type GC struct {
	manager  *Manager
	interval int
	ticks    int

	reachable mapset.Set // Handle, boxed as uint32, built by the last mark phase
	sweepList []Handle   // candidates for this sweep: every live handle not found reachable
	cursor    int
}

func newGC(m *Manager) *GC {
	return &GC{manager: m, interval: defaultGCInterval, reachable: mapset.NewThreadUnsafeSet()}
}

// Interval returns the number of ticks between automatic mark phases.
func (g *GC) Interval() int { return g.interval }

// SetInterval changes the number of ticks between automatic mark phases.
// Step compares its tick counter against the new value from the next tick
// on, so the change also applies to the countdown already in progress
// (see DESIGN.md Open decision on GC.SetInterval).
func (g *GC) SetInterval(ticks int) { g.interval = ticks }

// ObjectCount returns the number of currently live (not yet swept) objects,
// backing the GarbageCollector.objectCount() native binding.
func (g *GC) ObjectCount() int { return g.manager.Count() }

// Step advances the collector by one tick: it runs a full mark phase every
// Interval ticks (Collect does not reset this countdown), then sweeps up to
// sweepBatchSize candidates from the previous mark's result.
func (g *GC) Step() {
	g.ticks++
	if g.ticks >= g.interval {
		g.ticks = 0
		g.mark()
	}
	g.sweep(sweepBatchSize)
}

// Collect forces an immediate full mark-and-sweep cycle, draining the
// entire sweep list before returning (the GarbageCollector.collect()
// native binding).
func (g *GC) Collect() {
	g.mark()
	g.sweep(len(g.sweepList))
}

// mark computes the reachable set: the root, every handle found on the
// shared stack, and every handle transitively found in a reachable
// object's heap. Tree parent/child links are never a source of
// reachability (spec §4.8: the tree is "their heaps and the shared stack
// for embedded object handles", not the spawn hierarchy) — an object kept
// alive only by being someone's tree child, with no heap or stack cell
// pointing at it, is exactly what sweep is supposed to reclaim.
func (g *GC) mark() {
	reachable := mapset.NewThreadUnsafeSet()
	queue := make([]Handle, 0, len(g.manager.objects))

	if g.manager.root != 0 {
		queue = append(queue, g.manager.root)
		reachable.Add(g.manager.root)
	}
	g.manager.Stack.ScanHandles(func(h uint32) {
		if h != 0 && !reachable.Contains(h) {
			reachable.Add(h)
			queue = append(queue, h)
		}
	})

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		o := g.manager.objects[h]
		if o == nil {
			continue
		}
		o.heap.ScanHandles(func(ref uint32) {
			if ref != 0 && !reachable.Contains(ref) {
				reachable.Add(ref)
				queue = append(queue, ref)
			}
		})
	}

	g.reachable = reachable

	// Every live object missing from the reachable set is swept, whether or
	// not destroy() was ever called on it (spec §4.8: "such objects are
	// killed immediately"); an object that existed when this mark ran but
	// wasn't found in the closure is the candidate set for this cycle — one
	// spawned after this point simply isn't in manager.objects yet, so it
	// can never land in sweepList before the next mark gets a chance to see
	// it holding a live reference (spec §4.6's spawn-time grace, satisfied
	// for free by recomputing the whole set fresh each cycle).
	g.sweepList = g.sweepList[:0]
	for h, o := range g.manager.objects {
		o.reachable = reachable.Contains(h)
		if !o.reachable {
			g.sweepList = append(g.sweepList, h)
		}
	}
	g.cursor = 0
}

// sweep reclaims up to n candidates from the sweep list. A candidate that
// hasn't already been destroy()-ed is killed first — destructor, detach
// from its parent — but without cascading into its own children: each
// child is reachability-independent and, if genuinely unreachable too,
// will appear in this same sweep (or the next one) on its own account.
// Cascading here would wrongly kill a child still held live by some other
// object's heap slot, purely because of where it sits in the tree.
func (g *GC) sweep(n int) {
	count := 0
	for g.cursor < len(g.sweepList) && count < n {
		h := g.sweepList[g.cursor]
		g.cursor++
		count++
		o := g.manager.killOne(h)
		if o == nil {
			continue
		}
		g.manager.orphanChildren(o)
		g.manager.reclaim(h)
	}
}
