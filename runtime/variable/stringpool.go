// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package variable

import (
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cespare/xxhash/v2"
)

// internedString is one entry in a Pool: the live text plus a reference
// count. Two Variables whose str pointers are equal are known-equal
// strings in O(1), matching spec §9 ("make == on strings O(1) when
// pointers match").
type internedString struct {
	text string
	refs int32
	pool *Pool
}

// Pool is the shared, reference-counted string interning table backing
// every runtime-created and literal string Variable (spec §3, §9). Literal
// pools per-program additionally dedupe at parse time; Pool is the single
// process-wide (or per-VM) table runtime concatenation results flow
// through, so repeated identical concatenations collapse to one
// allocation instead of accumulating garbage.
//
// Lookups go through the live map under mu. A
// github.com/VictoriaMetrics/fastcache instance keyed by the xxhash of the
// string mirrors the live set (written on intern, deleted on release);
// nothing reads it back.
type Pool struct {
	mu      sync.Mutex
	live    map[string]*internedString // keyed by text; authoritative refcounts
	lookup  *fastcache.Cache           // xxhash(text) -> text mirror of live; written, never read
	maxSize int
}

// defaultPoolBytes sizes the fastcache mirror; since interning never reads
// it, eviction under memory pressure has no effect on results.
const defaultPoolBytes = 4 * 1024 * 1024

// NewPool creates an empty string interning pool.
func NewPool() *Pool {
	return &Pool{
		live:   make(map[string]*internedString),
		lookup: fastcache.New(defaultPoolBytes),
	}
}

func (p *Pool) key(s string) []byte {
	h := xxhash.Sum64String(s)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(h >> (8 * i))
	}
	return b[:]
}

// intern returns the live interned entry for s, creating one with refs=1 if
// none exists yet, or incrementing the refcount of an existing one.
func (p *Pool) intern(s string) *internedString {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.live[s]; ok {
		entry.refs++
		return entry
	}

	entry := &internedString{text: s, refs: 1, pool: p}
	p.live[s] = entry
	p.lookup.Set(p.key(s), []byte(s))
	return entry
}

// retain bumps an already-interned entry's refcount; used when a Variable
// holding a string is copied into storage with its own lifetime.
func (p *Pool) retain(entry *internedString) {
	p.mu.Lock()
	entry.refs++
	p.mu.Unlock()
}

// release drops an entry's refcount, evicting it from the live table (and
// the fastcache accelerator) once it reaches zero.
func (p *Pool) release(entry *internedString) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		delete(p.live, entry.text)
		p.lookup.Del(p.key(entry.text))
	}
}

// Len returns the number of distinct live strings, for tests and
// diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}
