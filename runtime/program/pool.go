// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package program

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// key identifies a program by the class that declares it and the function
// name it implements ("state:<name>" for states, the bare name otherwise).
type key struct {
	class string
	fun   string
}

// Pool maps (class, function) to a compiled Program and is locked against
// further registration once the VM launches (spec §3 ProgramPool, §4.7).
//
// The lookup itself is served by a github.com/hashicorp/golang-lru cache
// whose capacity never falls below the number of registered entries, so
// nothing is ever evicted — this buys the library's synchronized get/add API (and its
// well-exercised hashing of arbitrary key types) over a hand-rolled
// map+mutex, while preserving the "frozen after boot, lookups never miss"
// invariant a plain map would also provide.
type Pool struct {
	mu       sync.RWMutex
	cache    *lru.Cache
	capacity int
	classes  map[string]bool // every class name ever registered, for perfect-hash seeding
	locked   bool
}

// initialCapacity is generous enough that a typical script's entire class
// set registers without ever triggering a resize.
const initialCapacity = 1024

// NewPool creates an empty, unlocked ProgramPool.
func NewPool() *Pool {
	return &Pool{
		cache:    mustLRU(initialCapacity),
		capacity: initialCapacity,
		classes:  make(map[string]bool),
	}
}

func mustLRU(size int) *lru.Cache {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return c
}

// ErrFrozen is returned by Put once the pool has been locked.
type ErrFrozen struct {
	Class, Function string
}

func (e *ErrFrozen) Error() string {
	return fmt.Sprintf("program pool: cannot register %s.%s, pool is frozen", e.Class, e.Function)
}

// ErrAlreadyExecuted is returned by Put when replacing a program that has
// already run at least once (spec §4.4).
type ErrAlreadyExecuted struct {
	Class, Function string
}

func (e *ErrAlreadyExecuted) Error() string {
	return fmt.Sprintf("program pool: %s.%s has already executed and cannot be replaced", e.Class, e.Function)
}

// Put registers prog under (class, function). It doubles the backing LRU
// cache's capacity whenever a new key would not fit, so nothing is ever
// evicted.
func (p *Pool) Put(class, function string, prog *Program) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := key{class, function}
	if existing, ok := p.cache.Peek(k); ok {
		if existing.(*Program).HasExecuted() {
			return &ErrAlreadyExecuted{class, function}
		}
	} else if p.locked {
		return &ErrFrozen{class, function}
	}

	if !p.cache.Contains(k) && p.cache.Len()+1 > p.capacity {
		p.capacity *= 2
		p.cache.Resize(p.capacity)
	}
	p.cache.Add(k, prog)
	p.classes[class] = true
	return nil
}

// Get looks up the program implementing (class, function); ok is false if
// no such program was ever registered.
func (p *Pool) Get(class, function string) (*Program, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.cache.Get(key{class, function})
	if !ok {
		return nil, false
	}
	return v.(*Program), true
}

// Has reports whether a class has any programs registered at all.
func (p *Pool) Has(class string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.classes[class]
}

// Lock freezes the pool: no further Put of a brand-new key succeeds.
// Replacing a not-yet-executed program remains legal (hot-reload of an
// unused program is harmless); this matches spec §4.4's narrower freeze
// ("once any program of a class has executed") layered on top of §4.7's
// boot-time freeze of the class set.
func (p *Pool) Lock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = true
}

// Locked reports whether the pool has been frozen.
func (p *Pool) Locked() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.locked
}

// ClassNames returns every class name ever registered, sorted, for
// deterministic perfect-hash seeding (spec §4.7).
func (p *Pool) ClassNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.classes))
	for c := range p.classes {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}
