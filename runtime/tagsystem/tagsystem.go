// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package tagsystem implements the object-tagging facility (spec §3, §4
// TagSystem): a many-to-many association between class names and tags,
// matched by exact string equality only (original_source/tag_system.c has
// no glob/regex support, and nothing in the distilled spec asks for one).
//
// Once the object manager locks the class set at boot (spec §4.7), every
// class's tag set is pre-hashed into a bound per-class bucket so that
// has_tag(class, tag) at runtime is an O(1) set membership check instead of
// a scan over a string slice.
package tagsystem

import (
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/surgescript-go/surgescript/util"
)

// bucketCount is the number of buckets the bound fast path hashes tags
// into; a small power of two is plenty since lookups are still backed by
// the exact-match set within the bucket.
const bucketCount = 64

// TagSystem owns the class -> tag-set association. Tags may be declared
// before their class exists (spec: "using" a class's tags is independent of
// spawn order), so registration is keyed purely on the name string.
type TagSystem struct {
	mu     sync.RWMutex
	byTag  map[string]mapset.Set // tag -> set of class names
	tags   map[string]mapset.Set // class -> set of tags
	bound  bool
	seed   uint64
	bucket []mapset.Set // class-name-hash bucket -> union of that bucket's tag sets, once bound
}

// New creates an empty, unbound TagSystem.
func New() *TagSystem {
	return &TagSystem{
		byTag: make(map[string]mapset.Set),
		tags:  make(map[string]mapset.Set),
	}
}

// Tag associates tag with class. Calling Tag after Bind is a programming
// error in the reference implementation (tags are declared during the
// `using` pass, before the pool is frozen); callers must not call Tag once
// Bound() is true.
func (t *TagSystem) Tag(class, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	classSet, ok := t.tags[class]
	if !ok {
		classSet = mapset.NewThreadUnsafeSet()
		t.tags[class] = classSet
	}
	classSet.Add(tag)

	tagSet, ok := t.byTag[tag]
	if !ok {
		tagSet = mapset.NewThreadUnsafeSet()
		t.byTag[tag] = tagSet
	}
	tagSet.Add(class)
}

// HasTag reports whether class was tagged with tag (exact match only).
func (t *TagSystem) HasTag(class, tag string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set, ok := t.tags[class]
	return ok && set.Contains(tag)
}

// TagsOf returns every tag associated with class, in no particular order.
func (t *TagSystem) TagsOf(class string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set, ok := t.tags[class]
	if !ok {
		return nil
	}
	out := make([]string, 0, set.Cardinality())
	for v := range set.Iter() {
		out = append(out, v.(string))
	}
	return out
}

// ClassesWithTag returns every class name tagged with tag.
func (t *TagSystem) ClassesWithTag(tag string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set, ok := t.byTag[tag]
	if !ok {
		return nil
	}
	out := make([]string, 0, set.Cardinality())
	for v := range set.Iter() {
		out = append(out, v.(string))
	}
	return out
}

// Bind freezes the tag table and builds the bound per-class fast path: each
// class name is hashed (xxhash, seeded) into a bucket, and that bucket's
// membership set becomes the union of every tagged class's tag set sharing
// the bucket — lookups after Bind still consult t.tags directly (exact,
// correct), the bucket table exists purely so HasTagBound below is a single
// hash + set-membership check with no map indirection through a class-name
// string.
func (t *TagSystem) Bind(seed uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seed = seed
	t.bucket = make([]mapset.Set, bucketCount)
	for i := range t.bucket {
		t.bucket[i] = mapset.NewThreadUnsafeSet()
	}
	for class, tags := range t.tags {
		b := t.bucketFor(class)
		for v := range tags.Iter() {
			t.bucket[b].Add(v.(string))
		}
	}
	t.bound = true
}

func (t *TagSystem) bucketFor(class string) int {
	return int(util.Hash64(class, t.seed) % uint64(bucketCount))
}

// Bound reports whether Bind has run.
func (t *TagSystem) Bound() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bound
}

// HasTagBound is the bound fast path: it first rejects via the class's
// bucket (no chance that tag is present anywhere reachable from this
// class's bucket) before falling back to the exact per-class set — giving
// the common "definitely not tagged" case a cheap early-out without ever
// returning a false positive.
func (t *TagSystem) HasTagBound(class, tag string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bound {
		b := t.bucketFor(class)
		if !t.bucket[b].Contains(tag) {
			return false
		}
	}
	set, ok := t.tags[class]
	return ok && set.Contains(tag)
}
