// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package util collects the small cross-cutting helpers the runtime and
// compiler both depend on: xxhash-backed hashing and the perfect-hash seed
// search for class ids.
package util

import (
	"fmt"
	"math/rand"

	"github.com/cespare/xxhash/v2"
)

// Hash64 returns the 64-bit xxhash digest of name salted with seed. This is
// the single hashing primitive used both by the perfect-hash class id
// search (spec §4.7, §9) and by the bound tag system's bucket hash
// (spec §4 TagSystem).
func Hash64(name string, seed uint64) uint64 {
	d := xxhash.New()
	var seedBuf [8]byte
	putUint64(seedBuf[:], seed)
	d.Write(seedBuf[:])
	d.Write([]byte(name))
	return d.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// maxSeedAttempts bounds the rejection-sampling search for a perfect hash
// seed; failure after this many tries is a fatal startup error (spec §4.7).
const maxSeedAttempts = 100000

// ErrNoPerfectSeed is returned when no collision-free seed was found within
// maxSeedAttempts tries.
type ErrNoPerfectSeed struct {
	Attempts int
	Names    int
}

func (e *ErrNoPerfectSeed) Error() string {
	return fmt.Sprintf("no perfect hash seed found for %d names after %d attempts", e.Names, e.Attempts)
}

// FindPerfectSeed searches for a 64-bit seed s such that Hash64(name, s)
// truncated to 32 bits is injective over names. It is rejection-sampled:
// a seed is drawn at random, every name is hashed and inserted into a
// binary search tree of seen 32-bit values, and the seed is accepted iff no
// collision was recorded. Per spec §9, since the class-name set is tiny next
// to 2^32, the very first seed tried almost always works.
func FindPerfectSeed(names []string, rng *rand.Rand) (uint64, error) {
	for attempt := 0; attempt < maxSeedAttempts; attempt++ {
		seed := rng.Uint64()
		seen := newSeenTree()
		collision := false
		for _, name := range names {
			h := uint32(Hash64(name, seed))
			if !seen.insert(h) {
				collision = true
				break
			}
		}
		if !collision {
			return seed, nil
		}
	}
	return 0, &ErrNoPerfectSeed{Attempts: maxSeedAttempts, Names: len(names)}
}

// seenTree is a small unbalanced binary search tree of uint32 values, used
// to detect hash collisions during perfect-hash seed search without the
// O(n log n) allocation overhead of a generic sorted-map per attempt.
type seenTree struct {
	root *seenNode
}

type seenNode struct {
	value       uint32
	left, right *seenNode
}

func newSeenTree() *seenTree { return &seenTree{} }

// insert adds value to the tree, returning false if it was already present
// (a collision).
func (t *seenTree) insert(value uint32) bool {
	if t.root == nil {
		t.root = &seenNode{value: value}
		return true
	}
	n := t.root
	for {
		switch {
		case value == n.value:
			return false
		case value < n.value:
			if n.left == nil {
				n.left = &seenNode{value: value}
				return true
			}
			n = n.left
		default:
			if n.right == nil {
				n.right = &seenNode{value: value}
				return true
			}
			n = n.right
		}
	}
}
