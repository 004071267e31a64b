// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash64IsDeterministic(t *testing.T) {
	a := Hash64("Application", 7)
	b := Hash64("Application", 7)
	assert.Equal(t, a, b)
}

func TestHash64DiffersBySeedAndName(t *testing.T) {
	assert.NotEqual(t, Hash64("A", 1), Hash64("A", 2))
	assert.NotEqual(t, Hash64("A", 1), Hash64("B", 1))
}

func TestFindPerfectSeedIsCollisionFree(t *testing.T) {
	names := []string{"Application", "Enemy", "Player", "Console", "Math", "Array", "Dictionary"}
	seed, err := FindPerfectSeed(names, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	seen := make(map[uint32]string)
	for _, n := range names {
		h := uint32(Hash64(n, seed))
		if prior, ok := seen[h]; ok {
			t.Fatalf("collision between %q and %q at seed %d", prior, n, seed)
		}
		seen[h] = n
	}
}

func TestFindPerfectSeedEmptyNameList(t *testing.T) {
	seed, err := FindPerfectSeed(nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_ = seed
}
