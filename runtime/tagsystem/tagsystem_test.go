// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package tagsystem

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagAndHasTag(t *testing.T) {
	ts := New()
	ts.Tag("Enemy", "damageable")
	ts.Tag("Enemy", "hostile")
	ts.Tag("Player", "damageable")

	assert.True(t, ts.HasTag("Enemy", "damageable"))
	assert.True(t, ts.HasTag("Enemy", "hostile"))
	assert.False(t, ts.HasTag("Enemy", "friendly"))
	assert.False(t, ts.HasTag("Unknown", "damageable"))
}

func TestTagsOfAndClassesWithTag(t *testing.T) {
	ts := New()
	ts.Tag("Enemy", "damageable")
	ts.Tag("Player", "damageable")
	ts.Tag("Player", "controllable")

	tags := ts.TagsOf("Player")
	sort.Strings(tags)
	assert.Equal(t, []string{"controllable", "damageable"}, tags)

	classes := ts.ClassesWithTag("damageable")
	sort.Strings(classes)
	assert.Equal(t, []string{"Enemy", "Player"}, classes)

	assert.Nil(t, ts.TagsOf("Nonexistent"))
	assert.Nil(t, ts.ClassesWithTag("nonexistent"))
}

func TestExactMatchOnlyNoWildcards(t *testing.T) {
	ts := New()
	ts.Tag("Enemy", "damageable")
	assert.False(t, ts.HasTag("Enemy", "damage"))
	assert.False(t, ts.HasTag("Enemy", "damageable2"))
}

func TestBoundFastPathMatchesUnbound(t *testing.T) {
	ts := New()
	ts.Tag("Enemy", "damageable")
	ts.Tag("Player", "controllable")
	ts.Bind(1)

	assert.True(t, ts.Bound())
	assert.True(t, ts.HasTagBound("Enemy", "damageable"))
	assert.False(t, ts.HasTagBound("Enemy", "controllable"))
	assert.False(t, ts.HasTagBound("Ghost", "damageable"))
}

func TestBindIsDeterministicForSameSeed(t *testing.T) {
	ts1, ts2 := New(), New()
	for _, ts := range []*TagSystem{ts1, ts2} {
		ts.Tag("A", "x")
		ts.Tag("B", "y")
		ts.Bind(42)
	}
	assert.Equal(t, ts1.HasTagBound("A", "x"), ts2.HasTagBound("A", "x"))
}
