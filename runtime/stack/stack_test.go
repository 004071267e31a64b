// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgescript-go/surgescript/internal/xlog"
	"github.com/surgescript-go/surgescript/runtime/variable"
)

func TestPushPop(t *testing.T) {
	s := New(0, nil)
	s.Push(variable.Number(1))
	s.Push(variable.Number(2))
	assert.Equal(t, float64(2), s.Pop().AsNumber())
	assert.Equal(t, float64(1), s.Pop().AsNumber())
}

func TestPushEnvFirstLocalIsOffsetOne(t *testing.T) {
	// PushEnv writes the saved-bp value into the cell at the current sp,
	// then moves bp there — so offset 0 from bp is always that saved-bp
	// cell, and the first real local must live at offset 1.
	s := New(0, nil)
	s.PushEnv()
	s.Push(variable.Number(42))
	assert.Equal(t, float64(42), s.At(1).AsNumber())
}

func TestPopEnvRestoresPreviousBP(t *testing.T) {
	s := New(0, nil)
	s.PushEnv()
	outerBP := s.BP()
	s.Push(variable.Number(1))

	s.PushEnv()
	s.Push(variable.Number(2))
	s.Push(variable.Number(3))
	s.PopEnv()

	assert.Equal(t, outerBP, s.BP())
	assert.Equal(t, float64(1), s.At(1).AsNumber())
}

func TestAtAndSetAt(t *testing.T) {
	s := New(0, nil)
	s.PushEnv()
	s.Push(variable.Number(1))
	s.Push(variable.Number(2))

	s.SetAt(2, variable.Number(99))
	assert.Equal(t, float64(99), s.At(2).AsNumber())
}

func TestPushNPopN(t *testing.T) {
	s := New(0, nil)
	before := s.SP()
	s.PushN(3)
	assert.Equal(t, before+3, s.SP())
	s.PopN(3)
	assert.Equal(t, before, s.SP())
}

func TestScanHandlesVisitsOnlyObjectHandles(t *testing.T) {
	s := New(0, nil)
	s.Push(variable.Number(1))
	s.Push(variable.ObjectHandle(7))
	s.Push(variable.ObjectHandle(0)) // handle zero is never live
	s.Push(variable.ObjectHandle(9))

	var seen []uint32
	s.ScanHandles(func(h uint32) { seen = append(seen, h) })
	assert.Equal(t, []uint32{7, 9}, seen)
}

func TestPopOnEmptyStackIsFatal(t *testing.T) {
	log := xlog.New(nopWriter{})
	s := New(0, log)
	assert.Panics(t, func() { s.Pop() })
}

func TestOverflowPastMaxSizeIsFatal(t *testing.T) {
	log := xlog.New(nopWriter{})
	s := New(4, log)
	assert.Panics(t, func() {
		for i := 0; i < 100; i++ {
			s.Push(variable.Number(float64(i)))
		}
	})
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPushRetainsStringPayload(t *testing.T) {
	pool := variable.NewPool()
	s := New(0, nil)
	v := variable.String(pool, "hello")
	s.Push(v)
	require.Equal(t, "hello", s.Pop().AsString())
}
