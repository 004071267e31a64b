// Copyright 2024 The SurgeScript-Go Authors
// SPDX-License-Identifier: Apache-2.0

// Package variable implements the tagged-value container that flows through
// every layer of the VM: heap cells, stack slots, registers, and function
// arguments are all Variables (spec §3 Variable).
package variable

import "fmt"

// Kind discriminates the tag of a Variable. The zero value is Null so a
// freshly zero-valued Variable is a valid null, matching the teacher's
// convention of meaningful zero values.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObjectHandle
	KindRawBits
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObjectHandle:
		return "object"
	case KindRawBits:
		return "raw"
	default:
		return "?"
	}
}

// Variable is a small, copy-by-value tagged union. Exactly one of its
// payload fields is meaningful at a time, selected by kind; strings are the
// only payload requiring reference-counted cleanup (via the interning
// pool), everything else is an inline scalar so copying a Variable never
// allocates except for the string case (spec §3 invariant: "a variable
// always has exactly one tag").
type Variable struct {
	kind   Kind
	number float64
	raw    int64
	str    *internedString // nil unless kind == KindString
	handle uint32          // valid when kind == KindObjectHandle
	flag   bool            // valid when kind == KindBool
}

// Null returns the null Variable.
func Null() Variable { return Variable{} }

// Bool returns a boolean Variable.
func Bool(b bool) Variable { return Variable{kind: KindBool, flag: b} }

// Number returns a numeric (IEEE-754 double) Variable.
func Number(n float64) Variable { return Variable{kind: KindNumber, number: n} }

// ObjectHandle returns a Variable holding a handle into the object table.
func ObjectHandle(handle uint32) Variable { return Variable{kind: KindObjectHandle, handle: handle} }

// RawBits returns a Variable holding an internal 64-bit signed integer not
// observable from script code (spec §3: "raw-bits values are not observable
// from script code but flow through comparison temporaries").
func RawBits(v int64) Variable { return Variable{kind: KindRawBits, raw: v} }

// String returns a Variable holding an interned, reference-counted string;
// the call itself counts as one reference. Copying the Variable does not
// change the count: storage that keeps a copy with its own lifetime (a heap
// cell, a stack slot) calls Retain, and Release when that copy's lifetime
// ends.
func String(pool *Pool, s string) Variable {
	return Variable{kind: KindString, str: pool.intern(s)}
}

// Kind returns the variable's tag.
func (v Variable) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Variable) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload; valid only when Kind() == KindBool.
func (v Variable) AsBool() bool { return v.flag }

// AsNumber returns the numeric payload; valid only when Kind() == KindNumber.
func (v Variable) AsNumber() float64 { return v.number }

// AsRawBits returns the raw-bits payload; valid only when Kind() == KindRawBits.
func (v Variable) AsRawBits() int64 { return v.raw }

// AsObjectHandle returns the handle payload; valid only when
// Kind() == KindObjectHandle.
func (v Variable) AsObjectHandle() uint32 { return v.handle }

// AsString returns the string payload; valid only when Kind() == KindString.
func (v Variable) AsString() string {
	if v.str == nil {
		return ""
	}
	return v.str.text
}

// Retain increments the backing string's reference count, if any. Call this
// whenever a Variable is copied into storage with an independent lifetime
// (a heap cell, a stack slot) so Release calls balance.
func (v Variable) Retain() {
	if v.kind == KindString && v.str != nil {
		v.str.pool.retain(v.str)
	}
}

// Release decrements the backing string's reference count, if any,
// returning the string to the interning pool once it reaches zero.
func (v Variable) Release() {
	if v.kind == KindString && v.str != nil {
		v.str.pool.release(v.str)
	}
}

// IsTruthy implements SurgeScript's truthiness coercion (LNOT2 / double
// negation): null and false-bool are falsy, the number zero is falsy, the
// empty string is falsy, everything else (including any object handle and
// nonzero raw bits) is truthy.
func (v Variable) IsTruthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.flag
	case KindNumber:
		return v.number != 0
	case KindString:
		return v.AsString() != ""
	case KindRawBits:
		return v.raw != 0
	case KindObjectHandle:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer for debug output; it is not the script-
// level toString conversion (that lives in the String stdlib binding).
func (v Variable) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.flag)
	case KindNumber:
		return fmt.Sprintf("%g", v.number)
	case KindString:
		return v.AsString()
	case KindObjectHandle:
		return fmt.Sprintf("[object %d]", v.handle)
	case KindRawBits:
		return fmt.Sprintf("%d", v.raw)
	default:
		return "?"
	}
}
