// Copyright 2025 hwkernel Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ir provides the straight-line code fragments emitted for
// micro-kernel intrinsics, a deterministic printer for them, and an
// interpreter that executes them against typed memory regions.
//
// Fragments are deliberately tiny: a handful of let-bindings, vector
// loads and stores, calls to LLVM intrinsics and calls to external
// procedures. There is no control flow; tile boundaries are handled by
// emitting separate fragments for each static case.
package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
)

// Type is the type of an IR value: an element type and a lane count.
// Scalars have Lanes == 1. Handles (buffer addresses) have Handle set.
type Type struct {
	DType  dtypes.DType
	Lanes  int
	Handle bool
}

// Scalar returns the scalar type for dt.
func Scalar(dt dtypes.DType) Type {
	return Type{DType: dt, Lanes: 1}
}

// Vector returns the vector type with the given number of lanes.
func Vector(dt dtypes.DType, lanes int) Type {
	return Type{DType: dt, Lanes: lanes}
}

// HandleType is the type of a buffer address passed to external procedures.
var HandleType = Type{DType: dtypes.Int64, Lanes: 1, Handle: true}

// IsVector returns true if the type has more than one lane.
func (t Type) IsVector() bool {
	return t.Lanes > 1
}

// Bits returns the total width of the type in bits.
func (t Type) Bits() int {
	return DTypeBits(t.DType) * t.Lanes
}

// Elem returns the scalar element type.
func (t Type) Elem() Type {
	return Type{DType: t.DType, Lanes: 1}
}

// String returns names in the usual "int32x16" notation.
func (t Type) String() string {
	if t.Handle {
		return "handle"
	}
	if t.Lanes <= 1 {
		return DTypeName(t.DType)
	}
	return fmt.Sprintf("%sx%d", DTypeName(t.DType), t.Lanes)
}

// DTypeName returns the lower-case name used in emitted fragments.
func DTypeName(dt dtypes.DType) string {
	switch dt {
	case dtypes.Bool:
		return "bool"
	case dtypes.Int8:
		return "int8"
	case dtypes.Int16:
		return "int16"
	case dtypes.Int32:
		return "int32"
	case dtypes.Int64:
		return "int64"
	case dtypes.Uint8:
		return "uint8"
	case dtypes.Uint16:
		return "uint16"
	case dtypes.Uint32:
		return "uint32"
	case dtypes.Uint64:
		return "uint64"
	case dtypes.Float32:
		return "float32"
	case dtypes.Float64:
		return "float64"
	default:
		return strings.ToLower(fmt.Sprint(dt))
	}
}

// DTypeBits returns the width of one element of dt in bits, or 0 for
// types fragments cannot carry.
func DTypeBits(dt dtypes.DType) int {
	switch dt {
	case dtypes.Bool, dtypes.Int8, dtypes.Uint8:
		return 8
	case dtypes.Int16, dtypes.Uint16:
		return 16
	case dtypes.Int32, dtypes.Uint32, dtypes.Float32:
		return 32
	case dtypes.Int64, dtypes.Uint64, dtypes.Float64:
		return 64
	default:
		return 0
	}
}

// DTypeBytes returns the size of one element of dt in bytes.
func DTypeBytes(dt dtypes.DType) int {
	return DTypeBits(dt) / 8
}

// IsUnsigned reports whether dt is an unsigned integer type (Bool included).
func IsUnsigned(dt dtypes.DType) bool {
	switch dt {
	case dtypes.Bool, dtypes.Uint8, dtypes.Uint16, dtypes.Uint32, dtypes.Uint64:
		return true
	}
	return false
}

// IsInteger reports whether dt is an integer type fragments can compute on.
func IsInteger(dt dtypes.DType) bool {
	switch dt {
	case dtypes.Bool, dtypes.Int8, dtypes.Int16, dtypes.Int32, dtypes.Int64,
		dtypes.Uint8, dtypes.Uint16, dtypes.Uint32, dtypes.Uint64:
		return true
	}
	return false
}

// Wrap truncates v to the width of dt with two's complement wrap-around,
// then sign- or zero-extends it back to int64.
func Wrap(v int64, dt dtypes.DType) int64 {
	bits := DTypeBits(dt)
	if bits == 0 || bits >= 64 {
		return v
	}
	if dt == dtypes.Bool {
		if v != 0 {
			return 1
		}
		return 0
	}
	mask := int64(1)<<bits - 1
	v &= mask
	if !IsUnsigned(dt) && v&(int64(1)<<(bits-1)) != 0 {
		v -= int64(1) << bits
	}
	return v
}

// Saturate clamps v into the representable range of dt.
func Saturate(v int64, dt dtypes.DType) int64 {
	lo, hi := Range(dt)
	return min(max(v, lo), hi)
}

// Range returns the smallest and largest values representable by dt.
func Range(dt dtypes.DType) (lo, hi int64) {
	bits := DTypeBits(dt)
	if bits == 0 || bits >= 64 {
		if IsUnsigned(dt) {
			return 0, 1<<63 - 1
		}
		return -1 << 63, 1<<63 - 1
	}
	if IsUnsigned(dt) {
		return 0, int64(1)<<bits - 1
	}
	return -(int64(1) << (bits - 1)), int64(1)<<(bits-1) - 1
}
