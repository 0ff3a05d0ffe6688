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

package ir

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// LLVM intrinsic names used by the x86 micro-kernels.
const (
	// PMaddUBSW512 multiplies unsigned bytes by signed bytes and adds
	// adjacent pairs into saturated int16 lanes.
	PMaddUBSW512 = "llvm.x86.avx512.pmaddubs.w.512"

	// PMaddWD512 multiplies int16 lanes and adds adjacent pairs into int32.
	PMaddWD512 = "llvm.x86.avx512.pmaddw.d.512"

	// VPDPBUSD512 is the fused unsigned-by-signed byte dot product with
	// int32 accumulation.
	VPDPBUSD512 = "llvm.x86.avx512.vpdpbusd.512"

	// 256-bit forms of the same three operations.
	PMaddUBSW256 = "llvm.x86.avx2.pmadd.ub.sw"
	PMaddWD256   = "llvm.x86.avx2.pmadd.wd"
	VPDPBUSD256  = "llvm.x86.avx512.vpdpbusd.256"
)

// IntrinsicFunc computes the lanes of an intrinsic call whose result type
// is ty.
type IntrinsicFunc func(ty Type, args []Value) ([]int64, error)

var x86Intrinsics = map[string]IntrinsicFunc{
	PMaddUBSW512: pmaddubsw,
	PMaddUBSW256: pmaddubsw,
	PMaddWD512:   pmaddwd,
	PMaddWD256:   pmaddwd,
	VPDPBUSD512:  vpdpbusd,
	VPDPBUSD256:  vpdpbusd,
}

// X86Intrinsics returns the reference semantics of the x86 intrinsics the
// interpreter knows about, keyed by LLVM name.
func X86Intrinsics() map[string]IntrinsicFunc {
	out := make(map[string]IntrinsicFunc, len(x86Intrinsics))
	for k, v := range x86Intrinsics {
		out[k] = v
	}
	return out
}

// asBytes returns the lanes of v viewed as n bytes of the given type.
func asBytes(v Value, dt dtypes.DType, n int) ([]int64, error) {
	if v.Type.Bits() != n*8 {
		return nil, errors.Wrapf(ErrTypeMismatch, "expected %d bits, got %s", n*8, v.Type)
	}
	if v.Type.DType == dt {
		return v.Lanes, nil
	}
	return reinterpretLanes(v.Lanes, v.Type.DType, dt)
}

func pmaddubsw(ty Type, args []Value) ([]int64, error) {
	if len(args) != 2 {
		return nil, errors.Errorf("pmaddubsw takes 2 arguments, got %d", len(args))
	}
	n := ty.Lanes
	a, err := asBytes(args[0], dtypes.Uint8, 2*n)
	if err != nil {
		return nil, errors.WithMessage(err, "pmaddubsw operand a")
	}
	b, err := asBytes(args[1], dtypes.Int8, 2*n)
	if err != nil {
		return nil, errors.WithMessage(err, "pmaddubsw operand b")
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = Saturate(a[2*i]*b[2*i]+a[2*i+1]*b[2*i+1], dtypes.Int16)
	}
	return out, nil
}

func pmaddwd(ty Type, args []Value) ([]int64, error) {
	if len(args) != 2 {
		return nil, errors.Errorf("pmaddwd takes 2 arguments, got %d", len(args))
	}
	n := ty.Lanes
	a, err := asBytes(args[0], dtypes.Int16, 4*n)
	if err != nil {
		return nil, errors.WithMessage(err, "pmaddwd operand a")
	}
	b, err := asBytes(args[1], dtypes.Int16, 4*n)
	if err != nil {
		return nil, errors.WithMessage(err, "pmaddwd operand b")
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = Wrap(a[2*i]*b[2*i]+a[2*i+1]*b[2*i+1], dtypes.Int32)
	}
	return out, nil
}

func vpdpbusd(ty Type, args []Value) ([]int64, error) {
	if len(args) != 3 {
		return nil, errors.Errorf("vpdpbusd takes 3 arguments, got %d", len(args))
	}
	n := ty.Lanes
	src, err := asBytes(args[0], dtypes.Int32, 4*n)
	if err != nil {
		return nil, errors.WithMessage(err, "vpdpbusd source")
	}
	a, err := asBytes(args[1], dtypes.Uint8, 4*n)
	if err != nil {
		return nil, errors.WithMessage(err, "vpdpbusd operand a")
	}
	b, err := asBytes(args[2], dtypes.Int8, 4*n)
	if err != nil {
		return nil, errors.WithMessage(err, "vpdpbusd operand b")
	}
	out := make([]int64, n)
	for i := range out {
		acc := src[i]
		for j := range 4 {
			acc += a[4*i+j] * b[4*i+j]
		}
		out[i] = Wrap(acc, dtypes.Int32)
	}
	return out, nil
}
