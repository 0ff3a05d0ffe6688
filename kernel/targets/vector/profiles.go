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

// Package vector emits the uint8 x int8 matrix-vector micro-kernel for x86
// vector units, in a general form built from pairwise multiply-add steps
// and a fused form using the byte dot-product instruction.
package vector

import (
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/tensorize/hwkernel/kernel"
	"github.com/tensorize/hwkernel/kernel/ir"
)

// Profile describes one x86 vector width and the intrinsics the kernel
// uses at that width.
type Profile struct {
	Name     string // "AVX512", "AVX2"
	VecWidth int    // register width in bytes: 64 for AVX-512, 32 for AVX2

	// PMaddUBSW multiplies uint8 by int8 and adds adjacent pairs into int16.
	PMaddUBSW string

	// PMaddWD multiplies int16 and adds adjacent pairs into int32.
	PMaddWD string

	// DotProduct is the fused uint8 x int8 four-way dot product with int32
	// accumulation. Only used when the capability probe reports it.
	DotProduct string
}

// AVX512Profile returns the profile for 512-bit registers.
func AVX512Profile() Profile {
	return Profile{
		Name:       "AVX512",
		VecWidth:   64,
		PMaddUBSW:  ir.PMaddUBSW512,
		PMaddWD:    ir.PMaddWD512,
		DotProduct: ir.VPDPBUSD512,
	}
}

// AVX2Profile returns the profile for 256-bit registers. The fused form
// needs the 256-bit encoding of the dot-product instruction.
func AVX2Profile() Profile {
	return Profile{
		Name:       "AVX2",
		VecWidth:   32,
		PMaddUBSW:  ir.PMaddUBSW256,
		PMaddWD:    ir.PMaddWD256,
		DotProduct: ir.VPDPBUSD256,
	}
}

// GetProfile returns the profile for the given name.
func GetProfile(name string) (Profile, error) {
	switch strings.ToLower(name) {
	case "avx512":
		return AVX512Profile(), nil
	case "avx2":
		return AVX2Profile(), nil
	default:
		return Profile{}, errors.Wrapf(kernel.ErrUnknownTarget, "vector profile %q (valid: avx512, avx2)", name)
	}
}

// LanesFor returns the number of lanes of dt that fit in a register.
func (p Profile) LanesFor(dt dtypes.DType) int {
	size := ir.DTypeBytes(dt)
	if size == 0 {
		return 1
	}
	return p.VecWidth / size
}

// Lanes returns the number of int32 accumulator lanes, which is the
// number of output rows the kernel computes per call.
func (p Profile) Lanes() int {
	return p.LanesFor(dtypes.Int32)
}

// Intrinsics lists every intrinsic the profile may use.
func (p Profile) Intrinsics() []string {
	return []string{p.PMaddUBSW, p.PMaddWD, p.DotProduct}
}

// Suffix returns the lowercase suffix used in kernel names (e.g. "_avx512").
func (p Profile) Suffix() string {
	return "_" + strings.ToLower(p.Name)
}
