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

package vector

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/tensorize/hwkernel/kernel"
	"github.com/tensorize/hwkernel/kernel/ir"
)

// GroupSize is the number of uint8 x int8 products summed into one int32
// lane: the reduction extent of the kernel.
const GroupSize = 4

// Tensor names of the kernel operands.
const (
	TensorData   = "data"
	TensorKernel = "kernel"
	TensorOutput = "C"
)

// GemvCompute builds the descriptor of C[i] = sum_k data[k] * kernel[i, k]
// with uint8 data, int8 weights and int32 output. Shape arguments are
// (M, K): the number of output lanes and the reduction extent.
func GemvCompute(args ...int) (*kernel.Descriptor, error) {
	if len(args) != 2 {
		return nil, errors.Wrapf(kernel.ErrInvalidDescriptor, "gemv takes (M, K), got %d shape arguments", len(args))
	}
	m, k := args[0], args[1]
	return &kernel.Descriptor{
		Shape: []int{m, k},
		Inputs: []kernel.Operand{
			{Name: TensorData, DType: dtypes.Uint8, Shape: []int{k}},
			{Name: TensorKernel, DType: dtypes.Int8, Shape: []int{m, k}},
		},
		Output:      kernel.Operand{Name: TensorOutput, DType: dtypes.Int32, Shape: []int{m}},
		Accumulator: dtypes.Int32,
		ReduceAxes:  []int{1},
	}, nil
}

// Generator emits the matrix-vector kernel for one profile.
//
// With a nil probe, or when the probe does not report the profile's
// dot-product instruction, the general two-step reduction is emitted.
// Both forms compute bit-identical results.
type Generator struct {
	Profile Profile
	Probe   kernel.CapabilityProbe
}

// New returns a generator for profile. probe may be nil.
func New(profile Profile, probe kernel.CapabilityProbe) *Generator {
	return &Generator{Profile: profile, Probe: probe}
}

var _ kernel.Generator = (*Generator)(nil)

func (g *Generator) fused() bool {
	return g.Probe != nil && g.Probe.Supports(g.Profile.DotProduct)
}

// ISA returns FusedReduce when the probe reports the dot-product
// instruction, GeneralVector otherwise.
func (g *Generator) ISA() kernel.ISA {
	if g.fused() {
		return kernel.FusedReduce
	}
	return kernel.GeneralVector
}

// Capabilities implements kernel.Generator.
func (g *Generator) Capabilities() []string {
	return g.Profile.Intrinsics()
}

// Capacity is one vector register for the accumulator.
func (g *Generator) Capacity() kernel.Capacity {
	return kernel.Capacity{Accumulator: g.Profile.VecWidth}
}

// Generate implements kernel.Generator. Tiles are (M, K) with factors
// (lanes, GroupSize); partial tiles are not supported.
func (g *Generator) Generate(req kernel.TileRequest) (*kernel.EmittedKernel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lanes := g.Profile.Lanes()
	if len(req.Factors) != 2 || req.Factors[0] != lanes || req.Factors[1] != GroupSize {
		return nil, errors.Wrapf(kernel.ErrShapeMismatch, "%s gemv needs factors [%d %d], got %v",
			g.Profile.Name, lanes, GroupSize, req.Factors)
	}
	for dim := range req.Extents {
		if req.IsBoundary(dim) && req.Extents[dim]%req.Factors[dim] != 0 {
			return nil, errors.Wrapf(kernel.ErrShapeMismatch, "%s gemv has no partial tile form, dimension %d: extent %d, factor %d",
				g.Profile.Name, dim, req.Extents[dim], req.Factors[dim])
		}
	}

	data, err := kernel.DeclBuffer(TensorData, "a_buffer", dtypes.Uint8, []int{GroupSize})
	if err != nil {
		return nil, err
	}
	weights, err := kernel.DeclBuffer(TensorKernel, "b_buffer", dtypes.Int8, []int{lanes, GroupSize}, "ldw")
	if err != nil {
		return nil, err
	}
	out, err := kernel.DeclBuffer(TensorOutput, "C", dtypes.Int32, []int{lanes})
	if err != nil {
		return nil, err
	}

	fused := g.fused()
	accType := ir.Vector(dtypes.Int32, lanes)
	byteLanes := lanes * GroupSize
	vecA := ir.Var{Name: "vec_a", Ty: ir.Vector(dtypes.Uint8, byteLanes)}
	vecB := ir.Var{Name: "vec_b", Ty: ir.Vector(dtypes.Int8, byteLanes)}
	loads := []ir.Stmt{
		// The four data bytes are replicated into every int32 lane.
		ir.Let{Var: vecA, Value: ir.Reinterpret{
			Value: ir.Broadcast{
				Value: ir.Reinterpret{
					Value: ir.VLoad{Buffer: data.Buffer, Index: ir.Zeros(1), Ty: ir.Vector(dtypes.Uint8, GroupSize)},
					Ty:    ir.Scalar(dtypes.Int32),
				},
				Lanes: lanes,
			},
			Ty: vecA.Ty,
		}},
		ir.Let{Var: vecB, Value: ir.VLoad{Buffer: weights.Buffer, Index: ir.Zeros(2), Ty: vecB.Ty}},
	}
	acc := ir.VLoad{Buffer: out.Buffer, Index: ir.Zeros(1), Ty: accType}

	var body, update []ir.Stmt
	if fused {
		dot := func(src ir.Expr) ir.Expr {
			return ir.CallIntrin{Name: g.Profile.DotProduct, Ty: accType, Args: []ir.Expr{src, vecA, vecB}}
		}
		body = slices.Concat(loads, []ir.Stmt{ir.VStore{Buffer: out.Buffer, Index: ir.Zeros(1), Value: dot(ir.Splat(accType, 0))}})
		update = slices.Concat(loads, []ir.Stmt{ir.VStore{Buffer: out.Buffer, Index: ir.Zeros(1), Value: dot(acc)}})
	} else {
		stmts, quad := g.twoStep(vecA, vecB, accType)
		body = slices.Concat(loads, stmts, []ir.Stmt{ir.VStore{Buffer: out.Buffer, Index: ir.Zeros(1), Value: quad}})
		update = slices.Concat(loads, stmts, []ir.Stmt{ir.VStore{Buffer: out.Buffer, Index: ir.Zeros(1), Value: ir.Add(quad, acc)}})
	}

	name := "gemv_uint8_int8" + g.Profile.Suffix()
	if fused {
		name += "_vnni"
	}
	return &kernel.EmittedKernel{
		Name:     name,
		Bindings: []*kernel.BufferBinding{data, weights, out},
		Body:     ir.NewFragment(body...),
		Reset:    ir.NewFragment(ir.VStore{Buffer: out.Buffer, Index: ir.Zeros(1), Value: ir.Splat(accType, 0)}),
		Update:   ir.NewFragment(update...),
	}, nil
}

// twoStep emits the general reduction. The unsigned operand is split in
// nibbles so the int16 pair sums stay below saturation: the high half is
// weighted by 16 when the pairs are widened into int32.
func (g *Generator) twoStep(vecA, vecB ir.Var, accType ir.Type) ([]ir.Stmt, ir.Expr) {
	byteType := vecA.Ty
	pairType := ir.Vector(dtypes.Int16, accType.Lanes*2)
	aLo := ir.Var{Name: "a_lo", Ty: byteType}
	aHi := ir.Var{Name: "a_hi", Ty: byteType}
	pairLo := ir.Var{Name: "pair_lo", Ty: pairType}
	pairHi := ir.Var{Name: "pair_hi", Ty: pairType}
	pairs := func(a ir.Var) ir.Expr {
		return ir.CallIntrin{Name: g.Profile.PMaddUBSW, Ty: pairType, Args: []ir.Expr{a, vecB}}
	}
	widen := func(p ir.Var, weight int64) ir.Expr {
		return ir.CallIntrin{Name: g.Profile.PMaddWD, Ty: accType, Args: []ir.Expr{p, ir.Splat(pairType, weight)}}
	}
	stmts := []ir.Stmt{
		ir.Let{Var: aLo, Value: ir.And(vecA, ir.Splat(byteType, 0x0f))},
		ir.Let{Var: aHi, Value: ir.Shr(vecA, ir.Splat(byteType, 4))},
		ir.Let{Var: pairLo, Value: pairs(aLo)},
		ir.Let{Var: pairHi, Value: pairs(aHi)},
	}
	return stmts, ir.Add(widen(pairHi, 16), widen(pairLo, 1))
}
