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

// Package scratchpad emits the int8 matrix multiply micro-kernel for a
// systolic matrix accelerator driven through external procedures.
//
// The accelerator works on square blocks of Dim x Dim elements, stages
// operands in a scratchpad memory and accumulates int32 results in a
// separate accumulator memory. A tile is described to it in blocks plus
// the padding that completes the last block of each dimension.
package scratchpad

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/tensorize/hwkernel/kernel"
	"github.com/tensorize/hwkernel/kernel/ir"
)

// Names of the accelerator procedures.
const (
	ProcReset    = "kernel_reset"
	ProcUpdate   = "kernel_update"
	ProcFinalize = "kernel_finalize"
)

// Device limits of a single kernel instance.
const (
	ScratchpadBytes  = 256 * 1024
	AccumulatorBytes = 64 * 1024

	// DefaultDim is the side of the accelerator's systolic array.
	DefaultDim = 16
)

// Bias sentinels passed to ProcUpdate. A non-null bias address makes the
// accelerator overwrite its accumulator, null makes it accumulate.
const (
	BiasOverwrite  = 1
	BiasAccumulate = 0
)

// Tensor names of the kernel operands.
const (
	TensorA = "A"
	TensorB = "B"
	TensorC = "C"
)

// GemmCompute builds the descriptor of C[i, j] = sum_k A[i, k] * B[k, j]
// for int8 operands with int32 accumulation. Shape arguments are
// (N, M, K).
func GemmCompute(args ...int) (*kernel.Descriptor, error) {
	if len(args) != 3 {
		return nil, errors.Wrapf(kernel.ErrInvalidDescriptor, "gemm takes (N, M, K), got %d shape arguments", len(args))
	}
	n, m, k := args[0], args[1], args[2]
	return &kernel.Descriptor{
		Shape: []int{n, m, k},
		Inputs: []kernel.Operand{
			{Name: TensorA, DType: dtypes.Int8, Shape: []int{n, k}},
			{Name: TensorB, DType: dtypes.Int8, Shape: []int{k, m}},
		},
		Output:      kernel.Operand{Name: TensorC, DType: dtypes.Int8, Shape: []int{n, m}},
		Accumulator: dtypes.Int32,
		ReduceAxes:  []int{2},
	}, nil
}

// Generator emits the reset, update and finalize calls of the
// accelerator for one tile.
type Generator struct {
	// Dim is the side of the accelerator's blocks.
	Dim int
}

// New returns a generator for an accelerator with blocks of dim x dim.
func New(dim int) *Generator {
	return &Generator{Dim: dim}
}

var (
	_ kernel.Generator              = (*Generator)(nil)
	_ kernel.FirstReductionSplitter = (*Generator)(nil)
)

// ISA implements kernel.Generator.
func (g *Generator) ISA() kernel.ISA {
	return kernel.ExternalAccelerator
}

// Capabilities implements kernel.Generator. The accelerator is not probed.
func (g *Generator) Capabilities() []string {
	return nil
}

// Capacity implements kernel.Generator.
func (g *Generator) Capacity() kernel.Capacity {
	return kernel.Capacity{Scratchpad: ScratchpadBytes, Accumulator: AccumulatorBytes}
}

// SplitsFirstReduction is true: the first reduction tile overwrites the
// accumulator, later ones add to it.
func (g *Generator) SplitsFirstReduction() bool {
	return true
}

// Generate implements kernel.Generator. Tiles are (N, M, K).
func (g *Generator) Generate(req kernel.TileRequest) (*kernel.EmittedKernel, error) {
	if g.Dim <= 0 {
		return nil, errors.Wrapf(kernel.ErrInvalidTile, "accelerator block size %d", g.Dim)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Extents) != 3 {
		return nil, errors.Wrapf(kernel.ErrShapeMismatch, "gemm tiles are (N, M, K), got %d dimensions", len(req.Extents))
	}

	// The factors are what the scratchpad must hold for regular tiles.
	fN, fM, fK := req.Factors[0], req.Factors[1], req.Factors[2]
	tileDesc := must.M1(GemmCompute(fN, fM, fK))
	if err := g.Capacity().Check(tileDesc); err != nil {
		return nil, errors.WithMessagef(err, "tile %s", req)
	}

	shape, err := req.TileShape()
	if err != nil {
		return nil, err
	}
	n, m, k := shape[0], shape[1], shape[2]
	var blocks [3]kernel.TileEdge
	for dim, extent := range shape {
		if blocks[dim], err = kernel.BlockEdge(extent, g.Dim); err != nil {
			return nil, errors.WithMessagef(err, "dimension %d", dim)
		}
	}
	edgeI, edgeJ, edgeK := blocks[0], blocks[1], blocks[2]

	a, err := kernel.DeclBuffer(TensorA, "A", dtypes.Int8, []int{n, k}, "sA")
	if err != nil {
		return nil, err
	}
	b, err := kernel.DeclBuffer(TensorB, "B", dtypes.Int8, []int{k, m}, "sB")
	if err != nil {
		return nil, err
	}
	c, err := kernel.DeclBuffer(TensorC, "C", dtypes.Int8, []int{n, m}, "sC")
	if err != nil {
		return nil, err
	}
	sA, sB, sC := a.StrideVars()[0], b.StrideVars()[0], c.StrideVars()[0]
	i32 := func(v int) ir.Expr { return ir.Int32(int64(v)) }
	status := ir.Scalar(dtypes.Int32)

	bias := BiasAccumulate
	if req.FirstReduction {
		bias = BiasOverwrite
	}
	update := ir.CallExtern{Name: ProcUpdate, Ty: status, Args: []ir.Expr{
		ir.AccessPtr{Buffer: a.Buffer, Mode: ir.AccessRead},
		ir.AccessPtr{Buffer: b.Buffer, Mode: ir.AccessRead},
		i32(bias),
		ir.AccessPtr{Buffer: c.Buffer, Mode: ir.AccessReadWrite},
		i32(edgeI.Blocks), i32(edgeJ.Blocks), i32(edgeK.Blocks),
		i32(edgeI.Pad), i32(edgeJ.Pad), i32(edgeK.Pad),
		sA, sB, i32(0), sC,
		ir.Bool(true), ir.Bool(false),
	}}
	reset := ir.CallExtern{Name: ProcReset, Ty: status, Args: []ir.Expr{
		ir.AccessPtr{Buffer: c.Buffer, Mode: ir.AccessWrite},
		i32(edgeI.Blocks), i32(edgeJ.Blocks),
		i32(edgeI.Pad), i32(edgeJ.Pad),
		sC,
	}}
	finalize := ir.CallExtern{Name: ProcFinalize, Ty: status, Args: []ir.Expr{
		ir.AccessPtr{Buffer: c.Buffer, Mode: ir.AccessReadWrite},
		i32(edgeI.Blocks), i32(edgeJ.Blocks),
		i32(edgeI.Pad), i32(edgeJ.Pad),
		sC,
	}}

	return &kernel.EmittedKernel{
		Name:     "sp_gemm",
		Bindings: []*kernel.BufferBinding{a, b, c},
		Reset:    ir.NewFragment(ir.Evaluate{Value: reset}),
		Update:   ir.NewFragment(ir.Evaluate{Value: update}),
		Finalize: ir.NewFragment(ir.Evaluate{Value: finalize}),
	}, nil
}
