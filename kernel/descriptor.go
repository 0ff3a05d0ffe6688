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

// Package kernel registers hardware micro-kernel intrinsics: small
// fixed-shape implementations of tensor contractions that a scheduler
// substitutes for generic reduction loops.
//
// A kernel is described by a Descriptor (what it computes) and a Generator
// (how to emit its reset, update and finalize fragments for one tile).
// Registrations live in a Registry keyed by category, name and target.
// Tile boundaries are handled by Specialize, which emits one fragment set
// per static combination of boundary and first-reduction predicates.
package kernel

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/tensorize/hwkernel/kernel/ir"
)

// Operand is one tensor read or written by a kernel.
type Operand struct {
	Name  string
	DType dtypes.DType
	Shape []int
}

// Elements returns the number of elements of the operand.
func (o Operand) Elements() int {
	n := 1
	for _, d := range o.Shape {
		n *= d
	}
	return n
}

// Bytes returns the storage size of the operand.
func (o Operand) Bytes() int {
	return o.Elements() * ir.DTypeBytes(o.DType)
}

// String returns e.g. "A: int8[16, 4]".
func (o Operand) String() string {
	dims := make([]string, len(o.Shape))
	for i, d := range o.Shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s: %s[%s]", o.Name, ir.DTypeName(o.DType), strings.Join(dims, ", "))
}

// Descriptor is the immutable computation spec of a fixed-shape kernel.
//
// Shape lists the sizes of the iteration dimensions the kernel covers, in
// the order tile requests use (for example (M, K) for a matrix-vector
// product, (N, M, K) for a matrix multiply). ReduceAxes are indices into
// Shape.
type Descriptor struct {
	Category string
	Name     string
	Target   string

	Shape       []int
	Inputs      []Operand
	Output      Operand
	Accumulator dtypes.DType
	ReduceAxes  []int
}

// ComputeFunc builds the descriptor of a kernel for the given shape
// arguments.
type ComputeFunc func(shapeArgs ...int) (*Descriptor, error)

// OperandBytes is the scratch memory needed to hold all inputs at once.
func (d *Descriptor) OperandBytes() int {
	total := 0
	for _, in := range d.Inputs {
		total += in.Bytes()
	}
	return total
}

// AccumulatorBytes is the memory needed to accumulate the output at the
// accumulator precision.
func (d *Descriptor) AccumulatorBytes() int {
	return d.Output.Elements() * ir.DTypeBytes(d.Accumulator)
}

// IsReduceAxis reports whether dimension dim of Shape is reduced.
func (d *Descriptor) IsReduceAxis(dim int) bool {
	return slices.Contains(d.ReduceAxes, dim)
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Shape = slices.Clone(d.Shape)
	c.ReduceAxes = slices.Clone(d.ReduceAxes)
	c.Inputs = make([]Operand, len(d.Inputs))
	for i, in := range d.Inputs {
		in.Shape = slices.Clone(in.Shape)
		c.Inputs[i] = in
	}
	c.Output.Shape = slices.Clone(d.Output.Shape)
	return &c
}

// Validate checks the internal consistency of the descriptor.
func (d *Descriptor) Validate() error {
	if len(d.Shape) == 0 {
		return errors.Wrap(ErrInvalidDescriptor, "empty shape")
	}
	for i, s := range d.Shape {
		if s <= 0 {
			return errors.Wrapf(ErrInvalidDescriptor, "dimension %d has size %d", i, s)
		}
	}
	if len(d.Inputs) == 0 {
		return errors.Wrap(ErrInvalidDescriptor, "no inputs")
	}
	for _, ax := range d.ReduceAxes {
		if ax < 0 || ax >= len(d.Shape) {
			return errors.Wrapf(ErrInvalidDescriptor, "reduce axis %d out of range for rank %d", ax, len(d.Shape))
		}
	}
	for _, op := range append(slices.Clone(d.Inputs), d.Output) {
		if !ir.IsInteger(op.DType) {
			return errors.Wrapf(ErrInvalidDescriptor, "operand %s has unsupported type", op.Name)
		}
	}
	if ir.DTypeBytes(d.Accumulator) == 0 {
		return errors.Wrapf(ErrInvalidDescriptor, "unsupported accumulator type %s", ir.DTypeName(d.Accumulator))
	}
	return nil
}

// String returns a one-line summary of the computation.
func (d *Descriptor) String() string {
	inputs := make([]string, len(d.Inputs))
	for i, in := range d.Inputs {
		inputs[i] = in.String()
	}
	return fmt.Sprintf("%s = reduce%v(%s) acc=%s", d.Output, d.ReduceAxes,
		strings.Join(inputs, ", "), ir.DTypeName(d.Accumulator))
}

// Capacity is the on-device memory a generator's hardware offers a single
// kernel instance. Zero fields mean unlimited.
type Capacity struct {
	Scratchpad  int
	Accumulator int
}

// Check returns ErrCapacityExceeded if d does not fit.
func (c Capacity) Check(d *Descriptor) error {
	if c.Scratchpad > 0 && d.OperandBytes() > c.Scratchpad {
		return errors.Wrapf(ErrCapacityExceeded, "operands need %s, scratchpad holds %s",
			humanize.IBytes(uint64(d.OperandBytes())), humanize.IBytes(uint64(c.Scratchpad)))
	}
	if c.Accumulator > 0 && d.AccumulatorBytes() > c.Accumulator {
		return errors.Wrapf(ErrCapacityExceeded, "accumulator needs %s, device holds %s",
			humanize.IBytes(uint64(d.AccumulatorBytes())), humanize.IBytes(uint64(c.Accumulator)))
	}
	return nil
}

// String returns e.g. "scratchpad 256 KiB, accumulator 64 KiB".
func (c Capacity) String() string {
	format := func(n int) string {
		if n <= 0 {
			return "unlimited"
		}
		return humanize.IBytes(uint64(n))
	}
	return fmt.Sprintf("scratchpad %s, accumulator %s", format(c.Scratchpad), format(c.Accumulator))
}
