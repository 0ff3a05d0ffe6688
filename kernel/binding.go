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

package kernel

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/tensorize/hwkernel/kernel/ir"
)

// DefaultScope is the memory scope of declared buffers.
const DefaultScope = "global"

// StrideEnv maps symbolic stride names to their values in elements.
type StrideEnv map[string]int

// BufferBinding ties a logical tensor of the computation to the buffer an
// emitted fragment reads or writes.
//
// The innermost stride is the constant 1 and every outer stride is a
// symbolic variable, so one emitted kernel serves any sub-block of a larger
// strided tensor.
type BufferBinding struct {
	Tensor string
	Buffer *ir.Buffer
}

// DeclBuffer declares a buffer of the given shape. strideVars names the
// outer strides, outermost first; there must be exactly rank-1 of them.
func DeclBuffer(tensor, name string, dt dtypes.DType, shape []int, strideVars ...string) (*BufferBinding, error) {
	if len(shape) == 0 {
		return nil, errors.Errorf("buffer %q: empty shape", name)
	}
	if len(strideVars) != len(shape)-1 {
		return nil, errors.Errorf("buffer %q of rank %d needs %d stride variables, got %d",
			name, len(shape), len(shape)-1, len(strideVars))
	}
	for i, d := range shape {
		if d <= 0 {
			return nil, errors.Wrapf(ErrInvalidTile, "buffer %q: axis %d has size %d", name, i, d)
		}
	}
	strides := make([]ir.Expr, 0, len(shape))
	for _, v := range strideVars {
		strides = append(strides, ir.Int32Var(v))
	}
	strides = append(strides, ir.Int32(1))
	return &BufferBinding{
		Tensor: tensor,
		Buffer: &ir.Buffer{
			Name:         name,
			DType:        dt,
			Shape:        slices.Clone(shape),
			Strides:      strides,
			OffsetFactor: 1,
			Scope:        DefaultScope,
		},
	}, nil
}

// StrideVars returns the symbolic stride variables of the buffer,
// outermost first.
func (b *BufferBinding) StrideVars() []ir.Var {
	var vars []ir.Var
	for _, s := range b.Buffer.Strides {
		if v, ok := s.(ir.Var); ok {
			vars = append(vars, v)
		}
	}
	return vars
}

// ResolveStrides returns the concrete strides of the buffer under env.
func (b *BufferBinding) ResolveStrides(env StrideEnv) ([]int, error) {
	strides := make([]int, len(b.Buffer.Strides))
	for axis, s := range b.Buffer.Strides {
		switch n := s.(type) {
		case ir.Const:
			strides[axis] = int(n.Value)
		case ir.Var:
			v, ok := env[n.Name]
			if !ok {
				return nil, errors.Wrapf(ir.ErrUnbound, "stride %q of buffer %q", n.Name, b.Buffer.Name)
			}
			strides[axis] = v
		default:
			return nil, errors.Errorf("buffer %q: unsupported stride expression %T", b.Buffer.Name, s)
		}
		if strides[axis] <= 0 {
			return nil, errors.Wrapf(ErrInvalidTile, "buffer %q: stride %d on axis %d", b.Buffer.Name, strides[axis], axis)
		}
	}
	return strides, nil
}

// RowMajorEnv returns the stride values that place the buffer inside a
// compact row-major tensor of the given shape.
func (b *BufferBinding) RowMajorEnv(parentShape []int) (StrideEnv, error) {
	if len(parentShape) != b.Buffer.Rank() {
		return nil, errors.Errorf("buffer %q of rank %d inside tensor of rank %d",
			b.Buffer.Name, b.Buffer.Rank(), len(parentShape))
	}
	env := StrideEnv{}
	stride := 1
	for axis := len(parentShape) - 1; axis >= 0; axis-- {
		if v, ok := b.Buffer.Strides[axis].(ir.Var); ok {
			env[v.Name] = stride
		}
		stride *= parentShape[axis]
	}
	return env, nil
}

// Bind resolves the strides of the buffer and attaches it to region at
// offset on machine m.
func (b *BufferBinding) Bind(m *ir.Machine, region *ir.Region, offset int, env StrideEnv) error {
	strides, err := b.ResolveStrides(env)
	if err != nil {
		return err
	}
	return m.Bind(b.Buffer, region, ir.BindOptions{Offset: offset, Strides: strides})
}
