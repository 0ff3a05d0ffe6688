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
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tensorize/hwkernel/kernel/ir"
)

func TestDeclBuffer(t *testing.T) {
	b, err := DeclBuffer("W", "kernel", dtypes.Int8, []int{16, 4}, "ldw")
	require.NoError(t, err)
	assert.Equal(t, "W", b.Tensor)
	assert.Equal(t, 1, b.Buffer.OffsetFactor)
	assert.Equal(t, DefaultScope, b.Buffer.Scope)
	if diff := cmp.Diff([]ir.Expr{ir.Int32Var("ldw"), ir.Int32(1)}, b.Buffer.Strides); diff != "" {
		t.Errorf("strides mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []ir.Var{ir.Int32Var("ldw")}, b.StrideVars())

	_, err = DeclBuffer("W", "kernel", dtypes.Int8, []int{16, 4})
	assert.Error(t, err, "rank 2 needs one stride variable")
	_, err = DeclBuffer("W", "kernel", dtypes.Int8, []int{0, 4}, "ldw")
	assert.True(t, errors.Is(err, ErrInvalidTile))
}

func TestResolveStrides(t *testing.T) {
	b, err := DeclBuffer("A", "A", dtypes.Int8, []int{2, 3, 4}, "sA0", "sA1")
	require.NoError(t, err)

	strides, err := b.ResolveStrides(StrideEnv{"sA0": 120, "sA1": 10})
	require.NoError(t, err)
	assert.Equal(t, []int{120, 10, 1}, strides)

	_, err = b.ResolveStrides(StrideEnv{"sA0": 120})
	assert.True(t, errors.Is(err, ir.ErrUnbound))

	_, err = b.ResolveStrides(StrideEnv{"sA0": 120, "sA1": 0})
	assert.True(t, errors.Is(err, ErrInvalidTile))

	env, err := b.RowMajorEnv([]int{8, 9, 10})
	require.NoError(t, err)
	assert.Equal(t, StrideEnv{"sA0": 90, "sA1": 10}, env)
}

// TestBindingSubBlock reads a 2x4 sub-block out of a 5x10 tensor through
// the same buffer declaration used for a compact tensor.
func TestBindingSubBlock(t *testing.T) {
	src, err := DeclBuffer("A", "A", dtypes.Int32, []int{2, 4}, "sA")
	require.NoError(t, err)
	dst, err := DeclBuffer("C", "C", dtypes.Int32, []int{8})
	require.NoError(t, err)

	mem := ir.NewRegion(dtypes.Int32, 50)
	for i := range mem.Data {
		mem.Data[i] = int64(i)
	}
	out := ir.NewRegion(dtypes.Int32, 8)
	m := ir.NewMachine()
	env := StrideEnv{"sA": 10}
	require.NoError(t, src.Bind(m, mem, 2*10+3, env))
	require.NoError(t, dst.Bind(m, out, 0, nil))

	f := ir.NewFragment(ir.VStore{
		Buffer: dst.Buffer,
		Index:  ir.Zeros(1),
		Value:  ir.VLoad{Buffer: src.Buffer, Index: ir.Zeros(2), Ty: ir.Vector(dtypes.Int32, 8)},
	})
	require.NoError(t, m.Run(f))
	assert.Equal(t, []int64{23, 24, 25, 26, 33, 34, 35, 36}, out.Data)
}
