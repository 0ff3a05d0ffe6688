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

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerFake(t *testing.T, gen *fakeGenerator) *Entry {
	t.Helper()
	r := NewRegistry()
	return must.M1(r.Register(Registration{Compute: matmulCompute, ShapeArgs: []int{32, 16, 16},
		Category: "test", Name: "mm", Target: "t", Generator: gen}))
}

func TestSpecializeVariants(t *testing.T) {
	gen := &fakeGenerator{label: "mm", splitFirst: true}
	entry := registerFake(t, gen)

	// N has a remainder, M does not, K has a remainder and several tiles.
	set, err := Specialize(entry, []int{40, 32, 36}, []int{32, 16, 16})
	require.NoError(t, err)
	// N: {regular, boundary} x M: {regular} x K: {regular, boundary} x {first, rest}.
	assert.Equal(t, 2*1*2*2, set.Len())
	assert.Equal(t, set.Len(), len(gen.requests))
	assert.Len(t, set.TileIndices(), 2*2*3)

	for _, idx := range set.TileIndices() {
		v, err := set.Select(idx)
		require.NoError(t, err, "Select(%v)", idx)
		assert.Equal(t, idx[0] == 1, v.Boundary[0], "N boundary of %v", idx)
		assert.False(t, v.Boundary[1], "M never has a boundary tile")
		assert.Equal(t, idx[2] == 2, v.Boundary[2], "K boundary of %v", idx)
		assert.Equal(t, idx[2] == 0, v.FirstReduction, "first reduction of %v", idx)
	}

	_, err = set.Select([]int{2, 0, 0})
	assert.True(t, errors.Is(err, ErrInvalidTile))
	_, err = set.Select([]int{0, 0})
	assert.True(t, errors.Is(err, ErrInvalidTile))
}

func TestSpecializeWithoutFirstSplit(t *testing.T) {
	gen := &fakeGenerator{label: "mm"}
	entry := registerFake(t, gen)
	set, err := Specialize(entry, []int{32, 32, 32}, []int{32, 16, 16})
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len(), "no remainder and no first split leave a single variant")
	v, err := set.Select([]int{0, 1, 0})
	require.NoError(t, err)
	assert.False(t, v.FirstReduction)
	assert.Equal(t, []bool{false, false, false}, v.Boundary)
}

func TestSpecializeSmallExtent(t *testing.T) {
	gen := &fakeGenerator{label: "mm", splitFirst: true}
	entry := registerFake(t, gen)
	// Every dimension fits in a single partial tile.
	set, err := Specialize(entry, []int{5, 6, 7}, []int{32, 16, 16})
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	v := must.M1(set.Select([]int{0, 0, 0}))
	assert.Equal(t, []bool{true, true, true}, v.Boundary)
	assert.True(t, v.FirstReduction)

	_, err = Specialize(entry, []int{5, 6}, []int{32, 16})
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestSpecializeDeterministic(t *testing.T) {
	entry := registerFake(t, &fakeGenerator{label: "mm", splitFirst: true})
	a := must.M1(Specialize(entry, []int{40, 32, 36}, []int{32, 16, 16}))
	b := must.M1(Specialize(entry, []int{40, 32, 36}, []int{32, 16, 16}))
	require.Equal(t, a.Len(), b.Len())
	for i, va := range a.Variants() {
		vb := b.Variants()[i]
		assert.Equal(t, va.Kernel.String(), vb.Kernel.String())
	}
}
