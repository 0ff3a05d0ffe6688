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

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockEdge(t *testing.T) {
	tests := []struct {
		extent, factor int
		want           TileEdge
	}{
		{150, 16, TileEdge{Blocks: 10, Pad: 10, Boundary: true}},
		{160, 16, TileEdge{Blocks: 10, Pad: 0}},
		{1, 16, TileEdge{Blocks: 1, Pad: 15, Boundary: true}},
		{16, 16, TileEdge{Blocks: 1, Pad: 0}},
		{17, 16, TileEdge{Blocks: 2, Pad: 15, Boundary: true}},
	}
	for _, tt := range tests {
		got, err := BlockEdge(tt.extent, tt.factor)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "BlockEdge(%d, %d)", tt.extent, tt.factor)
		assert.GreaterOrEqual(t, got.Pad, 0)
		assert.Less(t, got.Pad, tt.factor)
	}
}

func TestTileEdgeFor(t *testing.T) {
	tests := []struct {
		name           string
		extent, factor int
		boundary       bool
		want           TileEdge
	}{
		{"remainder/boundary", 150, 16, true, TileEdge{Blocks: 10, Pad: 10, Boundary: true}},
		{"remainder/regular", 150, 16, false, TileEdge{Blocks: 10, Pad: 0}},
		{"exact/boundary ignored", 160, 16, true, TileEdge{Blocks: 10, Pad: 0}},
		{"exact/regular", 160, 16, false, TileEdge{Blocks: 10, Pad: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TileEdgeFor(tt.extent, tt.factor, tt.boundary)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTileEdgeErrors(t *testing.T) {
	for _, args := range [][2]int{{0, 16}, {-3, 16}, {16, 0}, {16, -1}} {
		_, err := TileEdgeFor(args[0], args[1], true)
		assert.True(t, errors.Is(err, ErrInvalidTile), "TileEdgeFor(%d, %d): %v", args[0], args[1], err)
		_, err = BlockEdge(args[0], args[1])
		assert.True(t, errors.Is(err, ErrInvalidTile), "BlockEdge(%d, %d): %v", args[0], args[1], err)
	}
}

func TestTileExtent(t *testing.T) {
	got, err := TileExtent(150, 16, true)
	require.NoError(t, err)
	assert.Equal(t, 6, got)

	got, err = TileExtent(150, 16, false)
	require.NoError(t, err)
	assert.Equal(t, 16, got)

	got, err = TileExtent(160, 16, true)
	require.NoError(t, err)
	assert.Equal(t, 16, got)
}

func TestGrid(t *testing.T) {
	g, err := NewGrid([]int{40, 32}, []int{32, 16})
	require.NoError(t, err)
	assert.Equal(t, 2, g.Tiles(0))
	assert.Equal(t, 2, g.Tiles(1))

	b, err := g.IsBoundary(0, 0)
	require.NoError(t, err)
	assert.False(t, b)
	b, err = g.IsBoundary(0, 1)
	require.NoError(t, err)
	assert.True(t, b)
	b, err = g.IsBoundary(1, 1)
	require.NoError(t, err)
	assert.False(t, b, "dimension without remainder has no boundary tile")

	_, err = g.IsBoundary(0, 2)
	assert.True(t, errors.Is(err, ErrInvalidTile))
	_, err = g.IsBoundary(2, 0)
	assert.True(t, errors.Is(err, ErrInvalidTile))

	edges, err := g.Edges([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []TileEdge{{Blocks: 2, Pad: 24, Boundary: true}, {Blocks: 2}}, edges)

	_, err = NewGrid([]int{1, 2}, []int{1})
	assert.True(t, errors.Is(err, ErrInvalidTile))
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 10, CeilDiv(150, 16))
	assert.Equal(t, int64(10), CeilDiv(int64(160), 16))
	assert.Equal(t, uint8(1), CeilDiv(uint8(1), 16))
}
