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
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// TileEdge describes how a tile covers one dimension: the number of
// hardware blocks and the padding added to the last block.
type TileEdge struct {
	Blocks   int
	Pad      int
	Boundary bool
}

// String returns e.g. "10 blocks, pad 10 (boundary)".
func (e TileEdge) String() string {
	s := fmt.Sprintf("%d blocks, pad %d", e.Blocks, e.Pad)
	if e.Boundary {
		s += " (boundary)"
	}
	return s
}

// CeilDiv returns ceil(a / b) for positive b.
func CeilDiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}

func checkExtentFactor(extent, factor int) error {
	if extent <= 0 {
		return errors.Wrapf(ErrInvalidTile, "extent %d must be positive", extent)
	}
	if factor <= 0 {
		return errors.Wrapf(ErrInvalidTile, "factor %d must be positive", factor)
	}
	return nil
}

// BlockEdge expresses extent elements in blocks of factor: the number of
// blocks needed and the padding that completes the last one.
//
//	BlockEdge(150, 16) = {Blocks: 10, Pad: 10}
//	BlockEdge(160, 16) = {Blocks: 10, Pad: 0}
func BlockEdge(extent, factor int) (TileEdge, error) {
	if err := checkExtentFactor(extent, factor); err != nil {
		return TileEdge{}, err
	}
	pad := (factor - extent%factor) % factor
	return TileEdge{Blocks: CeilDiv(extent, factor), Pad: pad, Boundary: pad != 0}, nil
}

// TileEdgeFor computes the edge parameters of a dimension of extent split
// in tiles of factor. The pad is only applied when boundary holds: tiles
// other than the last one cover a full factor.
func TileEdgeFor(extent, factor int, boundary bool) (TileEdge, error) {
	if err := checkExtentFactor(extent, factor); err != nil {
		return TileEdge{}, err
	}
	r := extent % factor
	if r == 0 {
		return TileEdge{Blocks: extent / factor}, nil
	}
	edge := TileEdge{Blocks: CeilDiv(extent, factor)}
	if boundary {
		edge.Pad = factor - r
		edge.Boundary = true
	}
	if edge.Pad < 0 {
		return TileEdge{}, errors.Wrapf(ErrInvalidTile, "negative pad %d for extent %d, factor %d", edge.Pad, extent, factor)
	}
	return edge, nil
}

// TileExtent returns the number of elements the selected tile covers:
// factor for regular tiles, the remainder for the boundary tile.
func TileExtent(extent, factor int, boundary bool) (int, error) {
	if err := checkExtentFactor(extent, factor); err != nil {
		return 0, err
	}
	if r := extent % factor; boundary && r != 0 {
		return r, nil
	}
	if factor > extent {
		return extent, nil
	}
	return factor, nil
}

// Grid is an iteration space split into tiles.
type Grid struct {
	Extents []int
	Factors []int
}

// NewGrid validates extents and factors.
func NewGrid(extents, factors []int) (Grid, error) {
	if len(extents) != len(factors) {
		return Grid{}, errors.Wrapf(ErrInvalidTile, "%d extents for %d factors", len(extents), len(factors))
	}
	for i := range extents {
		if err := checkExtentFactor(extents[i], factors[i]); err != nil {
			return Grid{}, errors.WithMessagef(err, "dimension %d", i)
		}
	}
	return Grid{Extents: extents, Factors: factors}, nil
}

// Rank returns the number of dimensions.
func (g Grid) Rank() int {
	return len(g.Extents)
}

// Tiles returns the number of tiles along dim.
func (g Grid) Tiles(dim int) int {
	return CeilDiv(g.Extents[dim], g.Factors[dim])
}

// HasRemainder reports whether dim has a partial last tile.
func (g Grid) HasRemainder(dim int) bool {
	return g.Extents[dim]%g.Factors[dim] != 0
}

// IsBoundary is the static predicate selecting the partial tile of dim.
func (g Grid) IsBoundary(dim, tileIndex int) (bool, error) {
	if dim < 0 || dim >= g.Rank() {
		return false, errors.Wrapf(ErrInvalidTile, "dimension %d out of range for rank %d", dim, g.Rank())
	}
	if tileIndex < 0 || tileIndex >= g.Tiles(dim) {
		return false, errors.Wrapf(ErrInvalidTile, "tile %d out of range, dimension %d has %d tiles",
			tileIndex, dim, g.Tiles(dim))
	}
	return g.HasRemainder(dim) && tileIndex == g.Extents[dim]/g.Factors[dim], nil
}

// Edges returns the edge parameters of every dimension for the tile at
// the given per-dimension indices.
func (g Grid) Edges(tileIndex []int) ([]TileEdge, error) {
	if len(tileIndex) != g.Rank() {
		return nil, errors.Wrapf(ErrInvalidTile, "tile index of rank %d for grid of rank %d", len(tileIndex), g.Rank())
	}
	edges := make([]TileEdge, g.Rank())
	for dim, idx := range tileIndex {
		boundary, err := g.IsBoundary(dim, idx)
		if err != nil {
			return nil, err
		}
		if edges[dim], err = TileEdgeFor(g.Extents[dim], g.Factors[dim], boundary); err != nil {
			return nil, err
		}
	}
	return edges, nil
}
