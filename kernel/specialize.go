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
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Variant is the kernel emitted for one static combination of predicates.
type Variant struct {
	Boundary       []bool
	FirstReduction bool
	Kernel         *EmittedKernel
}

// Request returns the tile request the variant was generated for.
func (v *Variant) Request(g Grid) TileRequest {
	return TileRequest{
		Extents:        g.Extents,
		Factors:        g.Factors,
		Boundary:       v.Boundary,
		FirstReduction: v.FirstReduction,
	}
}

func variantKey(boundary []bool, first bool) string {
	var sb strings.Builder
	for _, b := range boundary {
		if b {
			sb.WriteByte('B')
		} else {
			sb.WriteByte('.')
		}
	}
	if first {
		sb.WriteString("/first")
	}
	return sb.String()
}

// KernelSet holds every variant an iteration space needs. Variants are
// selected by static predicates on tile indices, so no fragment contains a
// runtime branch.
type KernelSet struct {
	Entry *Entry
	Grid  Grid

	splitFirst bool
	variants   map[string]*Variant
	order      []*Variant
}

// Specialize generates the variants of entry for an iteration space of the
// given extents, split in tiles of factors.
//
// There is one variant per reachable combination of boundary flags (a
// dimension only has a boundary variant when its extent has a remainder)
// and, for generators that distinguish it, of first versus later
// reduction tiles.
func Specialize(entry *Entry, extents, factors []int) (*KernelSet, error) {
	grid, err := NewGrid(extents, factors)
	if err != nil {
		return nil, errors.WithMessagef(err, "specializing %s", entry.Key)
	}
	if grid.Rank() != len(entry.Descriptor.Shape) {
		return nil, errors.Wrapf(ErrShapeMismatch, "specializing %s: iteration space of rank %d for kernel of rank %d",
			entry.Key, grid.Rank(), len(entry.Descriptor.Shape))
	}
	set := &KernelSet{
		Entry:      entry,
		Grid:       grid,
		splitFirst: splitsFirstReduction(entry.Generator) && len(entry.Descriptor.ReduceAxes) > 0,
		variants:   make(map[string]*Variant),
	}

	// Reachable boundary flags per dimension.
	choices := make([][]bool, grid.Rank())
	for dim := range choices {
		if grid.Extents[dim] >= grid.Factors[dim] {
			choices[dim] = append(choices[dim], false)
		}
		if grid.HasRemainder(dim) {
			choices[dim] = append(choices[dim], true)
		}
	}
	firstChoices := []bool{false}
	if set.splitFirst {
		firstChoices = []bool{true}
		multi := lo.SomeBy(entry.Descriptor.ReduceAxes, func(ax int) bool { return grid.Tiles(ax) > 1 })
		if multi {
			firstChoices = append(firstChoices, false)
		}
	}

	for _, boundary := range cartesian(choices) {
		for _, first := range firstChoices {
			req := TileRequest{Extents: grid.Extents, Factors: grid.Factors, Boundary: boundary, FirstReduction: first}
			k, err := entry.Generate(req)
			if err != nil {
				return nil, errors.WithMessage(err, "specializing")
			}
			v := &Variant{Boundary: boundary, FirstReduction: first, Kernel: k}
			set.variants[variantKey(boundary, first)] = v
			set.order = append(set.order, v)
		}
	}
	return set, nil
}

func cartesian(choices [][]bool) [][]bool {
	out := [][]bool{{}}
	for _, opts := range choices {
		var next [][]bool
		for _, prefix := range out {
			for _, o := range opts {
				next = append(next, append(slices.Clone(prefix), o))
			}
		}
		out = next
	}
	return out
}

// Variants returns the variants in generation order.
func (s *KernelSet) Variants() []*Variant {
	return slices.Clone(s.order)
}

// Len returns the number of variants.
func (s *KernelSet) Len() int {
	return len(s.order)
}

// Select returns the variant for the tile at the given per-dimension
// indices.
func (s *KernelSet) Select(tileIndex []int) (*Variant, error) {
	if len(tileIndex) != s.Grid.Rank() {
		return nil, errors.Wrapf(ErrInvalidTile, "tile index of rank %d for grid of rank %d", len(tileIndex), s.Grid.Rank())
	}
	boundary := make([]bool, s.Grid.Rank())
	for dim, idx := range tileIndex {
		var err error
		if boundary[dim], err = s.Grid.IsBoundary(dim, idx); err != nil {
			return nil, err
		}
	}
	first := s.splitFirst && lo.EveryBy(s.Entry.Descriptor.ReduceAxes, func(ax int) bool {
		return tileIndex[ax] == 0
	})
	v, found := s.variants[variantKey(boundary, first)]
	if !found {
		return nil, errors.Wrapf(ErrInvalidTile, "no variant for tile %v", tileIndex)
	}
	return v, nil
}

// TileIndices enumerates every tile of the grid in row-major order.
func (s *KernelSet) TileIndices() [][]int {
	out := [][]int{{}}
	for dim := range s.Grid.Rank() {
		var next [][]int
		for _, prefix := range out {
			for i := range s.Grid.Tiles(dim) {
				next = append(next, append(slices.Clone(prefix), i))
			}
		}
		out = next
	}
	return out
}
