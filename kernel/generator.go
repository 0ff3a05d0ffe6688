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
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/tensorize/hwkernel/kernel/ir"
)

// ISA is the instruction-set variant a generator emits for.
type ISA int

const (
	// GeneralVector reduces with a sequence of pairwise horizontal
	// multiply-add steps available on every vector unit of the family.
	GeneralVector ISA = iota

	// FusedReduce uses a single fused multiply-accumulate-reduce
	// instruction when the target has it.
	FusedReduce

	// ExternalAccelerator calls procedures of a matrix accelerator with a
	// scratchpad and a separate accumulator memory.
	ExternalAccelerator
)

// String returns a human-readable name for the ISA variant.
func (isa ISA) String() string {
	switch isa {
	case GeneralVector:
		return "general-vector"
	case FusedReduce:
		return "fused-reduce"
	case ExternalAccelerator:
		return "external-accelerator"
	default:
		return "unknown"
	}
}

// TileRequest asks a generator for the fragments of one tile.
//
// Extents are the sizes of the iteration dimensions of the whole tensor
// operation and Factors the tile sizes, both in the order of the kernel's
// Descriptor.Shape. Boundary marks, per dimension, that the tile is the
// partial last one. FirstReduction marks the first tile along the
// reduction dimensions.
type TileRequest struct {
	Extents        []int
	Factors        []int
	Boundary       []bool
	FirstReduction bool
}

// Validate checks that the request is well formed.
func (t TileRequest) Validate() error {
	if len(t.Extents) != len(t.Factors) {
		return errors.Wrapf(ErrInvalidTile, "%d extents for %d factors", len(t.Extents), len(t.Factors))
	}
	if t.Boundary != nil && len(t.Boundary) != len(t.Extents) {
		return errors.Wrapf(ErrInvalidTile, "%d boundary flags for %d dimensions", len(t.Boundary), len(t.Extents))
	}
	for i := range t.Extents {
		if err := checkExtentFactor(t.Extents[i], t.Factors[i]); err != nil {
			return errors.WithMessagef(err, "dimension %d", i)
		}
	}
	return nil
}

// IsBoundary reports whether dim is flagged as the boundary tile.
func (t TileRequest) IsBoundary(dim int) bool {
	return dim < len(t.Boundary) && t.Boundary[dim]
}

// Edges returns the edge parameters of every dimension.
func (t TileRequest) Edges() ([]TileEdge, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	edges := make([]TileEdge, len(t.Extents))
	for i := range t.Extents {
		var err error
		if edges[i], err = TileEdgeFor(t.Extents[i], t.Factors[i], t.IsBoundary(i)); err != nil {
			return nil, errors.WithMessagef(err, "dimension %d", i)
		}
	}
	return edges, nil
}

// TileShape returns the number of elements covered along each dimension.
func (t TileRequest) TileShape() ([]int, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	shape := make([]int, len(t.Extents))
	for i := range t.Extents {
		var err error
		if shape[i], err = TileExtent(t.Extents[i], t.Factors[i], t.IsBoundary(i)); err != nil {
			return nil, err
		}
	}
	return shape, nil
}

// String returns a compact description used in logs and archive names.
func (t TileRequest) String() string {
	var sb strings.Builder
	for i := range t.Extents {
		if i > 0 {
			sb.WriteByte('x')
		}
		fmt.Fprintf(&sb, "%d/%d", t.Extents[i], t.Factors[i])
		if t.IsBoundary(i) {
			sb.WriteByte('b')
		}
	}
	if t.FirstReduction {
		sb.WriteString(",first")
	}
	return sb.String()
}

// EmittedKernel holds the fragments of one kernel instantiation.
//
// Body is the single-shot form (reset followed by update). Finalize is nil
// when the accumulator lives in the output buffer already.
type EmittedKernel struct {
	Name     string
	Bindings []*BufferBinding
	Body     *ir.Fragment
	Reset    *ir.Fragment
	Update   *ir.Fragment
	Finalize *ir.Fragment
}

// Tuple returns (body, reset, update, finalize) in the order the
// tensorization pass consumes them. Absent phases are nil.
func (k *EmittedKernel) Tuple() (body, reset, update, finalize *ir.Fragment) {
	return k.Body, k.Reset, k.Update, k.Finalize
}

// Binding returns the binding of the named tensor, or nil.
func (k *EmittedKernel) Binding(tensor string) *BufferBinding {
	idx := slices.IndexFunc(k.Bindings, func(b *BufferBinding) bool { return b.Tensor == tensor })
	if idx < 0 {
		return nil
	}
	return k.Bindings[idx]
}

// Phases returns the non-nil phases keyed by name, in tuple order.
func (k *EmittedKernel) Phases() []Phase {
	var phases []Phase
	for _, p := range []Phase{{"body", k.Body}, {"reset", k.Reset}, {"update", k.Update}, {"finalize", k.Finalize}} {
		if p.Fragment != nil {
			phases = append(phases, p)
		}
	}
	return phases
}

// Phase is a named fragment of an emitted kernel.
type Phase struct {
	Name     string
	Fragment *ir.Fragment
}

// String prints the buffers and every phase of the kernel.
func (k *EmittedKernel) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "kernel %s\n", k.Name)
	for _, b := range k.Bindings {
		fmt.Fprintf(&sb, "%s\n", b.Buffer)
	}
	for _, p := range k.Phases() {
		fmt.Fprintf(&sb, "%s:\n", p.Name)
		for _, line := range strings.SplitAfter(p.Fragment.String(), "\n") {
			if line != "" {
				sb.WriteString("  " + line)
			}
		}
	}
	return sb.String()
}

// Generator emits the fragments of one kernel family.
type Generator interface {
	// ISA returns the variant the generator emits for.
	ISA() ISA

	// Capabilities lists the instructions the generator may use when the
	// probe reports them.
	Capabilities() []string

	// Capacity returns the device memory available to one instance.
	Capacity() Capacity

	// Generate emits the fragments for one tile. It is pure: identical
	// requests produce identical fragments.
	Generate(req TileRequest) (*EmittedKernel, error)
}

// FirstReductionSplitter is implemented by generators whose update
// fragment differs between the first and later reduction tiles.
type FirstReductionSplitter interface {
	SplitsFirstReduction() bool
}

// splitsFirstReduction reports whether gen distinguishes the first
// reduction tile.
func splitsFirstReduction(gen Generator) bool {
	s, ok := gen.(FirstReductionSplitter)
	return ok && s.SplitsFirstReduction()
}
