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
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tensorize/hwkernel/kernel/ir"
)

// fakeGenerator emits a single store per phase and records the requests
// it saw.
type fakeGenerator struct {
	label      string
	capacity   Capacity
	splitFirst bool

	mu       sync.Mutex
	requests []TileRequest
}

func (g *fakeGenerator) ISA() ISA               { return GeneralVector }
func (g *fakeGenerator) Capabilities() []string { return nil }
func (g *fakeGenerator) Capacity() Capacity     { return g.capacity }
func (g *fakeGenerator) SplitsFirstReduction() bool {
	return g.splitFirst
}

func (g *fakeGenerator) Generate(req TileRequest) (*EmittedKernel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	c, err := DeclBuffer("C", "C", dtypes.Int32, []int{1})
	if err != nil {
		return nil, err
	}
	value := int64(len(g.label))
	if req.FirstReduction {
		value = -value
	}
	store := ir.VStore{Buffer: c.Buffer, Index: ir.Zeros(1), Value: ir.Splat(ir.Scalar(dtypes.Int32), value)}
	return &EmittedKernel{
		Name:     g.label + "@" + req.String(),
		Bindings: []*BufferBinding{c},
		Body:     ir.NewFragment(store),
		Reset:    ir.NewFragment(store),
		Update:   ir.NewFragment(store),
	}, nil
}

// matmulCompute is a minimal int8 matrix multiply descriptor factory.
func matmulCompute(args ...int) (*Descriptor, error) {
	if len(args) != 3 {
		return nil, errors.Errorf("matmul takes 3 shape arguments, got %d", len(args))
	}
	n, m, k := args[0], args[1], args[2]
	return &Descriptor{
		Shape: []int{n, m, k},
		Inputs: []Operand{
			{Name: "A", DType: dtypes.Int8, Shape: []int{n, k}},
			{Name: "B", DType: dtypes.Int8, Shape: []int{k, m}},
		},
		Output:      Operand{Name: "C", DType: dtypes.Int8, Shape: []int{n, m}},
		Accumulator: dtypes.Int32,
		ReduceAxes:  []int{2},
	}, nil
}

func capturingLogger() (*strings.Builder, RegistryOption) {
	var mu sync.Mutex
	logs := &strings.Builder{}
	logger := funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		logs.WriteString(args)
		logs.WriteByte('\n')
	}, funcr.Options{})
	return logs, WithLogger(logger)
}

func TestRegistryDuplicate(t *testing.T) {
	logs, opt := capturingLogger()
	r := NewRegistry(opt)
	k1 := &fakeGenerator{label: "K1"}
	k2 := &fakeGenerator{label: "K2"}
	reg := Registration{Compute: matmulCompute, ShapeArgs: []int{16, 16, 16},
		Category: "test", Name: "mm", Target: "llvm"}

	reg.Generator = k1
	e1, err := r.Register(reg)
	require.NoError(t, err)

	reg.Generator = k2
	kept, err := r.Register(reg)
	require.NoError(t, err, "duplicate registration is a warning, not an error")
	assert.Same(t, e1, kept)
	assert.Equal(t, 1, r.Len())
	got := must.M1(r.Get(Key{"test", "mm", "llvm"}))
	assert.Same(t, k1, got.Generator.(*fakeGenerator))
	assert.Contains(t, logs.String(), "already registered")
	assert.Contains(t, logs.String(), "test/mm@llvm")

	replaced, err := r.Register(reg, WithOverride())
	require.NoError(t, err)
	assert.Same(t, k2, replaced.Generator.(*fakeGenerator))
	got = must.M1(r.Get(Key{"test", "mm", "llvm"}))
	assert.Same(t, k2, got.Generator.(*fakeGenerator))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryExactKey(t *testing.T) {
	logs, opt := capturingLogger()
	r := NewRegistry(opt)
	base := Registration{Compute: matmulCompute, ShapeArgs: []int{16, 16, 16},
		Category: "test", Name: "mm", Target: "llvm -mcpu=a", Generator: &fakeGenerator{label: "a"}}
	must.M1(r.Register(base))

	other := base
	other.Target = "llvm -mcpu=b"
	must.M1(r.Register(other))
	other = base
	other.Name = "mm2"
	must.M1(r.Register(other))

	assert.Equal(t, 3, r.Len(), "keys differing in any component are distinct")
	assert.Empty(t, logs.String())
	assert.Equal(t, []string{"llvm -mcpu=a", "llvm -mcpu=b"}, r.Targets())

	names := []string{}
	for _, e := range r.Lookup("llvm -mcpu=a") {
		names = append(names, e.Key.Name)
	}
	assert.Equal(t, []string{"mm", "mm2"}, names, "lookup follows registration order")
	assert.Empty(t, r.Lookup("llvm -mcpu=unknown"))

	_, err := r.Get(Key{"test", "nope", "llvm"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry()
	gen := &fakeGenerator{label: "acc", capacity: Capacity{Scratchpad: 256 * 1024, Accumulator: 64 * 1024}}

	// 128x128x1024 int8: operands take 128*1024 + 1024*128 = 256 KiB, the limit.
	_, err := r.Register(Registration{Compute: matmulCompute, ShapeArgs: []int{128, 128, 1024},
		Category: "acc", Name: "fits", Target: "c", Generator: gen})
	require.NoError(t, err)

	// One more reduction step crosses it.
	_, err = r.Register(Registration{Compute: matmulCompute, ShapeArgs: []int{128, 128, 1025},
		Category: "acc", Name: "too_big", Target: "c", Generator: gen})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.Contains(t, err.Error(), "256 KiB")
	assert.Equal(t, 1, r.Len(), "nothing is inserted on capacity errors")

	// Accumulator: 4*i*j must stay within 64 KiB.
	_, err = r.Register(Registration{Compute: matmulCompute, ShapeArgs: []int{129, 128, 16},
		Category: "acc", Name: "acc_too_big", Target: "c", Generator: gen})
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.Contains(t, err.Error(), "64 KiB")
}

func TestRegistryValidation(t *testing.T) {
	r := NewRegistry()
	gen := &fakeGenerator{label: "x"}
	_, err := r.Register(Registration{Compute: matmulCompute, ShapeArgs: []int{1, 1, 1},
		Category: "x", Name: "x", Target: "  ", Generator: gen})
	assert.True(t, errors.Is(err, ErrUnknownTarget))

	_, err = r.Register(Registration{Compute: matmulCompute, ShapeArgs: []int{1, 1},
		Category: "x", Name: "x", Target: "t", Generator: gen})
	assert.Error(t, err)

	_, err = r.Register(Registration{Compute: matmulCompute, ShapeArgs: []int{0, 1, 1},
		Category: "x", Name: "x", Target: "t", Generator: gen})
	assert.True(t, errors.Is(err, ErrInvalidDescriptor))

	_, err = r.Register(Registration{ShapeArgs: []int{1, 1, 1}, Category: "x", Name: "x", Target: "t", Generator: gen})
	assert.True(t, errors.Is(err, ErrInvalidDescriptor))
	assert.Zero(t, r.Len())
}

func TestRegistryDescriptorIsolated(t *testing.T) {
	shared, err := matmulCompute(4, 4, 4)
	require.NoError(t, err)
	r := NewRegistry()
	e := must.M1(r.Register(Registration{
		Compute:  func(...int) (*Descriptor, error) { return shared, nil },
		Category: "x", Name: "x", Target: "t", Generator: &fakeGenerator{label: "x"},
	}))
	shared.Shape[0] = 99
	assert.Equal(t, []int{4, 4, 4}, e.Descriptor.Shape)
	assert.Equal(t, "t", e.Descriptor.Target)
	assert.Equal(t, 4*4+4*4, e.Descriptor.OperandBytes())
	assert.Equal(t, 4*4*4, e.Descriptor.AccumulatorBytes())
}

func TestEntrySymbol(t *testing.T) {
	e := &Entry{Key: Key{Category: "gemmini", Name: "gemm_size16", Target: "c"}}
	assert.Equal(t, "GemminiGemmSize16", e.Symbol())
	e = &Entry{Key: Key{Category: "avx512-vnni", Name: "vnni", Target: "llvm"}}
	assert.Equal(t, "Avx512VnniVnni", e.Symbol())
}

func TestRegistryConcurrentLookup(t *testing.T) {
	r := NewRegistry()
	for _, target := range []string{"a", "b", "c"} {
		must.M1(r.Register(Registration{Compute: matmulCompute, ShapeArgs: []int{2, 2, 2},
			Category: "x", Name: "mm", Target: target, Generator: &fakeGenerator{label: target}}))
	}
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				for _, target := range []string{"a", "b", "c"} {
					if len(r.Lookup(target)) != 1 {
						t.Errorf("Lookup(%q) lost its entry", target)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
