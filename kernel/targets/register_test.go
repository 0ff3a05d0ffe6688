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

package targets

import (
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tensorize/hwkernel/kernel"
	"github.com/tensorize/hwkernel/kernel/ir"
)

func TestRegisterAll(t *testing.T) {
	probe := kernel.StaticProbe{ir.VPDPBUSD512: true}
	r, err := NewRegistry(probe)
	require.NoError(t, err)
	require.Equal(t, 5, r.Len())
	assert.Equal(t, []string{TargetScratchpad, TargetSkylakeAVX512, TargetCascadeLake, TargetHaswell, TargetAlderLake}, r.Targets())

	wantISA := map[string]kernel.ISA{
		TargetScratchpad:    kernel.ExternalAccelerator,
		TargetSkylakeAVX512: kernel.GeneralVector,
		TargetCascadeLake:   kernel.FusedReduce,
		TargetHaswell:       kernel.GeneralVector,
		TargetAlderLake:     kernel.GeneralVector, // The probe only reports the 512-bit instruction.
	}
	for target, isa := range wantISA {
		entries := r.Lookup(target)
		require.Len(t, entries, 1, target)
		assert.Equal(t, isa, entries[0].Generator.ISA(), target)
	}

	symbols := make([]string, 0, r.Len())
	for _, e := range r.Entries() {
		symbols = append(symbols, e.Symbol())
	}
	assert.Equal(t, []string{"GemminiGemmSize16", "Avx512Gemv", "Avx512VnniVnni", "Avx2Gemv", "AvxVnniVnni"}, symbols)
}

// TestShippedKernelsGenerate emits every shipped kernel for a single tile
// covering its registered shape.
func TestShippedKernelsGenerate(t *testing.T) {
	r, err := NewRegistry(kernel.NoProbe)
	require.NoError(t, err)
	for _, e := range r.Entries() {
		shape := e.Descriptor.Shape
		k, err := e.Generate(kernel.TileRequest{Extents: shape, Factors: shape, FirstReduction: true})
		require.NoError(t, err, e.Key.String())
		assert.NotNil(t, k.Update, e.Key.String())
		assert.NotEmpty(t, k.Bindings, e.Key.String())
	}
}

func TestRegisterAllTwice(t *testing.T) {
	var warnings int
	logger := funcr.New(func(prefix, args string) { warnings++ }, funcr.Options{})
	r := kernel.NewRegistry(kernel.WithLogger(logger))
	require.NoError(t, RegisterAll(r, nil))
	first := r.Entries()
	require.NoError(t, RegisterAll(r, kernel.StaticProbe{ir.VPDPBUSD512: true}))
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 5, warnings)
	assert.Equal(t, first, r.Entries(), "duplicates keep the existing entries")
	assert.Equal(t, kernel.GeneralVector, r.Lookup(TargetCascadeLake)[0].Generator.ISA())
}
