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

// Package targets holds the start-up registration set: every kernel the
// subsystem ships, bound to the target descriptions it serves.
package targets

import (
	"github.com/pkg/errors"
	"github.com/tensorize/hwkernel/kernel"
	"github.com/tensorize/hwkernel/kernel/targets/scratchpad"
	"github.com/tensorize/hwkernel/kernel/targets/vector"
)

// Target descriptions, in the backend's "name -flags" syntax.
const (
	TargetScratchpad    = "c -device=micro_dev"
	TargetSkylakeAVX512 = "llvm -mcpu=skylake-avx512"
	TargetCascadeLake   = "llvm -mcpu=cascadelake"
	TargetHaswell       = "llvm -mcpu=haswell"
	TargetAlderLake     = "llvm -mcpu=alderlake"
)

// Registrations returns the shipped kernels. Generators of the fused
// variants consult probe at generation time; a nil probe always selects
// the general path.
func Registrations(probe kernel.CapabilityProbe) []kernel.Registration {
	avx512, avx2 := vector.AVX512Profile(), vector.AVX2Profile()
	return []kernel.Registration{
		{
			Compute:   scratchpad.GemmCompute,
			ShapeArgs: []int{32, 32, 32},
			Category:  "gemmini",
			Name:      "gemm_size16",
			Target:    TargetScratchpad,
			Generator: scratchpad.New(scratchpad.DefaultDim),
		},
		{
			Compute:   vector.GemvCompute,
			ShapeArgs: []int{avx512.Lanes(), vector.GroupSize},
			Category:  "avx512",
			Name:      "gemv",
			Target:    TargetSkylakeAVX512,
			Generator: vector.New(avx512, nil),
		},
		{
			Compute:   vector.GemvCompute,
			ShapeArgs: []int{avx512.Lanes(), vector.GroupSize},
			Category:  "avx512-vnni",
			Name:      "vnni",
			Target:    TargetCascadeLake,
			Generator: vector.New(avx512, probe),
		},
		{
			Compute:   vector.GemvCompute,
			ShapeArgs: []int{avx2.Lanes(), vector.GroupSize},
			Category:  "avx2",
			Name:      "gemv",
			Target:    TargetHaswell,
			Generator: vector.New(avx2, nil),
		},
		{
			Compute:   vector.GemvCompute,
			ShapeArgs: []int{avx2.Lanes(), vector.GroupSize},
			Category:  "avx-vnni",
			Name:      "vnni",
			Target:    TargetAlderLake,
			Generator: vector.New(avx2, probe),
		},
	}
}

// RegisterAll registers every shipped kernel in r.
func RegisterAll(r *kernel.Registry, probe kernel.CapabilityProbe) error {
	for _, reg := range Registrations(probe) {
		if _, err := r.Register(reg); err != nil {
			return errors.WithMessage(err, "registering shipped kernels")
		}
	}
	return nil
}

// NewRegistry returns a registry with every shipped kernel registered.
func NewRegistry(probe kernel.CapabilityProbe, opts ...kernel.RegistryOption) (*kernel.Registry, error) {
	r := kernel.NewRegistry(opts...)
	if err := RegisterAll(r, probe); err != nil {
		return nil, err
	}
	return r, nil
}
