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
	"os"
	"strconv"
	"sync"

	"github.com/tensorize/hwkernel/kernel/ir"
)

// CapabilityProbe answers whether an instruction, named by its backend
// intrinsic, is available. It never fails: unknown instructions are absent.
type CapabilityProbe interface {
	Supports(instruction string) bool
}

// StaticProbe is a probe with canned answers.
type StaticProbe map[string]bool

// Supports implements CapabilityProbe.
func (p StaticProbe) Supports(instruction string) bool {
	return p[instruction]
}

// NoProbe reports every instruction as absent.
var NoProbe CapabilityProbe = StaticProbe{}

// Backend is a code-generation backend with a table of intrinsics.
type Backend interface {
	// Name returns the backend name, e.g. "llvm".
	Name() string

	// Version identifies the intrinsic table. Probes cache answers per version.
	Version() string

	// HasIntrinsic reports whether the backend can lower the named intrinsic.
	HasIntrinsic(name string) bool
}

// llvmIntrinsicSince is the first LLVM major version that knows each
// intrinsic the kernels emit.
var llvmIntrinsicSince = map[string]int{
	ir.PMaddUBSW256: 0,
	ir.PMaddWD256:   0,
	ir.PMaddUBSW512: 0,
	ir.PMaddWD512:   0,
	ir.VPDPBUSD512:  8,
	ir.VPDPBUSD256:  8,
}

type llvmBackend struct {
	major int
}

// LLVM returns the LLVM backend of the given major version.
func LLVM(major int) Backend {
	return llvmBackend{major: major}
}

func (b llvmBackend) Name() string    { return "llvm" }
func (b llvmBackend) Version() string { return fmt.Sprintf("llvm-%d", b.major) }

func (b llvmBackend) HasIntrinsic(name string) bool {
	since, ok := llvmIntrinsicSince[name]
	return ok && b.major >= since
}

// KnownInstructions lists the instructions the probes know about, sorted
// by width then name.
func KnownInstructions() []string {
	return []string{ir.PMaddUBSW256, ir.PMaddWD256, ir.VPDPBUSD256, ir.PMaddUBSW512, ir.PMaddWD512, ir.VPDPBUSD512}
}

// BackendProbe answers from the backend's intrinsic table only. This is
// the right probe when cross-compiling for a machine other than the host.
type BackendProbe struct {
	Backend Backend
}

// Supports implements CapabilityProbe.
func (p BackendProbe) Supports(instruction string) bool {
	return p.Backend != nil && p.Backend.HasIntrinsic(instruction)
}

// HostProbe requires both the backend and the host CPU to support an
// instruction. Setting HWKERNEL_NO_SIMD reports every instruction absent.
type HostProbe struct {
	Backend Backend
}

// Supports implements CapabilityProbe.
func (p HostProbe) Supports(instruction string) bool {
	if NoSIMDEnv() {
		return false
	}
	return BackendProbe(p).Supports(instruction) && hostSupports(instruction)
}

// NoSIMDEnv checks if the HWKERNEL_NO_SIMD environment variable is set.
func NoSIMDEnv() bool {
	val := os.Getenv("HWKERNEL_NO_SIMD")
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}

// HostFeatures returns the CPU features relevant to the kernels, keyed by
// their usual names. Non-x86 hosts return an empty map.
func HostFeatures() map[string]bool {
	out := make(map[string]bool, len(hostFeatures))
	for k, v := range hostFeatures {
		out[k] = v
	}
	return out
}

// CachedProbe memoizes the answers of Probe per backend version. It is
// safe for concurrent use.
type CachedProbe struct {
	Probe   CapabilityProbe
	Backend Backend

	cache sync.Map
}

// NewCachedProbe wraps probe, keying answers by backend's version.
func NewCachedProbe(probe CapabilityProbe, backend Backend) *CachedProbe {
	return &CachedProbe{Probe: probe, Backend: backend}
}

type probeKey struct {
	version, instruction string
}

// Supports implements CapabilityProbe.
func (p *CachedProbe) Supports(instruction string) bool {
	key := probeKey{instruction: instruction}
	if p.Backend != nil {
		key.version = p.Backend.Version()
	}
	if v, ok := p.cache.Load(key); ok {
		return v.(bool)
	}
	answer := p.Probe != nil && p.Probe.Supports(instruction)
	v, _ := p.cache.LoadOrStore(key, answer)
	return v.(bool)
}
