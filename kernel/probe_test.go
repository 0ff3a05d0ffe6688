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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tensorize/hwkernel/kernel/ir"
)

func TestLLVMBackend(t *testing.T) {
	tests := []struct {
		major       int
		instruction string
		want        bool
	}{
		{7, ir.VPDPBUSD512, false},
		{8, ir.VPDPBUSD512, true},
		{15, ir.VPDPBUSD256, true},
		{3, ir.PMaddUBSW512, true},
		{3, ir.PMaddWD256, true},
		{17, "llvm.x86.avx512.nonexistent", false},
	}
	for _, tt := range tests {
		p := BackendProbe{Backend: LLVM(tt.major)}
		if got := p.Supports(tt.instruction); got != tt.want {
			t.Errorf("LLVM(%d).Supports(%q) = %v, want %v", tt.major, tt.instruction, got, tt.want)
		}
	}
	assert.False(t, BackendProbe{}.Supports(ir.PMaddWD512), "a probe without backend supports nothing")
}

func TestStaticProbe(t *testing.T) {
	p := StaticProbe{ir.VPDPBUSD512: true}
	assert.True(t, p.Supports(ir.VPDPBUSD512))
	assert.False(t, p.Supports(ir.VPDPBUSD256))
	assert.False(t, NoProbe.Supports(ir.VPDPBUSD512))
}

func TestHostProbeNoSIMD(t *testing.T) {
	t.Setenv("HWKERNEL_NO_SIMD", "1")
	p := HostProbe{Backend: LLVM(17)}
	for _, instr := range KnownInstructions() {
		assert.False(t, p.Supports(instr), "HWKERNEL_NO_SIMD should hide %s", instr)
	}

	t.Setenv("HWKERNEL_NO_SIMD", "false")
	assert.False(t, NoSIMDEnv())
}

func TestHostProbeRequiresBackend(t *testing.T) {
	// Whatever the host has, LLVM 7 cannot lower vpdpbusd.
	p := HostProbe{Backend: LLVM(7)}
	assert.False(t, p.Supports(ir.VPDPBUSD512))
	assert.False(t, p.Supports("not-an-intrinsic"))
}

type countingProbe struct {
	calls atomic.Int32
	inner CapabilityProbe
}

func (p *countingProbe) Supports(instruction string) bool {
	p.calls.Add(1)
	return p.inner.Supports(instruction)
}

func TestCachedProbe(t *testing.T) {
	inner := &countingProbe{inner: StaticProbe{ir.VPDPBUSD512: true}}
	p := NewCachedProbe(inner, LLVM(15))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				assert.True(t, p.Supports(ir.VPDPBUSD512))
				assert.False(t, p.Supports(ir.VPDPBUSD256))
			}
		}()
	}
	wg.Wait()
	// Racing goroutines may each ask once before the first answer is stored.
	assert.LessOrEqual(t, int(inner.calls.Load()), 2*8)

	before := inner.calls.Load()
	p.Backend = LLVM(16)
	assert.True(t, p.Supports(ir.VPDPBUSD512))
	assert.Equal(t, before+1, inner.calls.Load(), "a new backend version is probed again")
}
