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

//go:build amd64

package kernel

import (
	"golang.org/x/sys/cpu"

	"github.com/tensorize/hwkernel/kernel/ir"
)

// hostFeatures is filled once at start-up.
var hostFeatures map[string]bool

func init() {
	hostFeatures = map[string]bool{
		"avx2":       cpu.X86.HasAVX2,
		"avx512f":    cpu.X86.HasAVX512F,
		"avx512bw":   cpu.X86.HasAVX512BW,
		"avx512vl":   cpu.X86.HasAVX512VL,
		"avx512vnni": cpu.X86.HasAVX512VNNI,
	}
}

// hostSupports maps an intrinsic to the CPU features it needs.
func hostSupports(instruction string) bool {
	f := hostFeatures
	switch instruction {
	case ir.PMaddUBSW256, ir.PMaddWD256:
		return f["avx2"]
	case ir.PMaddUBSW512, ir.PMaddWD512:
		return f["avx512f"] && f["avx512bw"]
	case ir.VPDPBUSD512:
		return f["avx512f"] && f["avx512vnni"]
	case ir.VPDPBUSD256:
		return f["avx512vl"] && f["avx512vnni"]
	default:
		return false
	}
}
