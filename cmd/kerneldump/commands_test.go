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

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tensorize/hwkernel/kernel"
	"github.com/tensorize/hwkernel/kernel/ir"
	"golang.org/x/tools/txtar"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	out, err := run(t, "list", "--probe=none")
	require.NoError(t, err)
	for _, want := range []string{
		"c -device=micro_dev",
		"GemminiGemmSize16",
		"Avx512VnniVnni",
		"external-accelerator",
		"scratchpad 256 KiB, accumulator 64 KiB",
		"5 kernels for 5 targets",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "fused-reduce", "no probe, no fused kernels")
}

func TestProbe(t *testing.T) {
	t.Setenv("HWKERNEL_NO_SIMD", "1")
	out, err := run(t, "probe", "--llvm=7")
	require.NoError(t, err)
	assert.Contains(t, out, "llvm-7")
	assert.Contains(t, out, "HWKERNEL_NO_SIMD is set")
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, ir.VPDPBUSD512) {
			assert.NotContains(t, line, "yes", "vpdpbusd needs LLVM 8")
		}
	}

	_, err = run(t, "probe", "--probe=magic")
	assert.ErrorContains(t, err, "unknown probe")
}

func TestEmitText(t *testing.T) {
	out, err := run(t, "emit", "GemminiGemmSize16", "--probe=none", "--extents=40,24,36", "--factors=32,16,16")
	require.NoError(t, err)
	assert.Contains(t, out, "GemminiGemmSize16 interior.first")
	assert.Contains(t, out, "GemminiGemmSize16 boundary-0-1-2")
	assert.Contains(t, out, "extern kernel_update(")
}

func TestEmitArchive(t *testing.T) {
	out, err := run(t, "emit", "avx512-vnni/vnni@llvm -mcpu=cascadelake", "--probe=backend", "--llvm=17", "--txtar")
	require.NoError(t, err)
	ar := txtar.Parse([]byte(out))
	assert.Contains(t, string(ar.Comment), "fused-reduce")
	names := make([]string, len(ar.Files))
	for i, f := range ar.Files {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"interior/buffers", "interior/body", "interior/reset", "interior/update"}, names)
	assert.Contains(t, string(ar.Files[1].Data), ir.VPDPBUSD512)
}

func TestEmitUnknownKernel(t *testing.T) {
	_, err := run(t, "emit", "NoSuchKernel", "--probe=none")
	require.Error(t, err)
	assert.True(t, errors.Is(err, kernel.ErrNotFound))
	assert.Contains(t, err.Error(), "Avx2Gemv")
}
