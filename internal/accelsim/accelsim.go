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

// Package accelsim simulates the matrix accelerator procedures called by
// the scratchpad kernels, so their fragments can be executed and checked.
//
// The simulator keeps one int32 accumulator per destination address. It
// ignores timing and scratchpad staging.
package accelsim

import (
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/tensorize/hwkernel/kernel/ir"
	"github.com/tensorize/hwkernel/kernel/targets/scratchpad"
)

// Call records one procedure invocation. Pointer arguments are recorded
// as their element offset.
type Call struct {
	Proc string
	Args []int64
}

// Bias returns the bias sentinel of a kernel_update call.
func (c Call) Bias() int64 {
	if c.Proc != scratchpad.ProcUpdate || len(c.Args) < 3 {
		return -1
	}
	return c.Args[2]
}

type accKey struct {
	region *ir.Region
	offset int
}

type accumulator struct {
	rows, cols int
	data       []int64
}

// Simulator implements the accelerator procedures.
type Simulator struct {
	// Dim is the side of the accelerator's blocks.
	Dim int

	mu    sync.Mutex
	accs  map[accKey]*accumulator
	calls []Call
}

// New returns a simulator for blocks of dim x dim.
func New(dim int) *Simulator {
	return &Simulator{Dim: dim, accs: make(map[accKey]*accumulator)}
}

// Install registers the procedures on m.
func (s *Simulator) Install(m *ir.Machine) {
	m.RegisterExtern(scratchpad.ProcReset, s.reset)
	m.RegisterExtern(scratchpad.ProcUpdate, s.update)
	m.RegisterExtern(scratchpad.ProcFinalize, s.finalize)
}

// Calls returns the invocations so far, in order.
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Simulator) record(proc string, args []ir.Value) {
	c := Call{Proc: proc, Args: make([]int64, len(args))}
	for i, a := range args {
		if a.Ptr != nil {
			c.Args[i] = int64(a.Ptr.Offset)
		} else {
			c.Args[i] = int64(a.Int())
		}
	}
	s.calls = append(s.calls, c)
}

func pointer(args []ir.Value, i int, dt dtypes.DType) (*ir.Pointer, error) {
	p := args[i].Ptr
	if p == nil {
		return nil, errors.Errorf("argument #%d is not a pointer", i)
	}
	if p.Region.DType != dt {
		return nil, errors.Wrapf(ir.ErrTypeMismatch, "argument #%d points to %s, want %s",
			i, ir.DTypeName(p.Region.DType), ir.DTypeName(dt))
	}
	return p, nil
}

// extent converts blocks and pad into an element count.
func (s *Simulator) extent(blocks, pad int) (int, error) {
	n := blocks*s.Dim - pad
	if blocks <= 0 || pad < 0 || pad >= s.Dim || n <= 0 {
		return 0, errors.Errorf("invalid extent: %d blocks with pad %d", blocks, pad)
	}
	return n, nil
}

func at(p *ir.Pointer, row, stride, col int) (int, error) {
	idx := p.Offset + row*stride + col
	if idx < 0 || idx >= len(p.Region.Data) {
		return 0, errors.Wrapf(ir.ErrOutOfBounds, "element %d of a region of %d", idx, len(p.Region.Data))
	}
	return idx, nil
}

// kernel_reset(dst, I, J, padI, padJ, strideC)
func (s *Simulator) reset(args []ir.Value) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(scratchpad.ProcReset, args)
	if len(args) != 6 {
		return 0, errors.Errorf("%s takes 6 arguments, got %d", scratchpad.ProcReset, len(args))
	}
	dst, err := pointer(args, 0, dtypes.Int8)
	if err != nil {
		return 0, err
	}
	rows, err := s.extent(args[1].Int(), args[3].Int())
	if err != nil {
		return 0, err
	}
	cols, err := s.extent(args[2].Int(), args[4].Int())
	if err != nil {
		return 0, err
	}
	s.accs[accKey{dst.Region, dst.Offset}] = &accumulator{rows: rows, cols: cols, data: make([]int64, rows*cols)}
	return 0, nil
}

// kernel_update(A, B, bias, dst, I, J, K, padI, padJ, padK,
// strideA, strideB, strideD, strideC, noBias, repeatingBias)
func (s *Simulator) update(args []ir.Value) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(scratchpad.ProcUpdate, args)
	if len(args) != 16 {
		return 0, errors.Errorf("%s takes 16 arguments, got %d", scratchpad.ProcUpdate, len(args))
	}
	a, err := pointer(args, 0, dtypes.Int8)
	if err != nil {
		return 0, err
	}
	b, err := pointer(args, 1, dtypes.Int8)
	if err != nil {
		return 0, err
	}
	dst, err := pointer(args, 3, dtypes.Int8)
	if err != nil {
		return 0, err
	}
	overwrite := args[2].Int() != 0
	rows, err := s.extent(args[4].Int(), args[7].Int())
	if err != nil {
		return 0, err
	}
	cols, err := s.extent(args[5].Int(), args[8].Int())
	if err != nil {
		return 0, err
	}
	depth, err := s.extent(args[6].Int(), args[9].Int())
	if err != nil {
		return 0, err
	}
	strideA, strideB := args[10].Int(), args[11].Int()

	key := accKey{dst.Region, dst.Offset}
	acc, found := s.accs[key]
	if !found || overwrite {
		acc = &accumulator{rows: rows, cols: cols, data: make([]int64, rows*cols)}
		s.accs[key] = acc
	}
	if acc.rows != rows || acc.cols != cols {
		return 0, errors.Errorf("accumulator at %d is %dx%d, update is %dx%d", dst.Offset, acc.rows, acc.cols, rows, cols)
	}
	for r := range rows {
		for c := range cols {
			sum := acc.data[r*cols+c]
			for k := range depth {
				ia, err := at(a, r, strideA, k)
				if err != nil {
					return 0, err
				}
				ib, err := at(b, k, strideB, c)
				if err != nil {
					return 0, err
				}
				sum += a.Region.Data[ia] * b.Region.Data[ib]
			}
			acc.data[r*cols+c] = ir.Wrap(sum, dtypes.Int32)
		}
	}
	return 0, nil
}

// kernel_finalize(dst, I, J, padI, padJ, strideC) moves the accumulator
// out to dst, saturating to int8.
func (s *Simulator) finalize(args []ir.Value) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(scratchpad.ProcFinalize, args)
	if len(args) != 6 {
		return 0, errors.Errorf("%s takes 6 arguments, got %d", scratchpad.ProcFinalize, len(args))
	}
	dst, err := pointer(args, 0, dtypes.Int8)
	if err != nil {
		return 0, err
	}
	rows, err := s.extent(args[1].Int(), args[3].Int())
	if err != nil {
		return 0, err
	}
	cols, err := s.extent(args[2].Int(), args[4].Int())
	if err != nil {
		return 0, err
	}
	strideC := args[5].Int()
	acc, found := s.accs[accKey{dst.Region, dst.Offset}]
	if !found {
		return 0, errors.Errorf("no accumulator for destination %d", dst.Offset)
	}
	if acc.rows != rows || acc.cols != cols {
		return 0, errors.Errorf("accumulator at %d is %dx%d, finalize is %dx%d", dst.Offset, acc.rows, acc.cols, rows, cols)
	}
	for r := range rows {
		for c := range cols {
			idx, err := at(dst, r, strideC, c)
			if err != nil {
				return 0, err
			}
			dst.Region.Data[idx] = ir.Saturate(acc.data[r*cols+c], dtypes.Int8)
		}
	}
	return 0, nil
}
