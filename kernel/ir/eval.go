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

package ir

import (
	"encoding/binary"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

var (
	// ErrUnbound is returned when a fragment references a buffer or a
	// variable the machine has no value for.
	ErrUnbound = errors.New("unbound name")

	// ErrUnknownIntrinsic is returned for calls to intrinsics without
	// reference semantics.
	ErrUnknownIntrinsic = errors.New("unknown intrinsic")

	// ErrUnknownExtern is returned for calls to unregistered external procedures.
	ErrUnknownExtern = errors.New("unknown external procedure")

	// ErrOutOfBounds is returned when an access falls outside its buffer
	// or the memory region backing it.
	ErrOutOfBounds = errors.New("access out of bounds")

	// ErrTypeMismatch is returned when operand types do not agree.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrExternStatus is returned when an external procedure reports a
	// non-zero status.
	ErrExternStatus = errors.New("external procedure failed")
)

// Region is a typed, flat block of memory. Values are kept widened to
// int64 and normalized to the element type.
type Region struct {
	DType dtypes.DType
	Data  []int64
}

// NewRegion allocates a zeroed region of n elements.
func NewRegion(dt dtypes.DType, n int) *Region {
	return &Region{DType: dt, Data: make([]int64, n)}
}

// Pointer is a buffer address handed to external procedures.
type Pointer struct {
	Region *Region
	Offset int
	Mode   AccessMode
}

// Value is the result of evaluating an expression: either lanes of an
// integer vector or scalar, or a pointer.
type Value struct {
	Type  Type
	Lanes []int64
	Ptr   *Pointer
}

// Int returns the first lane as an int.
func (v Value) Int() int {
	if len(v.Lanes) == 0 {
		return 0
	}
	return int(v.Lanes[0])
}

// ExternFunc implements an external procedure. It returns the status code
// of the call; anything other than zero is reported as ErrExternStatus.
type ExternFunc func(args []Value) (int64, error)

// BindOptions places a buffer inside its region.
type BindOptions struct {
	// Offset of the first element, in elements.
	Offset int

	// Strides per axis, in elements. Nil means compact row-major.
	Strides []int
}

type binding struct {
	region  *Region
	offset  int
	strides []int
}

// Machine executes fragments. Buffers are bound to regions before running
// and stay bound across runs, so a sequence of fragments (reset, update,
// update, ...) can operate on the same memory.
type Machine struct {
	buffers    map[*Buffer]*binding
	vars       map[string]Value
	intrinsics map[string]IntrinsicFunc
	externs    map[string]ExternFunc
}

// NewMachine returns a machine with the x86 intrinsic semantics installed.
func NewMachine() *Machine {
	return &Machine{
		buffers:    make(map[*Buffer]*binding),
		vars:       make(map[string]Value),
		intrinsics: X86Intrinsics(),
		externs:    make(map[string]ExternFunc),
	}
}

// RegisterIntrinsic installs or replaces the semantics of an intrinsic.
func (m *Machine) RegisterIntrinsic(name string, fn IntrinsicFunc) {
	m.intrinsics[name] = fn
}

// RegisterExtern installs or replaces an external procedure.
func (m *Machine) RegisterExtern(name string, fn ExternFunc) {
	m.externs[name] = fn
}

// SetVar sets the value of a symbolic scalar.
func (m *Machine) SetVar(name string, v int64) {
	m.vars[name] = Value{Type: Scalar(dtypes.Int32), Lanes: []int64{v}}
}

// Bind attaches buf to region. Symbolic strides of buf take the values of
// opts.Strides; constant strides must agree with them.
func (m *Machine) Bind(buf *Buffer, region *Region, opts BindOptions) error {
	if region.DType != buf.DType {
		return errors.Wrapf(ErrTypeMismatch, "binding buffer %q of %s to region of %s",
			buf.Name, DTypeName(buf.DType), DTypeName(region.DType))
	}
	strides := opts.Strides
	if strides == nil {
		strides = compactStrides(buf.Shape)
	}
	if len(strides) != buf.Rank() {
		return errors.Errorf("binding buffer %q: %d strides for rank %d", buf.Name, len(strides), buf.Rank())
	}
	for axis, s := range buf.Strides {
		switch n := s.(type) {
		case Const:
			if int(n.Value) != strides[axis] {
				return errors.Errorf("binding buffer %q: axis %d requires stride %d, got %d",
					buf.Name, axis, n.Value, strides[axis])
			}
		case Var:
			m.SetVar(n.Name, int64(strides[axis]))
		}
	}
	if buf.OffsetFactor > 1 && opts.Offset%buf.OffsetFactor != 0 {
		return errors.Errorf("binding buffer %q: offset %d is not a multiple of %d",
			buf.Name, opts.Offset, buf.OffsetFactor)
	}
	b := &binding{region: region, offset: opts.Offset, strides: strides}
	if buf.Elements() > 0 {
		last := b.physical(buf, buf.Elements()-1)
		if opts.Offset < 0 || last >= len(region.Data) {
			return errors.Wrapf(ErrOutOfBounds, "binding buffer %q: last element at %d, region has %d",
				buf.Name, last, len(region.Data))
		}
	}
	m.buffers[buf] = b
	return nil
}

func compactStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// physical maps the logical row-major position pos of buf to an index
// into the region.
func (b *binding) physical(buf *Buffer, pos int) int {
	off := b.offset
	for axis := buf.Rank() - 1; axis >= 0; axis-- {
		d := buf.Shape[axis]
		off += (pos % d) * b.strides[axis]
		pos /= d
	}
	return off
}

// Run executes the fragment. Let-bound locals are scoped to the run.
func (m *Machine) Run(f *Fragment) error {
	if f == nil {
		return nil
	}
	saved := make(map[string]Value, len(m.vars))
	for k, v := range m.vars {
		saved[k] = v
	}
	defer func() { m.vars = saved }()
	for i, s := range f.Stmts {
		if err := m.exec(s); err != nil {
			return errors.WithMessagef(err, "statement #%d", i)
		}
	}
	return nil
}

func (m *Machine) exec(s Stmt) error {
	switch n := s.(type) {
	case Let:
		v, err := m.Eval(n.Value)
		if err != nil {
			return err
		}
		m.vars[n.Var.Name] = v
		return nil
	case VStore:
		v, err := m.Eval(n.Value)
		if err != nil {
			return err
		}
		if v.Type.DType != n.Buffer.DType {
			return errors.Wrapf(ErrTypeMismatch, "storing %s into buffer %q of %s",
				v.Type, n.Buffer.Name, DTypeName(n.Buffer.DType))
		}
		b, pos, err := m.locate(n.Buffer, n.Index, len(v.Lanes))
		if err != nil {
			return err
		}
		for l, x := range v.Lanes {
			b.region.Data[b.physical(n.Buffer, pos+l)] = Wrap(x, n.Buffer.DType)
		}
		return nil
	case Evaluate:
		_, err := m.Eval(n.Value)
		return err
	default:
		return errors.Errorf("unknown statement %T", s)
	}
}

// locate returns the binding of buf and the logical position of idx,
// checking that lanes elements fit.
func (m *Machine) locate(buf *Buffer, idx []Expr, lanes int) (*binding, int, error) {
	b, ok := m.buffers[buf]
	if !ok {
		return nil, 0, errors.Wrapf(ErrUnbound, "buffer %q", buf.Name)
	}
	if len(idx) != buf.Rank() {
		return nil, 0, errors.Errorf("buffer %q: index of rank %d, buffer has rank %d", buf.Name, len(idx), buf.Rank())
	}
	pos := 0
	for axis, e := range idx {
		v, err := m.Eval(e)
		if err != nil {
			return nil, 0, err
		}
		i := v.Int()
		if i < 0 || i >= buf.Shape[axis] {
			return nil, 0, errors.Wrapf(ErrOutOfBounds, "buffer %q axis %d index %d, size %d",
				buf.Name, axis, i, buf.Shape[axis])
		}
		pos = pos*buf.Shape[axis] + i
	}
	if pos+lanes > buf.Elements() {
		return nil, 0, errors.Wrapf(ErrOutOfBounds, "buffer %q: %d lanes from position %d, buffer has %d elements",
			buf.Name, lanes, pos, buf.Elements())
	}
	return b, pos, nil
}

// Eval evaluates an expression.
func (m *Machine) Eval(e Expr) (Value, error) {
	switch n := e.(type) {
	case Const:
		lanes := make([]int64, max(n.Ty.Lanes, 1))
		for i := range lanes {
			lanes[i] = Wrap(n.Value, n.Ty.DType)
		}
		return Value{Type: n.Ty, Lanes: lanes}, nil

	case Var:
		v, ok := m.vars[n.Name]
		if !ok {
			return Value{}, errors.Wrapf(ErrUnbound, "variable %q", n.Name)
		}
		return v, nil

	case VLoad:
		if n.Ty.DType != n.Buffer.DType {
			return Value{}, errors.Wrapf(ErrTypeMismatch, "loading %s from buffer %q of %s",
				n.Ty, n.Buffer.Name, DTypeName(n.Buffer.DType))
		}
		b, pos, err := m.locate(n.Buffer, n.Index, n.Ty.Lanes)
		if err != nil {
			return Value{}, err
		}
		lanes := make([]int64, n.Ty.Lanes)
		for l := range lanes {
			lanes[l] = b.region.Data[b.physical(n.Buffer, pos+l)]
		}
		return Value{Type: n.Ty, Lanes: lanes}, nil

	case Broadcast:
		v, err := m.Eval(n.Value)
		if err != nil {
			return Value{}, err
		}
		if len(v.Lanes) != 1 {
			return Value{}, errors.Wrapf(ErrTypeMismatch, "broadcast of non-scalar %s", v.Type)
		}
		lanes := make([]int64, n.Lanes)
		for i := range lanes {
			lanes[i] = v.Lanes[0]
		}
		return Value{Type: Vector(v.Type.DType, n.Lanes), Lanes: lanes}, nil

	case Reinterpret:
		v, err := m.Eval(n.Value)
		if err != nil {
			return Value{}, err
		}
		if v.Type.Bits() != n.Ty.Bits() {
			return Value{}, errors.Wrapf(ErrTypeMismatch, "reinterpret %s as %s", v.Type, n.Ty)
		}
		lanes, err := reinterpretLanes(v.Lanes, v.Type.DType, n.Ty.DType)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: n.Ty, Lanes: lanes}, nil

	case Binary:
		a, err := m.Eval(n.A)
		if err != nil {
			return Value{}, err
		}
		b, err := m.Eval(n.B)
		if err != nil {
			return Value{}, err
		}
		if a.Type != b.Type {
			return Value{}, errors.Wrapf(ErrTypeMismatch, "%s %s %s", a.Type, n.Op, b.Type)
		}
		lanes := make([]int64, len(a.Lanes))
		for i := range lanes {
			switch n.Op {
			case OpAdd:
				lanes[i] = a.Lanes[i] + b.Lanes[i]
			case OpAnd:
				lanes[i] = a.Lanes[i] & b.Lanes[i]
			case OpShr:
				lanes[i] = a.Lanes[i] >> uint(b.Lanes[i])
			default:
				return Value{}, errors.Errorf("unknown operator %s", n.Op)
			}
			lanes[i] = Wrap(lanes[i], a.Type.DType)
		}
		return Value{Type: a.Type, Lanes: lanes}, nil

	case CallIntrin:
		fn, ok := m.intrinsics[n.Name]
		if !ok {
			return Value{}, errors.Wrapf(ErrUnknownIntrinsic, "%q", n.Name)
		}
		args, err := m.evalArgs(n.Args)
		if err != nil {
			return Value{}, errors.WithMessagef(err, "arguments of %s", n.Name)
		}
		lanes, err := fn(n.Ty, args)
		if err != nil {
			return Value{}, errors.WithMessagef(err, "calling %s", n.Name)
		}
		return Value{Type: n.Ty, Lanes: lanes}, nil

	case AccessPtr:
		b, ok := m.buffers[n.Buffer]
		if !ok {
			return Value{}, errors.Wrapf(ErrUnbound, "buffer %q", n.Buffer.Name)
		}
		return Value{Type: HandleType, Ptr: &Pointer{Region: b.region, Offset: b.offset, Mode: n.Mode}}, nil

	case CallExtern:
		fn, ok := m.externs[n.Name]
		if !ok {
			return Value{}, errors.Wrapf(ErrUnknownExtern, "%q", n.Name)
		}
		args, err := m.evalArgs(n.Args)
		if err != nil {
			return Value{}, errors.WithMessagef(err, "arguments of %s", n.Name)
		}
		status, err := fn(args)
		if err != nil {
			return Value{}, errors.WithMessagef(err, "calling %s", n.Name)
		}
		if status != 0 {
			return Value{}, errors.Wrapf(ErrExternStatus, "%s returned %d", n.Name, status)
		}
		return Value{Type: n.Ty, Lanes: []int64{status}}, nil

	default:
		return Value{}, errors.Errorf("unknown expression %T", e)
	}
}

func (m *Machine) evalArgs(exprs []Expr) ([]Value, error) {
	args := make([]Value, len(exprs))
	for i, e := range exprs {
		v, err := m.Eval(e)
		if err != nil {
			return nil, errors.WithMessagef(err, "argument #%d", i)
		}
		args[i] = v
	}
	return args, nil
}

// reinterpretLanes re-reads the little-endian bytes of lanes of type from
// as lanes of type to.
func reinterpretLanes(lanes []int64, from, to dtypes.DType) ([]int64, error) {
	fromBytes, toBytes := DTypeBytes(from), DTypeBytes(to)
	if fromBytes == 0 || toBytes == 0 {
		return nil, errors.Wrapf(ErrTypeMismatch, "reinterpret %s as %s", DTypeName(from), DTypeName(to))
	}
	total := len(lanes) * fromBytes
	if total%toBytes != 0 {
		return nil, errors.Wrapf(ErrTypeMismatch, "%d bytes do not split into %s lanes", total, DTypeName(to))
	}
	raw := make([]byte, total+8)
	for i, v := range lanes {
		binary.LittleEndian.PutUint64(raw[i*fromBytes:], uint64(v))
	}
	out := make([]int64, total/toBytes)
	for i := range out {
		out[i] = Wrap(int64(binary.LittleEndian.Uint64(raw[i*toBytes:])), to)
	}
	return out, nil
}
