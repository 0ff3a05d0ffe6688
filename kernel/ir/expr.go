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
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
)

// Expr is a side-effect free IR expression.
type Expr interface {
	// Type returns the type of the value the expression produces.
	Type() Type

	isExpr()
}

// BinaryOp enumerates the lane-wise binary operators.
type BinaryOp int

const (
	// OpAdd is wrap-around addition.
	OpAdd BinaryOp = iota

	// OpAnd is bitwise and.
	OpAnd

	// OpShr is a right shift: logical for unsigned lanes, arithmetic otherwise.
	OpShr
)

// String returns the operator symbol used by the printer.
func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpAnd:
		return "&"
	case OpShr:
		return ">>"
	default:
		return fmt.Sprintf("BinaryOp(%d)", int(op))
	}
}

// AccessMode describes how an external procedure uses a buffer address.
type AccessMode string

const (
	AccessRead      AccessMode = "r"
	AccessWrite     AccessMode = "w"
	AccessReadWrite AccessMode = "rw"
)

// Const is an integer constant, broadcast to every lane of Ty.
type Const struct {
	Ty    Type
	Value int64
}

// Var is a symbolic scalar: a stride resolved at lowering time, or a
// let-bound local inside a fragment.
type Var struct {
	Name string
	Ty   Type
}

// VLoad reads Ty.Lanes consecutive logical elements of Buffer starting at Index.
type VLoad struct {
	Buffer *Buffer
	Index  []Expr
	Ty     Type
}

// Broadcast replicates a scalar into every lane.
type Broadcast struct {
	Value Expr
	Lanes int
}

// Reinterpret views the bits of Value as another type of the same width.
type Reinterpret struct {
	Value Expr
	Ty    Type
}

// Binary applies Op lane-wise. Both operands must have the same type.
type Binary struct {
	Op   BinaryOp
	A, B Expr
}

// CallIntrin calls a target intrinsic of the code-generation backend.
type CallIntrin struct {
	Name string
	Ty   Type
	Args []Expr
}

// AccessPtr is the address of the first element of Buffer.
type AccessPtr struct {
	Buffer *Buffer
	Mode   AccessMode
}

// CallExtern calls an external procedure with C linkage.
type CallExtern struct {
	Name string
	Ty   Type
	Args []Expr
}

func (e Const) Type() Type       { return e.Ty }
func (e Var) Type() Type         { return e.Ty }
func (e VLoad) Type() Type       { return e.Ty }
func (e Broadcast) Type() Type   { return Vector(e.Value.Type().DType, e.Lanes) }
func (e Reinterpret) Type() Type { return e.Ty }
func (e Binary) Type() Type      { return e.A.Type() }
func (e CallIntrin) Type() Type  { return e.Ty }
func (e AccessPtr) Type() Type   { return HandleType }
func (e CallExtern) Type() Type  { return e.Ty }

func (Const) isExpr()       {}
func (Var) isExpr()         {}
func (VLoad) isExpr()       {}
func (Broadcast) isExpr()   {}
func (Reinterpret) isExpr() {}
func (Binary) isExpr()      {}
func (CallIntrin) isExpr()  {}
func (AccessPtr) isExpr()   {}
func (CallExtern) isExpr()  {}

// Int32 returns a scalar int32 constant.
func Int32(v int64) Const {
	return Const{Ty: Scalar(dtypes.Int32), Value: v}
}

// Bool returns a boolean constant.
func Bool(v bool) Const {
	c := Const{Ty: Scalar(dtypes.Bool)}
	if v {
		c.Value = 1
	}
	return c
}

// Splat returns a vector constant with every lane set to v.
func Splat(t Type, v int64) Const {
	return Const{Ty: t, Value: v}
}

// Int32Var returns a symbolic int32 variable.
func Int32Var(name string) Var {
	return Var{Name: name, Ty: Scalar(dtypes.Int32)}
}

// Add returns a + b.
func Add(a, b Expr) Binary {
	return Binary{Op: OpAdd, A: a, B: b}
}

// And returns a & b.
func And(a, b Expr) Binary {
	return Binary{Op: OpAnd, A: a, B: b}
}

// Shr returns a >> b.
func Shr(a, b Expr) Binary {
	return Binary{Op: OpShr, A: a, B: b}
}

// Zeros returns the index [0, 0, ...] of the given rank.
func Zeros(rank int) []Expr {
	idx := make([]Expr, rank)
	for i := range idx {
		idx[i] = Int32(0)
	}
	return idx
}
