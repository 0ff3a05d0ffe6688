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
	"github.com/gomlx/gopjrt/dtypes"
)

// Buffer is the view a fragment has of one operand: a name, an element
// type, a static shape and per-axis strides in elements.
//
// Strides are expressions so the innermost stride can be pinned to 1 while
// the outer ones stay symbolic until the buffer is bound at execution time.
type Buffer struct {
	Name         string
	DType        dtypes.DType
	Shape        []int
	Strides      []Expr
	OffsetFactor int
	Scope        string
}

// Rank returns the number of axes of the buffer.
func (b *Buffer) Rank() int {
	return len(b.Shape)
}

// Elements returns the number of logical elements of the buffer.
func (b *Buffer) Elements() int {
	n := 1
	for _, d := range b.Shape {
		n *= d
	}
	return n
}

// Stmt is a fragment statement.
type Stmt interface {
	isStmt()
}

// Let binds Var to the value of Value for the rest of the fragment.
type Let struct {
	Var   Var
	Value Expr
}

// VStore writes Value into Value.Type().Lanes consecutive logical elements
// of Buffer starting at Index.
type VStore struct {
	Buffer *Buffer
	Index  []Expr
	Value  Expr
}

// Evaluate evaluates an expression for its side effects, typically a
// CallExtern.
type Evaluate struct {
	Value Expr
}

func (Let) isStmt()      {}
func (VStore) isStmt()   {}
func (Evaluate) isStmt() {}

// Fragment is a straight-line sequence of statements.
type Fragment struct {
	Stmts []Stmt
}

// NewFragment returns a fragment with the given statements.
func NewFragment(stmts ...Stmt) *Fragment {
	return &Fragment{Stmts: stmts}
}

// Len returns the number of statements. Nil fragments have length 0.
func (f *Fragment) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Stmts)
}

// Buffers returns the distinct buffers referenced by the fragment, in
// order of first use.
func (f *Fragment) Buffers() []*Buffer {
	if f == nil {
		return nil
	}
	var out []*Buffer
	seen := make(map[*Buffer]bool)
	add := func(b *Buffer) {
		if b != nil && !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	var walk func(e Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case VLoad:
			add(n.Buffer)
			for _, i := range n.Index {
				walk(i)
			}
		case AccessPtr:
			add(n.Buffer)
		case Broadcast:
			walk(n.Value)
		case Reinterpret:
			walk(n.Value)
		case Binary:
			walk(n.A)
			walk(n.B)
		case CallIntrin:
			for _, a := range n.Args {
				walk(a)
			}
		case CallExtern:
			for _, a := range n.Args {
				walk(a)
			}
		}
	}
	for _, s := range f.Stmts {
		switch n := s.(type) {
		case Let:
			walk(n.Value)
		case VStore:
			add(n.Buffer)
			for _, i := range n.Index {
				walk(i)
			}
			walk(n.Value)
		case Evaluate:
			walk(n.Value)
		}
	}
	return out
}

// Intrinsics returns the names of the backend intrinsics called by the
// fragment, in order of first use.
func (f *Fragment) Intrinsics() []string {
	return f.calls(func(e Expr) (string, bool) {
		c, ok := e.(CallIntrin)
		return c.Name, ok
	})
}

// Externs returns the names of the external procedures called by the
// fragment, in order of first use.
func (f *Fragment) Externs() []string {
	return f.calls(func(e Expr) (string, bool) {
		c, ok := e.(CallExtern)
		return c.Name, ok
	})
}

func (f *Fragment) calls(match func(Expr) (string, bool)) []string {
	if f == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	var walk func(e Expr)
	walk = func(e Expr) {
		if name, ok := match(e); ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		switch n := e.(type) {
		case VLoad:
			for _, i := range n.Index {
				walk(i)
			}
		case Broadcast:
			walk(n.Value)
		case Reinterpret:
			walk(n.Value)
		case Binary:
			walk(n.A)
			walk(n.B)
		case CallIntrin:
			for _, a := range n.Args {
				walk(a)
			}
		case CallExtern:
			for _, a := range n.Args {
				walk(a)
			}
		}
	}
	for _, s := range f.Stmts {
		switch n := s.(type) {
		case Let:
			walk(n.Value)
		case VStore:
			walk(n.Value)
		case Evaluate:
			walk(n.Value)
		}
	}
	return out
}
