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
	"bytes"
	"fmt"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
)

// Printer renders fragments as text. Output is deterministic: the same
// fragment always prints the same way, so printed fragments can be diffed
// and archived.
type Printer struct {
	buf    *bytes.Buffer
	indent int
}

// NewPrinter creates a new printer.
func NewPrinter() *Printer {
	return &Printer{buf: &bytes.Buffer{}}
}

// Fragment prints f and returns the accumulated text.
func (p *Printer) Fragment(f *Fragment) string {
	p.buf.Reset()
	if f == nil {
		p.line("// empty")
		return p.buf.String()
	}
	for _, s := range f.Stmts {
		p.stmt(s)
	}
	return p.buf.String()
}

// Buffer prints a buffer declaration.
func (p *Printer) Buffer(b *Buffer) string {
	strides := make([]string, len(b.Strides))
	for i, s := range b.Strides {
		strides[i] = p.expr(s)
	}
	dims := make([]string, len(b.Shape))
	for i, d := range b.Shape {
		dims[i] = fmt.Sprint(d)
	}
	decl := fmt.Sprintf("buffer %s: %s[%s] strides=[%s] offset_factor=%d",
		b.Name, DTypeName(b.DType), strings.Join(dims, ", "), strings.Join(strides, ", "), b.OffsetFactor)
	if b.Scope != "" {
		decl += " scope=" + b.Scope
	}
	return decl
}

func (p *Printer) line(format string, args ...any) {
	p.buf.WriteString(strings.Repeat("  ", p.indent))
	fmt.Fprintf(p.buf, format, args...)
	p.buf.WriteByte('\n')
}

func (p *Printer) stmt(s Stmt) {
	switch n := s.(type) {
	case Let:
		p.line("let %s: %s = %s", n.Var.Name, n.Var.Ty, p.expr(n.Value))
	case VStore:
		p.line("vstore(%s%s, %s)", n.Buffer.Name, p.index(n.Index), p.expr(n.Value))
	case Evaluate:
		p.line("%s", p.expr(n.Value))
	default:
		p.line("// unknown statement %T", s)
	}
}

func (p *Printer) index(idx []Expr) string {
	parts := make([]string, len(idx))
	for i, e := range idx {
		parts[i] = p.expr(e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (p *Printer) args(args []Expr) string {
	parts := make([]string, len(args))
	for i, e := range args {
		parts[i] = p.expr(e)
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) expr(e Expr) string {
	switch n := e.(type) {
	case Const:
		if n.Ty.IsVector() {
			return fmt.Sprintf("%s(%d)", n.Ty, n.Value)
		}
		if n.Ty.DType == dtypes.Bool {
			return fmt.Sprint(n.Value != 0)
		}
		return fmt.Sprint(n.Value)
	case Var:
		return n.Name
	case VLoad:
		return fmt.Sprintf("vload(%s%s): %s", n.Buffer.Name, p.index(n.Index), n.Ty)
	case Broadcast:
		return fmt.Sprintf("broadcast(%s, %d)", p.expr(n.Value), n.Lanes)
	case Reinterpret:
		return fmt.Sprintf("reinterpret<%s>(%s)", n.Ty, p.expr(n.Value))
	case Binary:
		return fmt.Sprintf("(%s %s %s)", p.expr(n.A), n.Op, p.expr(n.B))
	case CallIntrin:
		return fmt.Sprintf("%s<%s>(%s)", n.Name, n.Ty, p.args(n.Args))
	case AccessPtr:
		return fmt.Sprintf("&%s:%s", n.Buffer.Name, n.Mode)
	case CallExtern:
		return fmt.Sprintf("extern %s(%s)", n.Name, p.args(n.Args))
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

// String returns the printed form of the fragment.
func (f *Fragment) String() string {
	return NewPrinter().Fragment(f)
}

// String returns the printed declaration of the buffer.
func (b *Buffer) String() string {
	return NewPrinter().Buffer(b)
}
