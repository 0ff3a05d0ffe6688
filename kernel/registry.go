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
	"strings"
	"sync"
	"unicode"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"k8s.io/klog/v2"
)

// Key identifies a registered kernel.
type Key struct {
	Category string
	Name     string
	Target   string
}

// String returns e.g. "avx512/gemv@llvm -mcpu=skylake-avx512".
func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Category, k.Name, k.Target)
}

// Entry is a registered kernel.
type Entry struct {
	Key        Key
	Descriptor *Descriptor
	Generator  Generator
}

// Symbol returns the exported symbol name of the kernel, e.g.
// "GemminiGemmSize16" for category "gemmini" and name "gemm_size16".
func (e *Entry) Symbol() string {
	caser := cases.Title(language.English)
	var sb strings.Builder
	for _, s := range []string{e.Key.Category, e.Key.Name} {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			sb.WriteString(caser.String(part))
		}
	}
	return sb.String()
}

// Generate emits the fragments of the kernel for one tile.
func (e *Entry) Generate(req TileRequest) (*EmittedKernel, error) {
	k, err := e.Generator.Generate(req)
	if err != nil {
		return nil, errors.WithMessagef(err, "generating %s for tile %s", e.Key, req)
	}
	return k, nil
}

// Registration describes a kernel to register. Compute is called with
// ShapeArgs to build the descriptor.
type Registration struct {
	Compute   ComputeFunc
	ShapeArgs []int
	Category  string
	Name      string
	Target    string
	Generator Generator
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for registration warnings. The default
// logs through klog.
func WithLogger(logger logr.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

type registerOptions struct {
	override bool
}

// RegisterOption configures a single Register call.
type RegisterOption func(*registerOptions)

// WithOverride replaces an existing registration with the same key
// instead of keeping it.
func WithOverride() RegisterOption {
	return func(o *registerOptions) {
		o.override = true
	}
}

// Registry holds registered kernels. It is populated at start-up and read
// concurrently afterwards; lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	order   []Key
	logger  logr.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[Key]*Entry),
		logger:  klog.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register builds the descriptor of reg, checks it against the device
// capacity of its generator and inserts it.
//
// If the key is already registered the existing entry is kept and a
// warning is logged, unless WithOverride is given, in which case the new
// entry replaces the old one at the same position. Capacity violations
// are configuration errors and nothing is inserted.
func (r *Registry) Register(reg Registration, opts ...RegisterOption) (*Entry, error) {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	key := Key{Category: reg.Category, Name: reg.Name, Target: reg.Target}
	if strings.TrimSpace(reg.Target) == "" {
		return nil, errors.Wrapf(ErrUnknownTarget, "registering %s/%s: empty target", reg.Category, reg.Name)
	}
	if reg.Category == "" || reg.Name == "" {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "registering %s: category and name are required", key)
	}
	if reg.Compute == nil || reg.Generator == nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "registering %s: compute and generator are required", key)
	}

	desc, err := reg.Compute(reg.ShapeArgs...)
	if err != nil {
		return nil, errors.WithMessagef(err, "registering %s: computing descriptor for shape %v", key, reg.ShapeArgs)
	}
	if desc == nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "registering %s: nil descriptor", key)
	}
	if err := desc.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "registering %s", key)
	}
	if err := reg.Generator.Capacity().Check(desc); err != nil {
		return nil, errors.WithMessagef(err, "registering %s", key)
	}
	desc = desc.Clone()
	desc.Category, desc.Name, desc.Target = key.Category, key.Name, key.Target
	entry := &Entry{Key: key, Descriptor: desc, Generator: reg.Generator}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, found := r.entries[key]; found {
		if !o.override {
			r.logger.Info("Warning: kernel already registered, keeping the existing entry", "key", key.String())
			return existing, nil
		}
		r.logger.V(1).Info("overriding kernel registration", "key", key.String())
	} else {
		r.order = append(r.order, key)
	}
	r.entries[key] = entry
	return entry, nil
}

// Get returns the entry registered under key.
func (r *Registry) Get(key Key) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, found := r.entries[key]
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "%s", key)
	}
	return e, nil
}

// Lookup returns the entries registered for target, in registration order.
func (r *Registry) Lookup(target string) []*Entry {
	return lo.Filter(r.Entries(), func(e *Entry, _ int) bool {
		return e.Key.Target == target
	})
}

// Entries returns every entry in registration order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(k Key, _ int) *Entry {
		return r.entries[k]
	})
}

// Targets returns the distinct targets, in order of first registration.
func (r *Registry) Targets() []string {
	return lo.Uniq(lo.Map(r.Entries(), func(e *Entry, _ int) string {
		return e.Key.Target
	}))
}

// Len returns the number of registered kernels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
