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

import "github.com/pkg/errors"

var (
	// ErrCapacityExceeded is returned at registration when a fixed-shape
	// kernel needs more scratchpad or accumulator memory than its device has.
	ErrCapacityExceeded = errors.New("kernel exceeds device capacity")

	// ErrInvalidTile is returned for malformed tile parameters.
	ErrInvalidTile = errors.New("invalid tile parameters")

	// ErrShapeMismatch is returned when tile factors are incompatible with
	// the fixed shape of a kernel.
	ErrShapeMismatch = errors.New("tile shape does not match kernel")

	// ErrUnknownTarget is returned for empty or unknown target descriptions.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrInvalidDescriptor is returned when a compute factory produces an
	// unusable descriptor.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrNotFound is returned by lookups of keys that were never registered.
	ErrNotFound = errors.New("kernel not found")
)
