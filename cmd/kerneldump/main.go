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

// Command kerneldump inspects the registered micro-kernels.
//
// Usage:
//
//	kerneldump list                      # registered kernels by target
//	kerneldump probe --llvm 17           # instruction availability
//	kerneldump emit GemminiGemmSize16 --extents 40,24,36 --factors 32,16,16
//	kerneldump emit Avx512VnniVnni --txtar > vnni.txtar
//
// Kernels are named by their symbol (see list) or by their key,
// "category/name@target".
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	defer klog.Flush()

	root := newRootCmd()
	root.PersistentFlags().AddGoFlagSet(klogFlags)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		klog.Flush()
		os.Exit(1)
	}
}
