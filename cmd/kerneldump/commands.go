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
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/tensorize/hwkernel/kernel"
	"github.com/tensorize/hwkernel/kernel/targets"
	"golang.org/x/tools/txtar"
	"k8s.io/klog/v2"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	symbolStyle  = lipgloss.NewStyle().Bold(true)
	yesStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	noStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// options are the flags shared by every sub-command.
type options struct {
	probe string
	llvm  int
}

// Probe kinds accepted by --probe.
const (
	probeHost    = "host"
	probeBackend = "backend"
	probeNone    = "none"
)

func (o *options) capabilityProbe() (kernel.CapabilityProbe, error) {
	backend := kernel.LLVM(o.llvm)
	switch o.probe {
	case probeHost:
		return kernel.NewCachedProbe(kernel.HostProbe{Backend: backend}, backend), nil
	case probeBackend:
		return kernel.NewCachedProbe(kernel.BackendProbe{Backend: backend}, backend), nil
	case probeNone:
		return kernel.NoProbe, nil
	default:
		return nil, errors.Errorf("unknown probe %q, valid probes are %s, %s and %s", o.probe, probeHost, probeBackend, probeNone)
	}
}

func (o *options) registry() (*kernel.Registry, error) {
	probe, err := o.capabilityProbe()
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("building registry with probe %q, %s", o.probe, kernel.LLVM(o.llvm).Version())
	return targets.NewRegistry(probe, kernel.WithLogger(klog.Background()))
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "kerneldump",
		Short:         "Inspect the registered tensorization micro-kernels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.probe, "probe", probeHost,
		fmt.Sprintf("Capability probe: %s, %s (cross-compiling) or %s", probeHost, probeBackend, probeNone))
	root.PersistentFlags().IntVar(&opts.llvm, "llvm", 17, "LLVM major version of the backend")
	root.AddCommand(newListCmd(opts), newProbeCmd(opts), newEmitCmd(opts))
	return root
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered kernels grouped by target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := opts.registry()
			if err != nil {
				return err
			}
			printList(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func printList(w io.Writer, r *kernel.Registry) {
	for _, target := range r.Targets() {
		fmt.Fprintln(w, headingStyle.Render(target))
		for _, e := range r.Lookup(target) {
			d := e.Descriptor
			fmt.Fprintf(w, "  %s  %s/%s  %s\n", symbolStyle.Render(e.Symbol()), e.Key.Category, e.Key.Name, e.Generator.ISA())
			fmt.Fprintf(w, "    %s\n", d)
			fmt.Fprintf(w, "    shape %v, operands %s, accumulator %s; device %s\n", d.Shape,
				humanize.IBytes(uint64(d.OperandBytes())), humanize.IBytes(uint64(d.AccumulatorBytes())),
				e.Generator.Capacity())
		}
	}
	fmt.Fprintf(w, "%d kernels for %d targets\n", r.Len(), len(r.Targets()))
}

func newProbeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report which instructions the backend and the host support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			probe, err := opts.capabilityProbe()
			if err != nil {
				return err
			}
			printProbe(cmd.OutOrStdout(), kernel.LLVM(opts.llvm), opts.probe, probe)
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return yesStyle.Render("yes")
	}
	return noStyle.Render("no")
}

func printProbe(w io.Writer, backend kernel.Backend, name string, probe kernel.CapabilityProbe) {
	fmt.Fprintln(w, headingStyle.Render("Host features"))
	features := kernel.HostFeatures()
	if len(features) == 0 {
		fmt.Fprintln(w, "  (none detected)")
	}
	keys := lo.Keys(features)
	slices.Sort(keys)
	for _, f := range keys {
		fmt.Fprintf(w, "  %-12s %s\n", f, yesNo(features[f]))
	}
	if kernel.NoSIMDEnv() {
		fmt.Fprintln(w, "  HWKERNEL_NO_SIMD is set: the host probe reports nothing")
	}

	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("Instructions (%s, probe %s)", backend.Version(), name)))
	for _, inst := range kernel.KnownInstructions() {
		fmt.Fprintf(w, "  %-32s backend %-3s probe %s\n", inst, yesNo(backend.HasIntrinsic(inst)), yesNo(probe.Supports(inst)))
	}
}

type emitOptions struct {
	extents, factors []int
	archive          bool
}

func newEmitCmd(opts *options) *cobra.Command {
	eo := &emitOptions{}
	cmd := &cobra.Command{
		Use:   "emit <kernel>",
		Short: "Emit every variant of a kernel for an iteration space",
		Long: `Emit specializes a kernel for an iteration space and prints the fragments
of every variant. Without --extents the registered shape is used as a single tile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.registry()
			if err != nil {
				return err
			}
			entry, err := findEntry(r, args[0])
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), entry, eo)
		},
	}
	cmd.Flags().IntSliceVar(&eo.extents, "extents", nil, "Iteration space extents, one per dimension")
	cmd.Flags().IntSliceVar(&eo.factors, "factors", nil, "Tile factors, one per dimension (default: the registered shape)")
	cmd.Flags().BoolVar(&eo.archive, "txtar", false, "Write a txtar archive with one file per variant and phase")
	return cmd
}

// findEntry matches a kernel by symbol or by key.
func findEntry(r *kernel.Registry, name string) (*kernel.Entry, error) {
	entry, found := lo.Find(r.Entries(), func(e *kernel.Entry) bool {
		return e.Symbol() == name || e.Key.String() == name
	})
	if !found {
		symbols := lo.Map(r.Entries(), func(e *kernel.Entry, _ int) string { return e.Symbol() })
		return nil, errors.Wrapf(kernel.ErrNotFound, "kernel %q, registered kernels are %s", name, strings.Join(symbols, ", "))
	}
	return entry, nil
}

// variantName returns e.g. "boundary-0-2.first", or "interior".
func variantName(v *kernel.Variant) string {
	var dims []string
	for dim, b := range v.Boundary {
		if b {
			dims = append(dims, fmt.Sprint(dim))
		}
	}
	name := "interior"
	if len(dims) > 0 {
		name = "boundary-" + strings.Join(dims, "-")
	}
	if v.FirstReduction {
		name += ".first"
	}
	return name
}

func emit(w io.Writer, entry *kernel.Entry, eo *emitOptions) error {
	extents, factors := eo.extents, eo.factors
	if len(extents) == 0 {
		extents = entry.Descriptor.Shape
	}
	if len(factors) == 0 {
		factors = entry.Descriptor.Shape
	}
	set, err := kernel.Specialize(entry, extents, factors)
	if err != nil {
		return err
	}
	klog.V(1).Infof("%s: %d variants for extents %v, factors %v", entry.Key, set.Len(), extents, factors)

	if !eo.archive {
		for _, v := range set.Variants() {
			fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("%s %s", entry.Symbol(), variantName(v))))
			fmt.Fprint(w, v.Kernel)
		}
		return nil
	}

	ar := &txtar.Archive{
		Comment: fmt.Appendf(nil, "%s\nsymbol %s, %s\nextents %v, factors %v, %d variants\n",
			entry.Key, entry.Symbol(), entry.Generator.ISA(), extents, factors, set.Len()),
	}
	for _, v := range set.Variants() {
		var decls strings.Builder
		for _, b := range v.Kernel.Bindings {
			fmt.Fprintf(&decls, "%s\n", b.Buffer)
		}
		prefix := variantName(v) + "/"
		ar.Files = append(ar.Files, txtar.File{Name: prefix + "buffers", Data: []byte(decls.String())})
		for _, p := range v.Kernel.Phases() {
			ar.Files = append(ar.Files, txtar.File{Name: prefix + p.Name, Data: []byte(p.Fragment.String())})
		}
	}
	_, err = w.Write(txtar.Format(ar))
	return errors.Wrap(err, "writing archive")
}
