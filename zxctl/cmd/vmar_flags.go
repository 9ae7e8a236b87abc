// Copyright 2026 The gVisor Authors.
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

// Package cmd holds implementations of the zxctl commands.
package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gopkg.in/yaml.v3"
	"gvisor.dev/zircon/pkg/abi/zircon"
	"gvisor.dev/zircon/pkg/errors/zxerr"
	"gvisor.dev/zircon/pkg/kernel/vmar"
	"gvisor.dev/zircon/zxctl/cmd/util"
)

// VmarFlags implements subcommands.Command for the "vmar-flags" command.
type VmarFlags struct {
	output string
}

// vmarFlagsRow is the decoded form of one option word.
type vmarFlagsRow struct {
	Option      string `json:"option" yaml:"option"`
	RegionFlags string `json:"region_flags,omitempty" yaml:"region_flags,omitempty"`
	MMUFlags    string `json:"mmu_flags,omitempty" yaml:"mmu_flags,omitempty"`
	AlignPow2   uint8  `json:"align_pow2,omitempty" yaml:"align_pow2,omitempty"`
	Mappable    bool   `json:"mappable" yaml:"mappable"`
	Status      string `json:"status" yaml:"status"`
}

type vmarFlagsOutput func(io.Writer, []vmarFlagsRow) error

var vmarFlagsOutputs = map[string]vmarFlagsOutput{
	"table": vmarFlagsTable,
	"json":  vmarFlagsJSON,
	"yaml":  vmarFlagsYAML,
}

// Name implements subcommands.Command.Name.
func (*VmarFlags) Name() string {
	return "vmar-flags"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*VmarFlags) Synopsis() string {
	return "decode VMAR option words"
}

// Usage implements subcommands.Command.Usage.
func (*VmarFlags) Usage() string {
	return `vmar-flags [-o table|json|yaml] <option>... - decodes each option word into region flags, page table flags and alignment.

Options are numbers (0x13) or names joined by '|' (read|write|specific|align=12).
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (v *VmarFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&v.output, "o", "table", "Output format (table, json, yaml).")
}

// Execute implements subcommands.Command.Execute.
func (v *VmarFlags) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	out, ok := vmarFlagsOutputs[v.output]
	if !ok {
		return util.Errorf("unsupported output format %q", v.output)
	}
	opts := make([]zircon.VMOption, 0, f.NArg())
	for _, arg := range f.Args() {
		o, err := zircon.ParseVMOption(arg)
		if err != nil {
			return util.Errorf("%v", err)
		}
		opts = append(opts, o)
	}
	if err := out(os.Stdout, decodeVmarFlags(opts)); err != nil {
		return util.Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// decodeVmarFlags splits every option word.
func decodeVmarFlags(opts []zircon.VMOption) []vmarFlagsRow {
	rows := make([]vmarFlagsRow, 0, len(opts))
	for _, o := range opts {
		row := vmarFlagsRow{
			Option:   o.String(),
			Mappable: vmar.IsValidMappingProtection(o),
		}
		split, err := vmar.SplitFlags(o)
		row.Status = zxerr.ToStatus(err).String()
		if err == nil {
			row.RegionFlags = split.RegionFlags.String()
			row.MMUFlags = split.MMUFlags.String()
			row.AlignPow2 = split.AlignPow2
		}
		rows = append(rows, row)
	}
	return rows
}

func vmarFlagsTable(w io.Writer, rows []vmarFlagsRow) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "OPTION\tREGION FLAGS\tMMU\tALIGN\tMAPPABLE\tSTATUS\n")
	for _, r := range rows {
		if r.Status != zircon.OK.String() {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%t\t%s\n", r.Option, r.Mappable, r.Status)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n", r.Option, r.RegionFlags, r.MMUFlags, r.AlignPow2, r.Mappable, r.Status)
	}
	return tw.Flush()
}

func vmarFlagsJSON(w io.Writer, rows []vmarFlagsRow) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(rows)
}

func vmarFlagsYAML(w io.Writer, rows []vmarFlagsRow) error {
	e := yaml.NewEncoder(w)
	if err := e.Encode(rows); err != nil {
		e.Close()
		return err
	}
	return e.Close()
}
