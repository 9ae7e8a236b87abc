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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/subcommands"
	"gvisor.dev/zircon/pkg/metric"
	"gvisor.dev/zircon/zxctl/cmd/util"
	"gvisor.dev/zircon/zxctl/config"
)

// Metrics implements subcommands.Command for the "metrics" command.
type Metrics struct {
	bench bool
}

// Name implements subcommands.Command.Name.
func (*Metrics) Name() string {
	return "metrics"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Metrics) Synopsis() string {
	return "print metric values"
}

// Usage implements subcommands.Command.Usage.
func (*Metrics) Usage() string {
	return `metrics [-bench] - prints all metrics, in Prometheus text format unless --metrics-format=values.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Metrics) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.bench, "bench", false, "run the futex and event benchmarks first so counters are populated.")
}

// Execute implements subcommands.Command.Execute.
func (m *Metrics) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)
	if m.bench {
		if _, err := runFutexBench(ctx, conf.Threads, conf.Iterations, conf.Timeout); err != nil {
			return util.Exit(err)
		}
		if _, err := runEventBench(ctx, conf.Threads, conf.Iterations, conf.Timeout); err != nil {
			return util.Exit(err)
		}
	}
	if err := writeMetrics(os.Stdout, conf.MetricsFormat); err != nil {
		return util.Errorf("writing metrics: %v", err)
	}
	return subcommands.ExitSuccess
}

// writeMetrics writes every registered metric in the given format.
func writeMetrics(w io.Writer, format string) error {
	switch format {
	case "prometheus":
		return metric.WriteText(w)
	case "values":
		vals := metric.Values()
		names := make([]string, 0, len(vals))
		for name := range vals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := fmt.Fprintf(w, "%s %d\n", name, vals[name]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown metrics format %q", format)
	}
}
