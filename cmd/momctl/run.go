package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rbaliyan/mom"
	"github.com/rbaliyan/mom/codec"
	"github.com/rbaliyan/mom/internal/scenario"
	"github.com/spf13/cobra"
)

type runFlags struct {
	format  string
	summary bool
	metrics bool
	locking bool
	tracing bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.format, "format", "f", "json", "Summary format (json, msgpack)")
	cmd.Flags().BoolVarP(&f.summary, "summary", "s", false, "Write a summary with a tree snapshot after the deliveries")
	cmd.Flags().BoolVar(&f.metrics, "metrics", false, "Print Prometheus counters collected during the run")
	cmd.Flags().BoolVar(&f.locking, "locking", false, "Run the middleware with locking enabled")
	cmd.Flags().BoolVar(&f.tracing, "tracing", false, "Emit OpenTelemetry spans through the global provider")
}

func runCmd() *cobra.Command {
	var (
		flags runFlags
		path  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario file",
		Long: `Run loads a TOML scenario, executes it on a fresh middleware and prints
one line per delivered frame.

Example scenario:
` + scenario.Example,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("a scenario file is required (-c)")
			}
			cfg, err := scenario.Load(path)
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cmd.OutOrStdout(), cfg, &flags)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "Scenario file")
	flags.register(cmd)
	return cmd
}

func exampleCmd() *cobra.Command {
	var (
		flags runFlags
		show  bool
	)

	cmd := &cobra.Command{
		Use:   "example",
		Short: "Run the built-in example scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if show {
				_, err := io.WriteString(cmd.OutOrStdout(), scenario.Example)
				return err
			}
			cfg, err := scenario.Parse(scenario.Example)
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cmd.OutOrStdout(), cfg, &flags)
		},
	}
	cmd.Flags().BoolVarP(&show, "print", "p", false, "Print the scenario instead of running it")
	flags.register(cmd)
	return cmd
}

func execute(ctx context.Context, out io.Writer, cfg *scenario.Config, flags *runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := codec.ByName(flags.format)
	if err != nil {
		return err
	}
	if j, ok := c.(codec.JSON); ok {
		j.Indent = "  "
		c = j
	}

	opts := []mom.Option{
		mom.WithTracing(flags.tracing),
		mom.WithLocking(flags.locking),
	}

	var registry *prometheus.Registry
	if flags.metrics {
		registry = prometheus.NewRegistry()
		pm := mom.NewPrometheusMetrics("momctl")
		if err := pm.Register(registry); err != nil {
			return err
		}
		opts = append(opts, mom.WithMetrics(true, pm))
	} else {
		opts = append(opts, mom.WithMetrics(false, nil))
	}

	res, err := scenario.NewRunner(out, nil, opts...).Run(ctx, cfg)
	if err != nil {
		return err
	}

	if registry != nil {
		if err := printMetrics(out, registry); err != nil {
			return err
		}
	}

	if flags.summary {
		data, err := c.Encode(res)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
		if c.Name() == "json" {
			fmt.Fprintln(out)
		}
	}
	return nil
}

// printMetrics writes one line per counter series, sorted by name
func printMetrics(out io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(out, l); err != nil {
			return err
		}
	}
	return nil
}
