/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l7mp/dscore/examples/cloudbalancing"
	"github.com/l7mp/dscore/internal/buildinfo"
	"github.com/l7mp/dscore/pkg/config"
	"github.com/l7mp/dscore/pkg/director"
	"github.com/l7mp/dscore/pkg/metrics"
	"github.com/l7mp/dscore/pkg/network"
	"github.com/l7mp/dscore/pkg/visualize"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

type options struct {
	configFile string
	verbosity  int

	cfg *config.Config
	log logr.Logger
}

func main() {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:          "dscore",
		Short:        "Incremental constraint scoring",
		Long:         `Score cloud balancing problems with an incremental constraint network.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(&o.configFile, "config", "", "scoring configuration file (YAML)")
	rootCmd.PersistentFlags().IntVarP(&o.verbosity, "verbosity", "v", 0, "log verbosity")

	rootCmd.AddCommand(o.scoreCmd(), o.graphCmd(), o.verifyCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *options) setup(cmd *cobra.Command) error {
	o.cfg = config.Default()
	if o.configFile != "" {
		cfg, err := config.Load(o.configFile)
		if err != nil {
			return err
		}
		o.cfg = cfg
	}
	if cmd.Flags().Changed("verbosity") {
		o.cfg.Verbosity = o.verbosity
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-o.cfg.Verbosity))
	zc.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	zc.DisableStacktrace = true
	z, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	o.log = zapr.NewLogger(z).WithName("dscore")
	return nil
}

// newDirector builds the cloud balancing network and loads the problem into a director.
func (o *options) newDirector(p *cloudbalancing.Problem, m *metrics.Metrics, mode director.AssertMode) (*director.Director, error) {
	net, err := o.newNetwork()
	if err != nil {
		return nil, err
	}
	dopts, err := o.cfg.DirectorOptions()
	if err != nil {
		return nil, err
	}
	dopts.Metrics = m
	dopts.Logger = o.log
	dopts.AssertMode = max(dopts.AssertMode, mode)
	d, err := director.New(net, dopts)
	if err != nil {
		return nil, err
	}
	if err := d.Reset(p.Facts()...); err != nil {
		return nil, err
	}
	return d, nil
}

func (o *options) newNetwork() (*network.Network, error) {
	kind, err := o.cfg.Kind()
	if err != nil {
		return nil, err
	}
	bopts, err := o.cfg.BuilderOptions()
	if err != nil {
		return nil, err
	}
	bopts = append(bopts, network.WithLogger(o.log))
	return cloudbalancing.NewNetwork(kind, bopts...)
}

func (o *options) scoreCmd() *cobra.Command {
	var explain, showMetrics bool
	cmd := &cobra.Command{
		Use:   "score <problem.yaml>",
		Short: "Score a cloud balancing problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cloudbalancing.Load(args[0])
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			m, err := metrics.New(reg)
			if err != nil {
				return err
			}
			if explain {
				o.cfg.MatchTracking = true
			}
			d, err := o.newDirector(p, m, director.AssertNone)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if explain {
				e, err := d.Explain()
				if err != nil {
					return err
				}
				fmt.Fprint(out, e.String())
			} else {
				sc, err := d.CalculateScore()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, sc.String())
			}

			if showMetrics {
				return printMetrics(cmd, reg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "break the score down by constraint and fact")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print the collected metrics")
	return cmd
}

func printMetrics(cmd *cobra.Command, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, l := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", l.GetName(), l.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(out, "%s%s %g\n", mf.GetName(), labels, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(out, "%s%s %g\n", mf.GetName(), labels, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				fmt.Fprintf(out, "%s%s count=%d sum=%g\n", mf.GetName(), labels,
					m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
	return nil
}

func (o *options) graphCmd() *cobra.Command {
	var (
		format, output string
		compact        bool
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the node network of the cloud balancing model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := visualize.NewGenerator(format, compact)
			if err != nil {
				return err
			}
			net, err := o.newNetwork()
			if err != nil {
				return err
			}
			diagram := gen.Generate(visualize.BuildGraph(cloudbalancing.Package, net))
			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), diagram)
				return nil
			}
			if err := os.WriteFile(output, []byte(diagram), 0o644); err != nil {
				return fmt.Errorf("failed to write diagram: %w", err)
			}
			o.log.Info("diagram written", "path", output, "nodes", len(net.Nodes()))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "dot", "diagram format: dot or mermaid")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout if empty")
	cmd.Flags().BoolVar(&compact, "compact", false, "omit the operation labels")
	return cmd
}

func (o *options) verifyCmd() *cobra.Command {
	var (
		problemFile, saveFile       string
		computers, processes, steps int
		seed                        int64
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check incremental against from-scratch scoring on random moves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rng := rand.New(rand.NewSource(seed))

			var p *cloudbalancing.Problem
			if problemFile != "" {
				var err error
				if p, err = cloudbalancing.Load(problemFile); err != nil {
					return err
				}
			} else {
				p = cloudbalancing.Generate(rng, computers, processes)
			}
			if saveFile != "" {
				b, err := p.Marshal()
				if err != nil {
					return err
				}
				if err := os.WriteFile(saveFile, b, 0o644); err != nil {
					return fmt.Errorf("failed to save problem: %w", err)
				}
			}

			d, err := o.newDirector(p, nil, director.AssertIncremental)
			if err != nil {
				return err
			}
			start := time.Now()
			sc, err := cloudbalancing.NewWalker(d, p, rng, o.log.WithName("walker")).Walk(steps)
			if err != nil {
				return err
			}
			o.log.Info("verification passed", "steps", steps, "duration", time.Since(start).String())
			fmt.Fprintln(cmd.OutOrStdout(), sc.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&problemFile, "problem", "", "problem file, a random problem if empty")
	cmd.Flags().StringVar(&saveFile, "save", "", "save the problem before the walk")
	cmd.Flags().IntVar(&computers, "computers", 10, "number of computers of a random problem")
	cmd.Flags().IntVar(&processes, "processes", 40, "number of processes of a random problem")
	cmd.Flags().IntVar(&steps, "steps", 1000, "number of random moves")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.New(version, commitHash, buildDate).String())
		},
	}
}
