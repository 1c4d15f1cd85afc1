package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coachpo/conduit/internal/app/topology"
	"github.com/coachpo/conduit/internal/app/unittest"
	"github.com/coachpo/conduit/internal/domain/component"
)

var testHealthcheckTimeout time.Duration

var testCmd = &cobra.Command{
	Use: "test",
	Short: "Run the graph's embedded unit-test blocks and probe every sink's connectivity without starting the run loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := loadGraph(configPath)
		if err != nil {
			return err
		}
		if err := graph.Validate(); err != nil {
			return fmt.Errorf("validate %s: %w", configPath, err)
		}

		reg := buildRegistry()

		results, err := unittest.Run(graph, reg)
		if err != nil {
			return fmt.Errorf("%s: %w", configPath, err)
		}
		failed := 0
		for _, r := range results {
			if r.Passed() {
				fmt.Fprintf(cmd.OutOrStdout(), "test %s ... passed\n", r.Name)
				continue
			}
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "test %s ... failed\n", r.Name)
			for _, f := range r.Failures {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", f)
			}
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no tests found")
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d test(s) failed", failed, len(results))
		}

		topo, err := topology.Build(graph, reg, component.NopObserver{})
		if err != nil {
			return fmt.Errorf("build %s: %w", configPath, err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), testHealthcheckTimeout)
		defer cancel()
		if err := topo.Healthcheck(ctx, testHealthcheckTimeout); err != nil {
			return fmt.Errorf("sink healthcheck: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: built %d node(s), all sinks healthy\n", configPath, len(topo.NodeNames()))
		return nil
	},
}

func init() {
	testCmd.Flags().DurationVar(&testHealthcheckTimeout, "healthcheck-timeout", 30*time.Second, "bound on each sink's Healthcheck call")
}
