package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coachpo/conduit/internal/infra/config"
)

var validateCmd = &cobra.Command{
	Use: "validate",
	Short: "Parse and validate the graph configuration without building components",
	RunE: func(cmd *cobra.Command, args []string) error {
		graph, err := loadGraph(configPath)
		if err != nil {
			return err
		}
		if err := graph.Validate(); err != nil {
			return fmt.Errorf("validate %s: %w", configPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d sources, %d transforms, %d sinks)\n",
			configPath, len(graph.Sources), len(graph.Transforms), len(graph.Sinks))
		return nil
	},
}

func loadGraph(path string) (*config.Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	graph, err := config.ParseYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return graph, nil
}
