package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/fake"

	"github.com/smallnest/fabflow/fab"
	"github.com/smallnest/fabflow/graph"
	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/store/memory"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the inspection workflow as a Mermaid diagram",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := fab.NewService(fake.NewFakeLLM(fakeResponses), memory.NewMemoryCheckpointStore(),
			fab.WithLogger(&log.NoOpLogger{}))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.NewExporter(svc.Graph()).DrawMermaid())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
