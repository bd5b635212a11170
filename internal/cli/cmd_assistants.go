package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Gurpartap/carecompanion/transport/langgraph"
)

func (a *app) newAssistantsCommand() *cobra.Command {
	var (
		graphID string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "assistants",
		Short: "List the assistants the agent service exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtimeFor(cmd.Context())
			if err != nil {
				return err
			}
			assistants, err := rt.agent.SearchAssistants(cmd.Context(), langgraph.SearchAssistantsRequest{GraphID: graphID})
			if err != nil {
				return err
			}
			if format != "table" {
				return writeFormatted(a.stdout, format, assistants)
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ASSISTANT\tGRAPH\tNAME")
			for _, assistant := range assistants {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", assistant.AssistantID, assistant.GraphID, assistant.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&graphID, "graph", "", "Only list assistants of this graph")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	return cmd
}
