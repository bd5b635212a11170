package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gurpartap/carecompanion/session"
)

func (a *app) newThreadCommand() *cobra.Command {
	threadCmd := &cobra.Command{
		Use:   "thread",
		Short: "Manage agent threads",
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create a thread and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtimeFor(cmd.Context())
			if err != nil {
				return err
			}
			threadID, err := rt.client.CreateThread(cmd.Context())
			if err != nil {
				return err
			}
			return a.println(threadID)
		},
	}

	var format string
	stateCmd := &cobra.Command{
		Use:   "state <thread-id>",
		Short: "Show the transcript held by a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtimeFor(cmd.Context())
			if err != nil {
				return err
			}
			state, err := rt.transport.ThreadState(cmd.Context(), session.ThreadID(args[0]))
			if err != nil {
				return err
			}
			return writeFormatted(a.stdout, format, newThreadStateView(state))
		},
	}
	stateCmd.Flags().StringVar(&format, "format", "json", "Output format: json, yaml")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations and the threads backing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtimeFor(cmd.Context())
			if err != nil {
				return err
			}
			store, err := rt.threadStore()
			if err != nil {
				return err
			}
			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return a.println("no conversations yet")
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CONVERSATION\tTHREAD\tUPDATED")
			for _, record := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", record.Key, record.ThreadID, record.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	threadCmd.AddCommand(newCmd, stateCmd, listCmd)
	return threadCmd
}
