package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Gurpartap/carecompanion/session"
)

func (a *app) newSendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send <thread-id> <text...>",
		Short: "Send a message on a thread and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtimeFor(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := rt.client.SendMessage(cmd.Context(), session.ThreadID(args[0]), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return a.println(reply)
		},
	}
}

func (a *app) newAskCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <text...>",
		Short: "Ask a one-off question without any thread history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtimeFor(cmd.Context())
			if err != nil {
				return err
			}
			reply, err := rt.client.SendStatelessMessage(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return a.println(reply)
		},
	}
}
