package cli

import (
	"github.com/spf13/cobra"

	"github.com/Gurpartap/carecompanion/internal/chat"
)

func (a *app) newChatCommand() *cobra.Command {
	var (
		key      string
		markdown bool
		style    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat on a persisted conversation",
		Long: `Open an interactive chat. Free text is sent on the conversation's thread,
which is created on first use and reused across sessions.

Commands:
  /ask <text>  ask without touching the thread
  /new         start a fresh thread
  /thread      show the current thread id
  /help        list commands
  /quit        leave the chat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtimeFor(cmd.Context())
			if err != nil {
				return err
			}
			conv, err := rt.conversation(key)
			if err != nil {
				return err
			}

			renderer := chat.NewRenderer(a.stdout, "")
			if markdown {
				if err := renderer.EnableMarkdown(style, 0); err != nil {
					return err
				}
			}
			if err := renderer.PrintLine("chatting on conversation " + conv.Key() + " (/help for commands)"); err != nil {
				return err
			}
			return chat.NewREPL(a.in, renderer, chat.ConversationHandlers(conv, renderer)).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&key, "conversation", "default", "Conversation key whose thread is reused")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render replies as terminal markdown")
	cmd.Flags().StringVar(&style, "style", "", "Markdown style (dark, light, notty, ...); detected when empty")
	return cmd
}
