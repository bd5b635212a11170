package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Gurpartap/carecompanion/transcribe"
)

func (a *app) newTranscribeCommand() *cobra.Command {
	var (
		send    bool
		key     string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a voice note, optionally sending it on a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open audio: %w", err)
			}
			defer file.Close()

			if baseURL == "" {
				baseURL = a.cfg.TranscribeURL
			}
			client, err := transcribe.NewClient(baseURL, a.cfg.RequestTimeout)
			if err != nil {
				return err
			}
			text, err := client.Transcribe(cmd.Context(), filepath.Base(args[0]), file)
			if err != nil {
				return err
			}
			if !send {
				return a.println(text)
			}

			rt, err := a.runtimeFor(cmd.Context())
			if err != nil {
				return err
			}
			conv, err := rt.conversation(key)
			if err != nil {
				return err
			}
			reply, err := conv.Send(cmd.Context(), text)
			if err != nil {
				return err
			}
			if err := a.println("you: " + text); err != nil {
				return err
			}
			return a.println("assistant: " + reply.Text)
		},
	}
	cmd.Flags().BoolVar(&send, "send", false, "Send the transcript as a message on the conversation")
	cmd.Flags().StringVar(&key, "conversation", "default", "Conversation key used with --send")
	cmd.Flags().StringVar(&baseURL, "url", "", "Transcription service URL (COMPANION_TRANSCRIBE_URL)")
	return cmd
}
