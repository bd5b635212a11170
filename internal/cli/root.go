package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gurpartap/carecompanion/internal/config"
	"github.com/Gurpartap/carecompanion/internal/logging"
)

var version = "0.1.0"

type globalOptions struct {
	envFile      string
	agentURL     string
	apiKey       string
	assistantID  string
	timeout      time.Duration
	requireReply bool
	threadDB     string
	logLevel     string
	logFormat    string
}

// app carries the state shared by every command of one invocation.
type app struct {
	in     io.Reader
	stdout io.Writer
	stderr io.Writer

	opts    globalOptions
	cfg     config.Config
	logger  *slog.Logger
	runtime *runtime
}

// Execute runs the companion CLI with args.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	a := &app{in: stdin, stdout: stdout, stderr: stderr}
	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.runtime != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if closeErr := a.runtime.Close(closeCtx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "companion",
		Short: "Talk to a care companion agent",
		Long: `companion is a client for a remote conversational agent service.

It keeps per-conversation threads so the agent remembers earlier turns,
sends one-off stateless questions, and transcribes voice notes.

Examples:
  companion thread new
  companion send <thread-id> "My name is Marisol"
  companion ask "What is a healthy resting heart rate?"
  companion chat --conversation family
  companion serve`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.configure,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.envFile, "env-file", ".env", "Load environment variables from this file when it exists")
	flags.StringVar(&a.opts.agentURL, "agent-url", "", "Agent service base URL (COMPANION_AGENT_URL)")
	flags.StringVar(&a.opts.apiKey, "api-key", "", "Agent service API key (COMPANION_API_KEY)")
	flags.StringVar(&a.opts.assistantID, "assistant", "", "Assistant to run (COMPANION_ASSISTANT_ID)")
	flags.DurationVar(&a.opts.timeout, "timeout", 0, "Per-request timeout (COMPANION_REQUEST_TIMEOUT)")
	flags.BoolVar(&a.opts.requireReply, "require-reply", false, "Fail turns that produce no assistant message (COMPANION_REQUIRE_REPLY)")
	flags.StringVar(&a.opts.threadDB, "thread-db", "", "SQLite file holding conversation threads (COMPANION_THREAD_DB)")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (COMPANION_LOG_LEVEL)")
	flags.StringVar(&a.opts.logFormat, "log-format", "", "Log format: text, json (COMPANION_LOG_FORMAT)")

	root.AddCommand(
		a.newThreadCommand(),
		a.newSendCommand(),
		a.newAskCommand(),
		a.newChatCommand(),
		a.newAssistantsCommand(),
		a.newTranscribeCommand(),
		a.newServeCommand(),
	)
	return root
}

// configure loads configuration from the environment and applies flags
// given on the command line on top.
func (a *app) configure(cmd *cobra.Command, _ []string) error {
	envFiles := []string{}
	if strings.TrimSpace(a.opts.envFile) != "" {
		envFiles = append(envFiles, a.opts.envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	changed := func(name string) bool {
		flag := cmd.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}
	if changed("agent-url") {
		cfg.AgentURL = strings.TrimSpace(a.opts.agentURL)
	}
	if changed("api-key") {
		cfg.APIKey = strings.TrimSpace(a.opts.apiKey)
	}
	if changed("assistant") {
		cfg.AssistantID = strings.TrimSpace(a.opts.assistantID)
	}
	if changed("timeout") {
		cfg.RequestTimeout = a.opts.timeout
	}
	if changed("require-reply") {
		cfg.RequireReply = a.opts.requireReply
	}
	if changed("thread-db") {
		cfg.ThreadDB = strings.TrimSpace(a.opts.threadDB)
	}
	if changed("log-level") {
		level, err := config.ParseLogLevel(a.opts.logLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if changed("log-format") {
		format, err := config.ParseLogFormat(a.opts.logFormat)
		if err != nil {
			return err
		}
		cfg.LogFormat = format
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(a.stderr, cfg.LogLevel, cfg.LogFormat, !isTerminal(a.stderr))
	return nil
}

// runtimeFor builds the agent stack on first use.
func (a *app) runtimeFor(ctx context.Context) (*runtime, error) {
	if a.runtime != nil {
		return a.runtime, nil
	}
	rt, err := newRuntime(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.runtime = rt
	return rt, nil
}

func (a *app) println(args ...any) error {
	_, err := fmt.Fprintln(a.stdout, args...)
	return err
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
