package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minhyannv/toolcall/pkg/agent"
	configpkg "github.com/minhyannv/toolcall/pkg/config"
	loggerpkg "github.com/minhyannv/toolcall/pkg/logger"
	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/minhyannv/toolcall/pkg/render"
	"github.com/minhyannv/toolcall/pkg/tools"
	"github.com/minhyannv/toolcall/pkg/toolset"
	"github.com/spf13/cobra"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitCancelled = 130

	defaultBackend = "https://api.openai.com/v1/"
	waitMessage    = "Waiting for response from the AI API server..."
	clearLine      = "\r\x1b[K"
)

var errNoPermissions = errors.New("permissions must name at least one class: r(ead) w(rite) x(execute) n(etwork)")

type cliFlags struct {
	verbose     bool
	chat        bool
	raw         bool
	maxTurns    int
	toolsets    toolsetFlag
	permissions string
	allowedDir  string
	configPath  string
	logFile     string
}

// execute runs the command line and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, env cliEnv) int {
	if env.getenv == nil {
		env.getenv = func(string) string { return "" }
	}
	if env.stdout == nil {
		env.stdout = io.Discard
	}
	if env.stderr == nil {
		env.stderr = io.Discard
	}

	root := newRootCmd(env)
	root.SetArgs(args)
	return exitCode(root.ExecuteContext(ctx), env.stderr)
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		_, _ = fmt.Fprintln(stderr, "Operation cancelled by user.")
		return exitCancelled
	default:
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
}

func newRootCmd(env cliEnv) *cobra.Command {
	defaults := configpkg.DefaultConfig()
	f := &cliFlags{}

	root := &cobra.Command{
		Use:           "toolcall [prompt]",
		Short:         "Send a prompt to an OpenAI-compatible model that can call local tools",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, f, args, env)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(env.stdin)
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	pf := root.PersistentFlags()
	pf.BoolVarP(&f.verbose, "verbose", "v", defaults.Verbose, "Verbose logging, model banner and token usage on stderr")
	pf.IntVar(&f.maxTurns, "max-turns", defaults.MaxTurns, "Max request rounds per prompt")
	pf.Var(&f.toolsets, "toolset", "Toolset to enable (files, system). Repeat the flag for several; default files")
	pf.StringVar(&f.permissions, "permissions", defaults.Permissions, "Permission classes tools may use: r(ead) w(rite) x(execute) n(etwork)")
	pf.StringVar(&f.allowedDir, "allowed-dir", defaults.AllowedDir, "Base directory for file operations (set empty to disable restriction)")
	pf.StringVar(&f.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&f.logFile, "log-file", "", "Write logs to a rotating file instead of stderr")

	root.Flags().BoolVar(&f.chat, "chat", false, "Interactive chat session that keeps history")
	root.Flags().BoolVar(&f.raw, "raw", false, "Print the answer without markdown rendering")

	root.AddCommand(newToolsCmd(f, env))
	return root
}

// resolveConfig layers defaults, the config file, explicit flags and the
// environment, in that order.
func resolveConfig(cmd *cobra.Command, f *cliFlags, env cliEnv) (configpkg.Config, error) {
	cfg := configpkg.DefaultConfig()
	if f.configPath != "" {
		loaded, err := configpkg.LoadFile(cfg, f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if flags.Changed("max-turns") {
		if f.maxTurns <= 0 {
			return cfg, fmt.Errorf("--max-turns must be positive, got %d", f.maxTurns)
		}
		cfg.MaxTurns = f.maxTurns
	}
	if flags.Changed("toolset") {
		cfg.Toolsets = f.toolsets.values()
	}
	if flags.Changed("permissions") {
		cfg.Permissions = f.permissions
	}
	if flags.Changed("allowed-dir") {
		cfg.AllowedDir = f.allowedDir
	}
	if flags.Changed("log-file") {
		cfg.LogFile = f.logFile
	}

	cfg = configpkg.FromEnv(cfg, env.getenv)
	cfg = configpkg.Normalize(cfg)
	if cfg.Permissions == "" {
		return cfg, errNoPermissions
	}
	return cfg, nil
}

func newLogger(cfg configpkg.Config, env cliEnv) (loggerpkg.Logger, func()) {
	if cfg.LogFile != "" {
		l, closer := loggerpkg.NewFileLogger(cfg.LogFile, loggerpkg.FileOptions{})
		return l, func() { _ = closer.Close() }
	}
	return loggerpkg.NewWriterLogger(env.stderr), func() {}
}

func buildRegistry(cfg configpkg.Config, logger loggerpkg.Logger, env cliEnv) (*tools.Registry, error) {
	var allowedDirs []string
	if cfg.AllowedDir != "" {
		allowedDirs = []string{cfg.AllowedDir}
	}
	loggerpkg.Debug(cfg.Verbose, logger, "building tool registry", map[string]any{
		"toolsets":     cfg.Toolsets,
		"permissions":  cfg.Permissions,
		"allowed_dirs": allowedDirs,
	})
	return toolset.Build(cfg.Toolsets,
		tools.Context{
			MaxReadBytes: tools.DefaultMaxReadBytes,
			Verbose:      cfg.Verbose,
			AllowedDirs:  allowedDirs,
			Logger:       logger,
		},
		tools.Options{
			Allowed:  cfg.Permissions,
			Progress: progress.New(env.stderr),
			Logger:   logger,
			Verbose:  cfg.Verbose,
		},
	)
}

func runRoot(cmd *cobra.Command, f *cliFlags, args []string, env cliEnv) error {
	ctx := cmd.Context()
	cfg, err := resolveConfig(cmd, f, env)
	if err != nil {
		return err
	}
	if err := configpkg.Validate(cfg); err != nil {
		return err
	}

	logger, closeLog := newLogger(cfg, env)
	defer closeLog()

	registry, err := buildRegistry(cfg, logger, env)
	if err != nil {
		return err
	}

	opts := []agent.AgentOption{agent.WithLogger(logger)}
	if cfg.Verbose {
		opts = append(opts, agent.WithAssistantTextHook(func(text string) {
			_, _ = fmt.Fprintf(env.stderr, "%s\n", text)
		}))
	}
	if env.stderrTTY {
		opts = append(opts, agent.WithRequestHook(waitIndicator(progress.New(env.stderr))))
	}
	loop, err := agent.New(cfg, registry, opts...)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		_, _ = fmt.Fprintf(env.stderr, "Model: %s | Backend: %s\n", cfg.Model, backendURL(cfg.BaseURL))
	}

	printer := render.New(env.stdout, !f.raw && env.stdoutTTY, logger)
	if f.chat {
		session := &chatSession{
			ctx:     ctx,
			loop:    loop,
			printer: printer,
			stderr:  env.stderr,
			verbose: cfg.Verbose,
		}
		if env.stdinTTY {
			return session.runPrompt()
		}
		return session.runScanner(env.stdin)
	}

	text, err := readPrompt(ctx, args, env)
	if err != nil {
		return err
	}
	res, err := loop.Run(ctx, text)
	if err != nil {
		return err
	}
	if err := printer.Print(res.Content); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if cfg.Verbose {
		printUsage(env.stderr, res)
	}
	return nil
}

// waitIndicator shows waitMessage while a completion request is in flight
// and erases it when the response arrives.
func waitIndicator(report *progress.Reporter) func() func() {
	return func() func() {
		report.Progress(waitMessage, "")
		return func() { report.Progress(clearLine, "") }
	}
}

func backendURL(baseURL string) string {
	if baseURL == "" {
		return defaultBackend
	}
	return baseURL
}

func printUsage(w io.Writer, res agent.Result) {
	_, _ = fmt.Fprintf(w, "Total tokens: %d | Messages: #%d\n", res.Usage.TotalTokens, res.Messages)
}
