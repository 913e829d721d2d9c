package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quasiyoke/rammingen/internal/config"
	"github.com/quasiyoke/rammingen/internal/progress"
	"github.com/quasiyoke/rammingen/internal/syncengine"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagToken      string
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// CLIContext bundles everything a subcommand's RunE needs: the resolved
// config, a wired sync engine Ctx, and the progress collaborator that
// Ctx.Progress also points at (kept here too so commands can print a
// run summary after the engine call returns).
type CLIContext struct {
	Cfg      *config.Config
	Engine   *syncengine.Engine
	Progress *progress.Collaborator
	Logger   *slog.Logger
}

// Close prints the progress collaborator's summary line. Deferred from
// each command's RunE. It does not close the shadow index's database
// handle.
func (cc *CLIContext) Close() {
	cc.Progress.Close()
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext extracts the CLIContext or panics. Every rammingen
// command needs config, so PersistentPreRunE always populates
// it before RunE runs.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — loadConfig should have run in PersistentPreRunE")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with
// all subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rammingen",
		Short:   "Encrypted, content-addressed multi-client backup sync",
		Long:    "rammingen synchronizes local directories against an encrypted, content-addressed archive shared across clients.",
		Version: version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token, overriding the config file and RAMMINGEN_TOKEN")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show info-level logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "show debug-level logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only show errors")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newLocalStatusCmd())
	cmd.AddCommand(newMoveCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newReloadCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the three-layer
// override chain, wires a syncengine.Ctx from it, and stores both in the
// command's context for subcommands to pick up.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	cli := config.CLIOverrides{ConfigPath: flagConfigPath, Token: flagToken}
	env := config.ReadEnvOverrides()

	logger.Debug("resolving config", "config_path", cli.ConfigPath, "env_config", env.ConfigPath)

	cfg, err := config.Resolve(env, cli, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	finalLogger := buildLogger(cfg)

	out := os.Stderr
	prog := progress.New(out)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	engineCtx, err := config.BuildCtx(ctx, cfg, finalLogger, prog)
	if err != nil {
		return fmt.Errorf("building sync engine: %w", err)
	}

	cc := &CLIContext{
		Cfg:      cfg,
		Engine:   syncengine.New(engineCtx),
		Progress: prog,
		Logger:   finalLogger,
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config
// and CLI flags. Pass nil for pre-config bootstrap. Config-file log
// level provides the baseline; --verbose/--debug/--quiet override it
// because CLI flags always win (enforced mutually exclusive by Cobra).
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits
// with the code mapped from the error's Kind.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(syncengine.Classify(err).ExitCode())
}
