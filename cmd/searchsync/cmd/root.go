// Package cmd provides the CLI commands for searchsync.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/internal/profiling"
	"github.com/Aman-CERP/searchsync/pkg/version"
)

// consoleLogs marks commands that also log to stderr. Other commands log
// to the file only, keeping their stdout and stderr for results.
const consoleLogs = "console-logs"

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     *profiling.Session
)

// Global flags
var (
	projectDir     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the searchsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchsync",
		Short: "Keep a full-text index in sync with changing records",
		Long: `searchsync buffers record saves per type and writes them to a local
full-text index in batches: when a type's buffer reaches its size, or when
no save for that type has arrived within the idle timeout.

Records are JSON files laid out as <root>/<type>/<id>.json. 'watch' follows
such a tree; 'replay' applies a mutation log.`,
		Version:       version.Short(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetVersionTemplate("searchsync version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding .searchsync.yaml and the index")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to .searchsync/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newReplayCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), serrors.FormatForCLI(err, debugMode))
	}
	return err
}

func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	if err := setupLogging(cmd); err != nil {
		return err
	}

	targets := profiling.Targets{CPU: profileCPU, Heap: profileMem, Trace: profileTrace}
	if targets.Enabled() {
		s, err := profiling.Start(targets)
		if err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
		profiler = s
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := profiler.Stop()
	profiler = nil

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// setupLogging installs the default logger. A broken config falls back
// to defaults here: the command itself reports the config error.
func setupLogging(cmd *cobra.Command) error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		cfg = config.NewConfig()
	}

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  config.Resolve(projectDir, cfg.Logging.File),
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
		Console:   cmd.Annotations[consoleLogs] == "true",
		Stderr:    cmd.ErrOrStderr(),
	}
	if debugMode {
		logCfg.Level = "debug"
		if logCfg.FilePath == "" {
			logCfg.FilePath = logging.DefaultLogPath(filepath.Join(projectDir, config.DataDir))
		}
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if debugMode {
		slog.Debug("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Short()),
			slog.Int("pid", os.Getpid()))
	}
	return nil
}

// loadConfig loads the configuration of the project directory.
func loadConfig() (*config.Config, error) {
	return config.Load(projectDir)
}
