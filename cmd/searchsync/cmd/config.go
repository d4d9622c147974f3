package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchsync/internal/config"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/output"
)

const projectConfigName = ".searchsync.yaml"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage searchsync configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/searchsync/config.yaml)
  3. Project config (.searchsync.yaml)
  4. Environment variables (SEARCHSYNC_*)`,
		Example: `  # Write .searchsync.yaml with the defaults
  searchsync config init

  # Show effective configuration
  searchsync config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with the defaults",
		Long: `Create .searchsync.yaml in the project directory, or the user
configuration file with --user. An existing file is kept unless --force is
set, in which case it is backed up first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(projectDir, projectConfigName)
			if user {
				path = config.GetUserConfigPath()
			}
			return runConfigInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file after backing it up")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user configuration instead of the project one")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil && !force {
		out.Warningf("Configuration already exists")
		out.Status("📁", "Location: "+path)
		out.Status("💡", "Use --force to replace it with the defaults (a backup is kept)")
		return nil
	}

	backupPath, err := config.Backup(path)
	if err != nil {
		return serrors.IOError("failed to back up configuration", err)
	}

	if err := config.NewConfig().WriteYAML(path); err != nil {
		return serrors.New(serrors.ErrCodeConfigPermission, "failed to write configuration", err)
	}

	out.Successf("Wrote %s", path)
	if backupPath != "" {
		out.Status("💾", "Backup: "+backupPath)
	}
	out.Status("📋", "Next: list the record types to index under 'types'")
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration after merging defaults, user and project files and environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			project := config.ProjectConfigPath(projectDir)
			if project == "" {
				project = filepath.Join(projectDir, projectConfigName) + " (not found)"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\nproject: %s\n", config.GetUserConfigPath(), project)
			return nil
		},
	}
}
