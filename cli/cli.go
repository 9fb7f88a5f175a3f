// Package cli implements the refpin command line.
//
// MakeRefpinCLI creates the cobra command tree
//   (for each subcommand there is a refpinCommand)
//   creating a cobra command involves:
//     calling refpinCommand.register(), which creates the cobra command and
//       registers any flags specific to that subcommand
//     wrapping refpinCommand.run() in RunE so it receives the shared root
//       flags along with the cobra command and the remaining args
//
// main.go calls MakeRefpinCLI().Execute() and maps the returned error to a
// process exit code, so run() implementations return *errors.ExitCodeError
// whenever the code matters. Cobra's own usage/error printing is silenced,
// main owns all error output.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twitter/refpin/common"
	"github.com/twitter/refpin/common/errors"
	"github.com/twitter/refpin/common/stats"
	"github.com/twitter/refpin/config"
	"github.com/twitter/refpin/snapshot/git/repo"
	"github.com/twitter/refpin/snapshot/store"
	"github.com/twitter/refpin/snapshot/syncer"
)

// rootFlags are persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	root       string
	timeout    time.Duration
	logLevel   string
}

type refpinCommand interface {
	register() *cobra.Command
	run(flags *rootFlags, cmd *cobra.Command, args []string) error
}

func MakeRefpinCLI() *cobra.Command {
	flags := &rootFlags{}
	rootCobraCmd := &cobra.Command{
		Use:           "refpin",
		Short:         "refpin pins repository refs as commit snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, err := log.ParseLevel(flags.logLevel)
			if err != nil {
				return errors.NewError(err, errors.SetupFailureExitCode)
			}
			log.SetLevel(level)
			return nil
		},
	}
	rootCobraCmd.PersistentFlags().StringVar(&flags.configPath, "config",
		config.DefaultConfigFile, "Path to TOML config listing tracked repositories")
	rootCobraCmd.PersistentFlags().StringVar(&flags.root, "root",
		".", "Root output directory to store snapshots")
	rootCobraCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout",
		common.DefaultFetchTimeout, "Per-repository network timeout")
	rootCobraCmd.PersistentFlags().StringVar(&flags.logLevel, "log_level",
		"info", "Log everything at this level and above (error|info|debug)")

	add := func(subCmd refpinCommand, parentCobraCmd *cobra.Command) {
		cmd := subCmd.register()
		cmd.RunE = func(innerCmd *cobra.Command, args []string) error {
			return subCmd.run(flags, innerCmd, args)
		}
		parentCobraCmd.AddCommand(cmd)
	}

	add(&syncCommand{}, rootCobraCmd)
	add(&listCommand{}, rootCobraCmd)

	return rootCobraCmd
}

type syncCommand struct{}

func (c *syncCommand) register() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "snapshot every config entry's ref into the archive",
	}
}

func (c *syncCommand) run(flags *rootFlags, _ *cobra.Command, _ []string) error {
	if err := repo.CheckInstalled(); err != nil {
		log.Error("git CLI not found in PATH. Please install git.")
		return errors.NewError(err, errors.SetupFailureExitCode)
	}

	if _, err := os.Stat(flags.configPath); err != nil {
		log.Errorf("Config file not found: %s", flags.configPath)
		return errors.NewError(fmt.Errorf("config file not found: %s", flags.configPath),
			errors.SetupFailureExitCode)
	}
	if ext := strings.ToLower(filepath.Ext(flags.configPath)); ext != ".toml" {
		log.Errorf("Unsupported config extension: %s (expected .toml)", ext)
		return errors.NewError(fmt.Errorf("unsupported config extension: %s", ext),
			errors.SetupFailureExitCode)
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		log.Errorf("Failed to read config: %v", err)
		return errors.NewError(err, errors.SetupFailureExitCode)
	}
	if len(cfg.Repositories) == 0 {
		log.Warnf("No repository entries found in config: %s", flags.configPath)
		return nil
	}

	stat := stats.DefaultStatsReceiver()
	result, err := syncer.MakeRunner(flags.root, flags.timeout, stat).Run(cfg.Repositories)
	if err != nil {
		return errors.NewError(err, errors.SetupFailureExitCode)
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("Run %s stats: %s", result.RunID, stat.Render(false))
	}
	if !result.Ok() {
		return errors.NewError(
			fmt.Errorf("%d of %d entries failed", result.Failed, len(result.Outcomes)),
			errors.SyncFailureExitCode)
	}
	return nil
}

type listCommand struct{}

func (c *listCommand) register() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list commit snapshots captured under the archive root",
	}
}

// run walks <root>/<category>/<name> and prints a "category/name<TAB>sha"
// line per captured commit. An absent root just means nothing is captured.
func (c *listCommand) run(flags *rootFlags, cmd *cobra.Command, _ []string) error {
	categories, err := os.ReadDir(flags.root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewError(err, errors.SetupFailureExitCode)
	}
	for _, category := range categories {
		if !category.IsDir() || strings.HasPrefix(category.Name(), ".") {
			continue
		}
		names, err := os.ReadDir(filepath.Join(flags.root, category.Name()))
		if err != nil {
			return errors.NewError(err, errors.SetupFailureExitCode)
		}
		for _, name := range names {
			if !name.IsDir() || strings.HasPrefix(name.Name(), ".") {
				continue
			}
			for _, sha := range store.ScanMarkers(filepath.Join(flags.root, category.Name(), name.Name())) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\t%s\n", category.Name(), name.Name(), sha)
			}
		}
	}
	return nil
}
