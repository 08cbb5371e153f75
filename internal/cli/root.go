// Package cli implements clrprobe, a diagnostic command that runs the
// hosting module's pieces outside the host.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/config"
	"github.com/corrreia/modcoreclr/internal/logging"
)

type globalOptions struct {
	configPath string
	confDir    string
	modDir     string
	logLevel   string
	getenv     func(string) string
}

// Execute runs the root command with os.Args.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithEnv(os.Getenv)
}

func newRootCmdWithEnv(getenv func(string) string) *cobra.Command {
	opts := &globalOptions{getenv: getenv}
	cmd := &cobra.Command{
		Use:           "clrprobe",
		Short:         "Locate, bootstrap and query the .NET hosting runtime the way mod_coreclr does",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fs := cmd.PersistentFlags()
	fs.StringVarP(&opts.configPath, "config", "c", "", "config file (yaml or json); default searches the conf dir")
	fs.StringVar(&opts.confDir, "conf-dir", "", "host configuration directory")
	fs.StringVar(&opts.modDir, "mod-dir", "", "host module directory")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newLocateCmd(opts),
		newBootstrapCmd(opts),
		newQueryCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *globalOptions) dirs() config.Dirs {
	return config.Dirs{Conf: o.confDir, Mod: o.modDir}
}

// loadConfig reads the configuration the way the module does, or from
// --config when given.
func (o *globalOptions) loadConfig() (*config.Config, string, error) {
	if o.configPath == "" {
		return config.Load(o.dirs(), o.getenv)
	}
	cfg, err := config.LoadFile(o.configPath, o.dirs())
	if err != nil {
		return nil, "", err
	}
	cfg.ApplyEnv(o.getenv)
	if err := cfg.Validate(); err != nil {
		return nil, o.configPath, err
	}
	return cfg, o.configPath, nil
}

// logger writes to w at the configured level.
func (o *globalOptions) logger(w io.Writer, cfg *config.Config) (*zap.Logger, error) {
	name := o.logLevel
	if name == "" && cfg != nil {
		name = cfg.Log.Level
	}
	lvl, err := logging.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.NewRouter(w), zap.NewAtomicLevelAt(lvl)), nil
}
