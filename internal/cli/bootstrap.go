package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/config"
	"github.com/corrreia/modcoreclr/internal/host"
	"github.com/corrreia/modcoreclr/internal/journal"
	"github.com/corrreia/modcoreclr/internal/module"
)

type bootstrapFlags struct {
	runtime runtimeFlags
	journal string
}

func (f *bootstrapFlags) register(cmd *cobra.Command) {
	f.runtime.register(cmd)
	cmd.Flags().StringVar(&f.journal, "journal", "", "record the attempt in this journal database")
}

// session is one bootstrapped module with an in-process host.
type session struct {
	cfg    *config.Config
	mod    *module.Module
	host   *host.LocalHost
	logger *zap.Logger
}

func (s *session) close() {
	if err := s.mod.Shutdown(); err != nil {
		s.logger.Warn("Shutdown incomplete", zap.Error(err))
	}
}

// startSession loads the module against a LocalHost. Logs go to logw.
func startSession(g *globalOptions, f *bootstrapFlags, logw io.Writer) (*session, error) {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	f.runtime.apply(&cfg.Runtime)
	if f.journal != "" {
		cfg.Journal = config.JournalConfig{Enabled: true, Path: f.journal}
	}

	logger, err := g.logger(logw, cfg)
	if err != nil {
		return nil, err
	}

	var j *journal.Journal
	if cfg.Journal.Enabled {
		if j, err = journal.Open(cfg.Journal.Path, logger.Named("journal")); err != nil {
			return nil, err
		}
	}

	h := host.NewLocalHost(logger.Named("host"))
	m := module.New(module.Options{Config: cfg, Registrar: h, Journal: j, Logger: logger})
	s := &session{cfg: cfg, mod: m, host: h, logger: logger}
	if err := m.Load(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func newBootstrapCmd(g *globalOptions) *cobra.Command {
	var f bootstrapFlags
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Start the runtime, call the loader and show what it registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := startSession(g, &f, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()

			st := s.mod.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state:     %s\n", st.State)
			fmt.Fprintf(out, "hostfxr:   %s\n", st.Hostfxr)
			fmt.Fprintf(out, "callbacks: %s\n", st.Callbacks)
			if c, ok := s.host.Command(s.cfg.Host.CommandName); ok {
				fmt.Fprintf(out, "api:       %s %s (%s)\n", c.Name, c.Usage, c.Description)
			}
			if a, ok := s.host.Application(s.cfg.Host.ApplicationName); ok {
				fmt.Fprintf(out, "app:       %s %s (%s)\n", a.Name, a.Usage, a.Short)
			}
			if bound := s.host.Bound(); bound != 0 {
				fmt.Fprintf(out, "xml:       %s\n", bound)
			}
			if st.RunID != "" {
				fmt.Fprintf(out, "run:       %s\n", st.RunID)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
