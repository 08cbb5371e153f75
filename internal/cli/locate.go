package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corrreia/modcoreclr/internal/config"
	"github.com/corrreia/modcoreclr/internal/module"
)

type runtimeFlags struct {
	hostfxr    string
	nethost    string
	noNethost  bool
	dotnetRoot string
	noProbe    bool
}

func (f *runtimeFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.hostfxr, "hostfxr", "", "explicit hostfxr library path")
	fs.StringVar(&f.nethost, "nethost", "", "nethost library used to ask for the hostfxr path")
	fs.BoolVar(&f.noNethost, "no-nethost", false, "do not ask nethost for the hostfxr path")
	fs.StringVar(&f.dotnetRoot, "dotnet-root", "", "dotnet root directory")
	fs.BoolVar(&f.noProbe, "no-probe", false, "do not probe well-known install locations")
}

func (f *runtimeFlags) apply(rc *config.RuntimeConfig) {
	if f.hostfxr != "" {
		rc.HostfxrPath = f.hostfxr
	}
	if f.nethost != "" {
		rc.NethostPath = f.nethost
	}
	if f.noNethost {
		rc.NethostPath = ""
	}
	if f.dotnetRoot != "" {
		rc.DotnetRoot = f.dotnetRoot
	}
	if f.noProbe {
		rc.Probe = false
	}
}

func newLocateCmd(g *globalOptions) *cobra.Command {
	var rf runtimeFlags
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Print the hostfxr library the module would load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			rf.apply(&cfg.Runtime)

			path, err := module.Locator(cfg.Runtime, cfg.Loader.AssemblyPath).Locate()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
	rf.register(cmd)
	return cmd
}
