package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/corrreia/modcoreclr/internal/journal"
)

type historyOptions struct {
	path  string
	limit int
	plain bool
	now   func() time.Time
}

func newHistoryCmd(g *globalOptions) *cobra.Command {
	opts := &historyOptions{now: time.Now}
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded bootstrap attempts, or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.path
			if path == "" {
				cfg, _, err := g.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Journal.Path
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("journal %s: %w", path, err)
			}

			j, err := journal.Open(path, nil)
			if err != nil {
				return err
			}
			defer j.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				r, err := j.Run(args[0])
				if err != nil {
					return err
				}
				return writeRun(out, r, opts.now())
			}

			runs, err := j.Recent(opts.limit)
			if err != nil {
				return err
			}
			if opts.plain || !isTerminal(out) {
				return writeRunsTSV(out, runs)
			}
			return writeRunsTable(out, runs, opts.now())
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.path, "journal", "", "journal database (default: journal.path from the config)")
	fs.IntVarP(&opts.limit, "limit", "n", 20, "number of runs to list")
	fs.BoolVar(&opts.plain, "plain", false, "tab separated output even on a terminal")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func shortID(r journal.Run) string {
	return r.ID.String()[:8]
}

func outcome(r journal.Run) string {
	if r.Status == journal.StatusFailed && r.FailedStage != "" {
		return r.Status + " at " + r.FailedStage
	}
	return r.Status
}

func writeRunsTable(w io.Writer, runs []journal.Run, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tTOOK\tOUTCOME\tHOSTFXR")
	for _, r := range runs {
		took := "-"
		if d := r.Duration(); d > 0 {
			took = d.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(r), humanize.RelTime(r.StartedAt, now, "ago", "from now"), took, outcome(r), r.HostfxrPath)
	}
	return tw.Flush()
}

func writeRunsTSV(w io.Writer, runs []journal.Run) error {
	for _, r := range runs {
		_, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Duration().Milliseconds(), r.Status, r.FailedStage, r.HostfxrPath)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeRun(w io.Writer, r journal.Run, now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "run:       %s\n", r.ID)
	fmt.Fprintf(&b, "started:   %s (%s)\n", r.StartedAt.Format(time.RFC3339), humanize.RelTime(r.StartedAt, now, "ago", "from now"))
	fmt.Fprintf(&b, "outcome:   %s\n", outcome(r))
	fmt.Fprintf(&b, "assembly:  %s\n", r.AssemblyPath)
	fmt.Fprintf(&b, "config:    %s\n", r.RuntimeConfigPath)
	if r.HostfxrPath != "" {
		fmt.Fprintf(&b, "hostfxr:   %s\n", r.HostfxrPath)
	}
	if r.StatusCode != 0 {
		fmt.Fprintf(&b, "status:    0x%08x\n", r.StatusCode)
	}
	if r.Callbacks != "" {
		fmt.Fprintf(&b, "callbacks: %s\n", r.Callbacks)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "error:     %s\n", r.Error)
	}
	if len(r.Stages) > 0 {
		b.WriteString("stages:\n")
		for _, s := range r.Stages {
			line := fmt.Sprintf("  %-10s %s", s.Stage, humanizeDuration(s.Duration))
			if s.Error != "" {
				line += "  " + s.Error
			}
			b.WriteString(line + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// humanizeDuration prints a stage timing in the largest unit below it, with
// at most two decimals.
func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return humanize.FtoaWithDigits(float64(d)/float64(time.Microsecond), 2) + "µs"
	case d < time.Second:
		return humanize.FtoaWithDigits(float64(d)/float64(time.Millisecond), 2) + "ms"
	default:
		return humanize.FtoaWithDigits(d.Seconds(), 2) + "s"
	}
}
