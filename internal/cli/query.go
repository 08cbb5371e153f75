package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corrreia/modcoreclr/internal/host"
	"github.com/corrreia/modcoreclr/internal/xmlbridge"
)

func newQueryCmd(g *globalOptions) *cobra.Command {
	var f bootstrapFlags
	var req host.SearchRequest
	var indent int
	cmd := &cobra.Command{
		Use:   "query <section>",
		Short: "Bootstrap and ask the managed config callback for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Section = args[0]
			if _, err := host.ParseSection(req.Section); err != nil {
				return err
			}

			s, err := startSession(g, &f, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()

			doc, err := s.host.Search(req)
			switch {
			case errors.Is(err, xmlbridge.ErrNoDocument):
				fmt.Fprintln(cmd.ErrOrStderr(), "no document")
				return nil
			case err != nil:
				return err
			}

			doc.Indent(indent)
			_, err = doc.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	f.register(cmd)
	fs := cmd.Flags()
	fs.StringVar(&req.Tag, "tag", "", "tag name")
	fs.StringVar(&req.Key, "key", "", "key name")
	fs.StringVar(&req.Value, "value", "", "key value")
	fs.IntVar(&indent, "indent", 2, "spaces per indent level in the output")
	return cmd
}
