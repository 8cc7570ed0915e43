package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// NewChainCommand creates the chain command.
func NewChainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chain",
		Short: "Show the chain kept by the node at --node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			to, c, err := opts.target()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			view, err := c.Chain(ctx, to)
			if err != nil {
				return err
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Print(view, func(w io.Writer) { writeChain(w, view) })
		},
	}
}
