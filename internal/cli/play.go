package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewPlayCommand creates the play command.
func NewPlayCommand(opts *RootOptions) *cobra.Command {
	var file, contentType string

	cmd := &cobra.Command{
		Use:   "play [message]",
		Short: "Send a message around the chain of the origin at --node",
		Long: `Send a message around the chain of the origin at --node and print the
result. The message is taken from the argument, from --file, or from stdin
when neither is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, c, err := opts.target()
			if err != nil {
				return err
			}

			body, err := readMessage(cmd, args, file)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			play, err := c.Play(ctx, to, body, contentType)
			if err != nil {
				return err
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Print(play, func(w io.Writer) { writePlay(w, play) })
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the message from a file")
	cmd.Flags().StringVarP(&contentType, "content-type", "t", "text/plain", "content type of the message")

	return cmd
}

func readMessage(cmd *cobra.Command, args []string, file string) ([]byte, error) {
	switch {
	case len(args) == 1 && file != "":
		return nil, errors.New("give the message as an argument or with --file, not both")
	case len(args) == 1:
		return []byte(args[0]), nil
	case file != "":
		return os.ReadFile(file)
	default:
		return io.ReadAll(cmd.InOrStdin())
	}
}
