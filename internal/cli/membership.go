package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/brokenphone/internal/chain"
	"github.com/eldtechnologies/brokenphone/internal/crypto"
)

// RegisterOutput is the result of the register command. The credentials are
// echoed so generated ones can be reused for unregister and reconfigure.
type RegisterOutput struct {
	UUID          string `json:"uuid" yaml:"uuid"`
	Salt          string `json:"salt" yaml:"salt"`
	NextHost      string `json:"nextHost" yaml:"nextHost"`
	NextPort      int    `json:"nextPort" yaml:"nextPort"`
	Timeout       int    `json:"timeout" yaml:"timeout"`
	GameTimestamp int    `json:"xGameTimestamp" yaml:"xGameTimestamp"`
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(opts *RootOptions) *cobra.Command {
	var req chain.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a node with the origin at --node",
		Long: `Register a node with the origin at --node. The uuid and salt are
generated when omitted and printed so the same credentials can be used
later to unregister or reconfigure the node.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			to, c, err := opts.target()
			if err != nil {
				return err
			}
			if req.UUID == "" {
				req.UUID = crypto.NewUUIDv7().String()
			}
			if req.Salt == "" {
				if req.Salt, err = crypto.NewSalt(); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			resp, err := c.Register(ctx, to, req)
			if err != nil {
				return err
			}

			out := RegisterOutput{
				UUID:          req.UUID,
				Salt:          req.Salt,
				NextHost:      resp.NextHost,
				NextPort:      resp.NextPort,
				Timeout:       resp.Timeout,
				GameTimestamp: resp.GameTimestamp,
			}
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Print(out, func(w io.Writer) {
				fmt.Fprintf(w, "uuid:            %s\n", out.UUID)
				fmt.Fprintf(w, "salt:            %s\n", out.Salt)
				writeRegisterResponse(w, resp)
			})
		},
	}

	cmd.Flags().StringVar(&req.Host, "host", "", "host of the node being registered")
	cmd.Flags().IntVar(&req.Port, "port", 0, "port of the node being registered")
	cmd.Flags().StringVar(&req.UUID, "uuid", "", "node uuid (generated when empty)")
	cmd.Flags().StringVar(&req.Salt, "salt", "", "node salt (generated when empty)")
	cmd.Flags().StringVar(&req.Name, "name", "", "node display name")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("port")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// NewUnregisterCommand creates the unregister command.
func NewUnregisterCommand(opts *RootOptions) *cobra.Command {
	var id, salt string

	cmd := &cobra.Command{
		Use:   "unregister",
		Short: "Remove a node from the chain kept by the origin at --node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			to, c, err := opts.target()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			if err := c.Unregister(ctx, to, id, salt); err != nil {
				return err
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Print(map[string]string{"uuid": id, "status": "unregistered"}, func(w io.Writer) {
				fmt.Fprintf(w, "unregistered %s\n", id)
			})
		},
	}

	cmd.Flags().StringVar(&id, "uuid", "", "node uuid")
	cmd.Flags().StringVar(&salt, "salt", "", "node salt")
	_ = cmd.MarkFlagRequired("uuid")
	_ = cmd.MarkFlagRequired("salt")

	return cmd
}

// NewReconfigureCommand creates the reconfigure command.
func NewReconfigureCommand(opts *RootOptions) *cobra.Command {
	var id, salt, next string
	var timestamp int

	cmd := &cobra.Command{
		Use:   "reconfigure",
		Short: "Change where a node forwards messages",
		Long: `Change where a node forwards messages. Sent to an origin, the registry
entry is updated and the member is told. Sent to the member itself, only its
own forwarding target changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			to, c, err := opts.target()
			if err != nil {
				return err
			}
			nextAddr, err := parseAddress(next)
			if err != nil {
				return fmt.Errorf("invalid --next: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			if err := c.Reconfigure(ctx, to, id, salt, nextAddr, timestamp); err != nil {
				return err
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Print(map[string]string{"uuid": id, "next": nextAddr.String()}, func(w io.Writer) {
				fmt.Fprintf(w, "%s now forwards to %s\n", id, nextAddr)
			})
		},
	}

	cmd.Flags().StringVar(&id, "uuid", "", "node uuid")
	cmd.Flags().StringVar(&salt, "salt", "", "node salt")
	cmd.Flags().StringVar(&next, "next", "", "new forwarding target (host:port)")
	cmd.Flags().IntVar(&timestamp, "game-timestamp", 0, "game timestamp sent with the change")
	_ = cmd.MarkFlagRequired("uuid")
	_ = cmd.MarkFlagRequired("salt")
	_ = cmd.MarkFlagRequired("next")

	return cmd
}
