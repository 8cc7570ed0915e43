// Package cli implements relayctl, the operator CLI for brokenphone nodes.
//
// Commands
//
//   - register     Register a node with an origin
//   - unregister   Remove a node from an origin's chain
//   - reconfigure  Change a node's forwarding target
//   - play         Send a message around the chain and print the result
//   - chain        Show a node's view of the chain
package cli

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/brokenphone/internal/client"
	"github.com/eldtechnologies/brokenphone/internal/models"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Node    string // host:port of the node to talk to
	Format  string // "text" | "json" | "yaml"
	Timeout time.Duration
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for relayctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:          "relayctl",
		Short:        "Operate brokenphone relay chains",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := parseAddress(opts.Node); err != nil {
				return fmt.Errorf("invalid --node: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Node, "node", "n", envOr("RELAYCTL_NODE", "localhost:8080"), "node address (host:port)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 60*time.Second, "request timeout")

	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewUnregisterCommand(opts))
	cmd.AddCommand(NewReconfigureCommand(opts))
	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewChainCommand(opts))

	return cmd
}

// target returns the parsed --node address and a client for it.
func (o *RootOptions) target() (models.Address, *client.Client, error) {
	addr, err := parseAddress(o.Node)
	if err != nil {
		return models.Address{}, nil, err
	}
	return addr, client.New(o.Timeout), nil
}

// parseAddress parses host:port.
func parseAddress(s string) (models.Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return models.Address{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return models.Address{}, fmt.Errorf("invalid port %q", portStr)
	}
	if host == "" {
		return models.Address{}, fmt.Errorf("missing host in %q", s)
	}
	return models.Address{Host: host, Port: port}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
