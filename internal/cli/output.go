package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eldtechnologies/brokenphone/internal/models"
)

// OutputFormatter renders command results as text, JSON or YAML.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Print writes v in the configured format. text renders the human-readable
// form and is only called for the text format.
func (f *OutputFormatter) Print(v any, text func(w io.Writer)) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(f.Writer)
		return nil
	}
}

func writeRegisterResponse(w io.Writer, resp models.RegisterResponse) {
	fmt.Fprintf(w, "next:            %s\n", resp.Next())
	fmt.Fprintf(w, "timeout:         %dms\n", resp.Timeout)
	fmt.Fprintf(w, "game timestamp:  %d\n", resp.GameTimestamp)
}

func writePlay(w io.Writer, play models.PlayResponse) {
	fmt.Fprintf(w, "play %s: %s (%s)\n", play.ID, play.ContentResult, play.Status)
	fmt.Fprintf(w, "  sent:     %d bytes %s %s\n", play.OriginalLength, play.ContentType, play.OriginalHash)
	fmt.Fprintf(w, "  received: %d bytes %s %s\n", play.ReceivedLength, play.ReceivedContentType, play.ReceivedHash)
	if play.Signatures.Len() == 0 {
		return
	}
	fmt.Fprintln(w, "  hops:")
	for i, sig := range play.Signatures.Items {
		fmt.Fprintf(w, "    %d. %-16s %6d bytes  %s\n", i+1, sig.Name, sig.ContentLength, sig.Hash)
	}
}

func writeChain(w io.Writer, view models.ChainView) {
	fmt.Fprintf(w, "%s [%s] game timestamp %d\n", view.Name, view.State, view.GameTimestamp)
	if view.Next != "" {
		fmt.Fprintf(w, "forwards to %s\n", view.Next)
	}
	if len(view.Nodes) == 0 {
		fmt.Fprintln(w, "no registered nodes")
		return
	}

	// Plays enter at the last registered node and walk back to the origin
	path := make([]string, 0, len(view.Nodes))
	for i := len(view.Nodes) - 1; i >= 0; i-- {
		n := view.Nodes[i]
		label := n.Name
		if label == "" {
			label = n.UUID
		}
		path = append(path, fmt.Sprintf("%s (%s:%d)", label, n.Host, n.Port))
		fmt.Fprintf(w, "  %-36s %s:%d -> %s\n", n.UUID, n.Host, n.Port, n.Next)
	}
	fmt.Fprintf(w, "path: %s -> %s\n", strings.Join(path, " -> "), view.Name)
}
