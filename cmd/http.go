package cmd

import (
	"io"

	"github.com/ldkit/ldk/http"
	"github.com/spf13/cobra"
)

// NewHTTPCommand returns a command which builds documents from json posted to
// it until interrupted.
func NewHTTPCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return newIngestCommand("http", "Build JSON-LD documents from json objects posted over HTTP.", http.NewMain(), stderr)
}

func init() {
	subcommandFns["http"] = NewHTTPCommand
}
