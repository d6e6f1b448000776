package cmd

import (
	"io"

	"github.com/ldkit/ldk/file"
	"github.com/spf13/cobra"
)

// FileMain is wrapped by NewFileCommand and only exported for testing purposes.
var FileMain *file.Main

// NewFileCommand returns a new cobra command wrapping FileMain.
func NewFileCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	FileMain = file.NewMain()
	return newIngestCommand("file", "Build JSON-LD documents from a file or a directory of csv, tsv and json files.", FileMain, stderr)
}

func init() {
	subcommandFns["file"] = NewFileCommand
}
