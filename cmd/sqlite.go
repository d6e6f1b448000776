package cmd

import (
	"io"

	"github.com/ldkit/ldk/sqlite"
	"github.com/spf13/cobra"
)

// NewSQLiteCommand returns a new cobra command building documents from the
// rows of a SQLite table.
func NewSQLiteCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return newIngestCommand("sqlite", "Build JSON-LD documents from the rows of a SQLite table or query.", sqlite.NewMain(), stderr)
}

func init() {
	subcommandFns["sqlite"] = NewSQLiteCommand
}
