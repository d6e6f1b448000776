package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jaffee/commandeer"
	"github.com/ldkit/ldk/csv"
	"github.com/spf13/cobra"
)

// runner is implemented by every source's Main.
type runner interface {
	Run() error
}

// newIngestCommand returns a cobra command running main, with a flag for
// each of its fields.
func newIngestCommand(use, short string, main runner, stderr io.Writer) *cobra.Command {
	com := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			err := main.Run()
			if err != nil {
				return err
			}
			fmt.Fprintln(stderr, "Done: ", time.Since(start))
			return nil
		},
	}
	err := commandeer.Flags(com.Flags(), main)
	if err != nil {
		panic(err)
	}
	return com
}

// CSVMain is wrapped by NewCSVCommand and only exported for testing purposes.
var CSVMain *csv.Main

// NewCSVCommand returns a new cobra command wrapping CSVMain.
func NewCSVCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	CSVMain = csv.NewMain()
	return newIngestCommand("csv", "Build JSON-LD documents from CSV files.", CSVMain, stderr)
}

func init() {
	subcommandFns["csv"] = NewCSVCommand
}
