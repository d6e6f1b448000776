package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ldkit/ldk/boltdb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewDeadLetterCommand returns a command which prints the dead-lettered
// records of a bolt file, one JSON object per line.
func NewDeadLetterCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var run string
	com := &cobra.Command{
		Use:   "deadletter <file>",
		Short: "List the records which failed a pipeline stage.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := boltdb.ReadEntries(args[0], run)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(stdout)
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return errors.Wrap(err, "writing entry")
				}
			}
			fmt.Fprintf(stderr, "%d entries\n", len(entries))
			return nil
		},
	}
	com.Flags().StringVarP(&run, "run", "r", "", "Only list the entries of this run.")
	return com
}

func init() {
	subcommandFns["deadletter"] = NewDeadLetterCommand
}
