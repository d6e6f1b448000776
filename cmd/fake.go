package cmd

import (
	"io"

	"github.com/ldkit/ldk/fake"
	"github.com/spf13/cobra"
)

// FakeMain is wrapped by NewFakeCommand and only exported for testing purposes.
var FakeMain *fake.Main

// NewFakeCommand returns a new cobra command wrapping FakeMain.
func NewFakeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	FakeMain = fake.NewMain()
	return newIngestCommand("fake", "Build JSON-LD documents from generated person records.", FakeMain, stderr)
}

func init() {
	subcommandFns["fake"] = NewFakeCommand
}
