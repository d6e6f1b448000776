package cmd

import (
	"io"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/file"
	"github.com/ldkit/ldk/ingest"
	"github.com/ldkit/ldk/json"
	"github.com/spf13/cobra"
)

// JSONMain reads a stream of json objects from stdin or from files.
type JSONMain struct {
	ingest.Main `flag:"!embed"`
	Path        string `help:"File or directory of json files. '-' reads stdin."`

	stdin io.Reader
}

// NewJSONMain returns a JSONMain reading stdin.
func NewJSONMain(stdin io.Reader) *JSONMain {
	m := &JSONMain{
		Main:  *ingest.NewMain(),
		Path:  "-",
		stdin: stdin,
	}
	m.NewSource = func() (ldk.Source, error) {
		if m.Path == "-" {
			return json.NewSource(m.stdin), nil
		}
		return file.NewSource(file.OptSrcPath(m.Path), file.OptSrcFormat(file.FormatJSON))
	}
	return m
}

// JSONCmdMain is wrapped by NewJSONCommand and only exported for testing purposes.
var JSONCmdMain *JSONMain

// NewJSONCommand returns a new cobra command wrapping JSONCmdMain.
func NewJSONCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	JSONCmdMain = NewJSONMain(stdin)
	return newIngestCommand("json", "Build JSON-LD documents from a stream of json objects.", JSONCmdMain, stderr)
}

func init() {
	subcommandFns["json"] = NewJSONCommand
}
