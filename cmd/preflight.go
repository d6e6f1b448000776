package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jaffee/commandeer"
	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/file"
	"github.com/ldkit/ldk/ingest"
	"github.com/ldkit/ldk/preflight"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// PreflightMain checks raw records against a mapping, and a shape if one is
// given, without building any documents.
type PreflightMain struct {
	Mapping    string  `help:"Mapping configuration (YAML)."`
	Shape      string  `help:"SHACL shape schema (Turtle) for allowed-value checks."`
	Names      string  `help:"YAML lookup from IRI to human readable name."`
	Path       string  `help:"File or directory of csv, tsv and json files to check."`
	FileFormat string  `help:"Read every file as csv, tsv or json instead of going by extension."`
	Mode       string  `help:"report, strict or sample."`
	SampleRate float64 `help:"Fraction of records checked in sample mode."`
	Seed       int64   `help:"Seed for sampling."`
	Report     string  `help:"File to write the result to as JSON. '-' is stdout."`

	stdout io.Writer
	stderr io.Writer
}

// NewPreflightMain returns a PreflightMain with the defaults.
func NewPreflightMain(stdout, stderr io.Writer) *PreflightMain {
	return &PreflightMain{
		Mode:       string(ldk.ModeReport),
		SampleRate: preflight.DefaultSampleRate,
		Report:     "-",
		stdout:     stdout,
		stderr:     stderr,
	}
}

// Run checks every record and writes the result. It fails when the records
// have errors, or on the first one in strict mode.
func (m *PreflightMain) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if m.Mode == "off" {
		return errors.New("preflight mode can't be off here")
	}
	mode, err := ldk.ParseMode(m.Mode)
	if err != nil {
		return err
	}
	im := ingest.NewMain()
	im.Mapping = m.Mapping
	im.Shape = m.Shape
	im.Names = m.Names
	im.Preflight = m.Mode
	im.PreflightRate = m.SampleRate
	im.Seed = m.Seed
	engines, err := im.LoadEngines(ctx)
	if err != nil {
		return err
	}
	src, err := file.NewSource(file.OptSrcPath(m.Path), file.OptSrcFormat(m.FileFormat))
	if err != nil {
		return errors.Wrap(err, "getting source")
	}
	defer src.Close()

	res, verr := engines.Preflight.ValidateSource(ctx, src, mode)
	if err := m.writeReport(res); err != nil {
		return err
	}
	fmt.Fprintf(m.stderr, "preflight: %d records checked, %d errors, %d warnings\n", res.Records, res.ErrorCount(), res.WarningCount())
	if verr != nil {
		return verr
	}
	if !res.Conforms() {
		return errors.Errorf("%d preflight errors", res.ErrorCount())
	}
	return nil
}

func (m *PreflightMain) writeReport(res *ldk.ValidationResult) error {
	if m.Report == "" {
		return nil
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding result")
	}
	data = append(data, '\n')
	if m.Report == "-" {
		_, err = m.stdout.Write(data)
		return errors.Wrap(err, "writing result")
	}
	return errors.Wrap(os.WriteFile(m.Report, data, 0644), "writing result")
}

// NewPreflightCommand returns a new cobra command wrapping a PreflightMain.
func NewPreflightCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	m := NewPreflightMain(stdout, stderr)
	com := &cobra.Command{
		Use:   "preflight",
		Short: "Check raw records against a mapping without building documents.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.Run()
		},
	}
	err := commandeer.Flags(com.Flags(), m)
	if err != nil {
		panic(err)
	}
	return com
}

func init() {
	subcommandFns["preflight"] = NewPreflightCommand
}
