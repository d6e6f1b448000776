package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/mapping"
	"github.com/ldkit/ldk/shape"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// shapeFlags are shared by the shape subcommands.
type shapeFlags struct {
	shape   string
	names   string
	mapping string
}

func (f *shapeFlags) register(com *cobra.Command, withMapping bool) {
	flags := com.Flags()
	flags.StringVarP(&f.shape, "shape", "s", "", "SHACL shape schema (Turtle).")
	flags.StringVarP(&f.names, "names", "n", "", "YAML lookup from IRI to human readable name.")
	if withMapping {
		flags.StringVarP(&f.mapping, "mapping", "m", "", "Mapping configuration (YAML).")
	}
}

func (f *shapeFlags) load(ctx context.Context) (*shape.Model, *mapping.Config, error) {
	if f.shape == "" {
		return nil, nil, errors.New("a shape schema is required")
	}
	var opts []shape.Option
	if f.names != "" {
		names, err := mapping.LoadNames(ctx, f.names)
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading names")
		}
		opts = append(opts, shape.WithNames(names))
	}
	model, err := shape.Load(ctx, f.shape, opts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading shape")
	}
	if f.mapping == "" {
		return model, nil, nil
	}
	cfg, err := mapping.Load(ctx, f.mapping)
	return model, cfg, errors.Wrap(err, "loading mapping")
}

// NewShapeCommand returns the shape command, which inspects a shape schema.
func NewShapeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	shapeCommand := &cobra.Command{
		Use:   "shape",
		Short: "Inspect a SHACL shape schema.",
	}

	tf := &shapeFlags{}
	treeCommand := &cobra.Command{
		Use:   "tree",
		Short: "Print the nesting tree of the root shape as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _, err := tf.load(context.Background())
			if err != nil {
				return err
			}
			tree, err := model.Tree()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return errors.Wrap(enc.Encode(tree), "writing tree")
		},
	}
	tf.register(treeCommand, false)

	pf := &shapeFlags{}
	templateCommand := &cobra.Command{
		Use:   "template",
		Short: "Print a skeleton mapping configuration for the root shape.",
		Long: `Print a skeleton mapping configuration for the root shape. Settings
of the mapping given with --mapping take precedence over generated ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, base, err := pf.load(context.Background())
			if err != nil {
				return err
			}
			tmpl, err := model.MappingTemplate(base)
			if err != nil {
				return err
			}
			data, err := mapping.Marshal(tmpl)
			if err != nil {
				return err
			}
			_, err = stdout.Write(data)
			return err
		},
	}
	pf.register(templateCommand, true)

	cf := &shapeFlags{}
	checkCommand := &cobra.Command{
		Use:   "check",
		Short: "Check a mapping configuration against the shape.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cf.mapping == "" {
				return errors.New("a mapping configuration is required")
			}
			model, cfg, err := cf.load(context.Background())
			if err != nil {
				return err
			}
			issues, err := model.CheckMapping(cfg)
			if err != nil {
				return err
			}
			var bad int
			for _, issue := range issues {
				fmt.Fprintln(stdout, issue)
				if issue.Severity == ldk.SeverityError {
					bad++
				}
			}
			if bad > 0 {
				return errors.Errorf("mapping does not fit the shape: %d errors", bad)
			}
			fmt.Fprintf(stdout, "mapping fits the shape (%d warnings)\n", len(issues))
			return nil
		},
	}
	cf.register(checkCommand, true)

	shapeCommand.AddCommand(treeCommand, templateCommand, checkCommand)
	return shapeCommand
}

func init() {
	subcommandFns["shape"] = NewShapeCommand
}
