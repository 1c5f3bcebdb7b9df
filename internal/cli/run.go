package cli

import (
	"os"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-query-pipeline/pkg/query"
	"github.com/askiada/go-query-pipeline/pkg/stream/measure"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type runFlags struct {
	input    string
	drawFile string
	timings  bool
}

func newRunCmd(a *app) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml> [query]",
		Short: "Run a pipeline definition and print the result as JSON",
		Long: `Run a pipeline definition. The query argument is sent to the single root module.
With --input, a JSON object is sent as the root module inputs instead.`,
		Args: requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "JSON object of root inputs")
	cmd.Flags().StringVar(&flags.drawFile, "draw", "", "Write the timed pipeline graph to this DOT file")
	cmd.Flags().BoolVar(&flags.timings, "timings", false, "Print the critical path of the run")

	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string, flags *runFlags) (err error) {
	ctx := cmd.Context()

	def, err := query.LoadDefinitionFile(args[0])
	if err != nil {
		return err
	}

	registry, cleanup, err := a.registry(ctx, def)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cleanup(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	msr := measure.NewDefaultMeasure()

	pipe, err := registry.Build(def, query.WithConcurrency(a.cfg.Concurrency), query.WithMeasure(msr))
	if err != nil {
		return err
	}

	err = pipe.Validate()
	if err != nil {
		return err
	}

	a.status(cmd, color.FgGreen, "Run: %s", pipe.Name())

	var res any

	switch {
	case flags.input != "":
		inputs := map[string]any{}

		err = json.Unmarshal([]byte(flags.input), &inputs)
		if err != nil {
			return errors.Wrap(err, "unable to decode --input")
		}

		res, err = pipe.Run(ctx, inputs)
	case len(args) > 1:
		res, err = pipe.RunValue(ctx, args[1])
	default:
		return errors.Wrap(ErrNotEnoughArguments, "a query or --input is required")
	}

	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to encode result")
	}

	_, err = cmd.OutOrStdout().Write(append(out, '\n'))
	if err != nil {
		return errors.Wrap(err, "unable to write result")
	}

	if flags.timings {
		path, total, perr := pipe.CriticalPath(msr)
		if perr != nil {
			return perr
		}

		a.status(cmd, color.FgCyan, "Critical path: %v (%s)", path, total)
	}

	if flags.drawFile != "" {
		err = writeDOT(pipe, msr, flags.drawFile)
		if err != nil {
			return err
		}

		a.status(cmd, color.FgWhite, "Graph: %s", flags.drawFile)
	}

	a.status(cmd, color.FgGreen, "✨DONE✨")

	return nil
}

func writeDOT(pipe *query.Pipeline, msr measure.Measure, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer file.Close()

	err = pipe.Draw(file, msr)
	if err != nil {
		return errors.Wrapf(err, "unable to draw %s", path)
	}

	return nil
}
