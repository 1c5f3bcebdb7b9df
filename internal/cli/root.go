// Package cli implements the qpipe command line.
package cli

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-query-pipeline/internal/config"
)

// Name is the binary name.
const Name = "qpipe"

var (
	ErrNotEnoughArguments = errors.New("not enough arguments")
	ErrUnknownProvider    = errors.New("unknown embedding provider")
)

type app struct {
	envFile string
	quiet   bool

	cfg    *config.Config
	logOut io.Closer
}

// status prints a coloured line on the command error stream unless quiet is set.
func (a *app) status(cmd *cobra.Command, attr color.Attribute, format string, args ...any) {
	if a.quiet {
		return
	}

	color.New(attr).Fprintf(cmd.ErrOrStderr(), format+"\n", args...) //nolint:errcheck
}

func (a *app) boot(*cobra.Command, []string) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}

	a.logOut, err = cfg.SetupLog()
	if err != nil {
		return err
	}

	a.cfg = cfg

	return nil
}

func (a *app) shutdown(*cobra.Command, []string) error {
	if a.logOut == nil {
		return nil
	}

	err := a.logOut.Close()
	if err != nil {
		return errors.Wrap(err, "unable to close log output")
	}

	return nil
}

// NewRootCmd returns the qpipe command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   Name,
		Short: "Build and run query pipelines",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.boot,
		PersistentPostRunE: a.shutdown,
	}

	root.PersistentFlags().StringVarP(&a.envFile, "env", "e", "", "Environment file")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Only print results")

	root.AddCommand(
		newRunCmd(a),
		newDrawCmd(a),
		newIngestCmd(a),
		newChatCmd(a),
		newScaffoldCmd(a),
		newIntegrationsCmd(a),
	)

	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	err := NewRootCmd().Execute()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Fatal: %s\n", err) //nolint:errcheck

		return 1
	}

	return 0
}

func requireArgs(total int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < total {
			return errors.Wrapf(ErrNotEnoughArguments, "want %d, got %d", total, len(args))
		}

		return nil
	}
}
