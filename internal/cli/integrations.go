package cli

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/askiada/go-query-pipeline/pkg/integration"
)

// ModulePath is the import path of the mono-repo module.
const ModulePath = "github.com/askiada/go-query-pipeline"

type scaffoldFlags struct {
	modulePath  string
	author      string
	description string
}

func newScaffoldCmd(a *app) *cobra.Command {
	flags := &scaffoldFlags{}

	kinds := make([]string, 0, len(integration.Kinds()))
	for _, kind := range integration.Kinds() {
		kinds = append(kinds, string(kind))
	}

	cmd := &cobra.Command{
		Use:   "new-integration <kind> <name>",
		Short: "Create a new integration package with its manifest",
		Long:  fmt.Sprintf("Create integrations/<kind>s/<name> under the root directory. Kind is one of %s.", strings.Join(kinds, ", ")),
		Args:  requireArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := integration.ParseKind(args[0])
			if err != nil {
				return err
			}

			manifest, err := integration.Scaffold(integration.ScaffoldOptions{
				Root:        a.cfg.Root,
				ModulePath:  flags.modulePath,
				Name:        args[1],
				Kind:        kind,
				Author:      flags.author,
				Description: flags.description,
			})
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(a.cfg.Root, manifest.Dir)
			if err != nil {
				rel = manifest.Dir
			}

			a.status(cmd, color.FgGreen, "✨DONE✨")
			a.status(cmd, color.FgWhite, "Created %s", rel)
			fmt.Fprintln(cmd.OutOrStdout(), manifest.ImportPath) //nolint:errcheck

			return nil
		},
	}

	cmd.Flags().StringVar(&flags.modulePath, "module", ModulePath, "Go module path of the repository")
	cmd.Flags().StringVar(&flags.author, "author", "", "Author of the integration class")
	cmd.Flags().StringVar(&flags.description, "description", "", "One line description")

	return cmd
}

func newIntegrationsCmd(a *app) *cobra.Command {
	var kindFilter string

	cmd := &cobra.Command{
		Use:   "integrations",
		Short: "List the integrations of the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifests, err := integration.Discover(a.cfg.Root)
			if err != nil {
				return err
			}

			if kindFilter != "" {
				kind, err := integration.ParseKind(kindFilter)
				if err != nil {
					return err
				}

				manifests = slices.DeleteFunc(manifests, func(m *integration.Manifest) bool {
					return m.Kind != kind
				})
			}

			kindColor := color.New(color.FgCyan)
			nameColor := color.New(color.Bold)

			out := cmd.OutOrStdout()
			for _, m := range manifests {
				fmt.Fprintf(out, "%-12s %-16s %-8s %s\n", //nolint:errcheck
					kindColor.Sprint(m.Kind), nameColor.Sprint(m.Name), m.Version, m.ImportPath)
			}

			a.status(cmd, color.FgWhite, "%d integrations", len(manifests))

			return nil
		},
	}

	cmd.Flags().StringVar(&kindFilter, "kind", "", "Only list integrations of this kind")

	return cmd
}
