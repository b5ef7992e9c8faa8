package cli

import (
	"os"

	"github.com/spf13/cobra"

	"term-forge/internal/templates"
)

func templatesCommand() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "templates <ontology>",
		Short: "List the term templates available for an ontology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				ts, err := a.service.AvailableTemplates(args[0])
				if err != nil {
					return err
				}
				if asYAML {
					return templates.WriteTemplates(cmd.OutOrStdout(), ts)
				}
				printTemplates(cmd.OutOrStdout(), ts)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print templates in their YAML exchange form")
	return cmd
}

// secretFromEnv reads the commit secret; secrets are never taken from flags.
func secretFromEnv() string {
	return os.Getenv("TERMFORGE_SECRET")
}
