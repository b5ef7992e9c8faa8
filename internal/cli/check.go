package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errInconsistent makes check exit non-zero.
var errInconsistent = errors.New("inconsistent ontology")

func checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [ontology...]",
		Short: "Check ontologies for consistency",
		Long:  "Loads each named ontology (all configured ones by default) and runs the reasoner's consistency check.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				names := args
				if len(names) == 0 {
					names = a.registry.Names()
				}
				var failed []string
				for _, name := range names {
					c, err := a.service.CheckConsistency(cmd.Context(), name)
					if err != nil {
						return err
					}
					printConsistency(cmd.OutOrStdout(), name, c)
					if !c.Consistent {
						failed = append(failed, name)
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("%w: %v", errInconsistent, failed)
				}
				return nil
			})
		},
	}
}
