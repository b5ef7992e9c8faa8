package cli

import (
	"github.com/spf13/cobra"

	"term-forge/internal/service"
)

func obsoleteCommand() *cobra.Command {
	var (
		req    service.ObsoleteRequest
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "obsolete <ontology> <term-id>",
		Short: "Preview or commit the obsoletion of a term",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Ontology, req.TermID = args[0], args[1]
			req.Secret = secretFromEnv()

			return withApp(cmd.Context(), func(a *app) error {
				resp, err := a.service.ObsoleteTerm(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				printDiff(cmd.OutOrStdout(), resp.Diff)
				if resp.Commit != nil {
					printCommit(cmd.OutOrStdout(), resp.Commit)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Reason, "reason", "", "why the term is obsoleted")
	cmd.Flags().StringSliceVar(&req.ReplacedBy, "replaced-by", nil, "ids of replacement terms")
	cmd.Flags().BoolVar(&req.Commit, "commit", false, "commit the obsoletion")
	cmd.Flags().StringVar(&req.Identity, "identity", "", "identity recorded as the author of the commit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	return cmd
}
