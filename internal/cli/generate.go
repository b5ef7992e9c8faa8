package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"term-forge/internal/service"
)

func generateCommand() *cobra.Command {
	var (
		ontologyName string
		doCommit     bool
		identity     string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "generate <request-file>",
		Short: "Generate candidate terms from a request file",
		Long: `Generate candidate terms from a YAML or JSON request file:

  ontology: GO
  inputs:
    - template: regulation_by
      parameters:
        terms:
          target: [{ontology: GO, id: "GO:0016049"}]
        prefixes:
          target: [negative_regulation, positive_regulation]

With --commit the candidates are committed as one change set. The secret of
the committing identity is read from TERMFORGE_SECRET.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(args[0])
			if err != nil {
				return err
			}
			if ontologyName != "" {
				req.Ontology = ontologyName
			}
			if doCommit {
				req.Commit = true
			}
			if identity != "" {
				req.Identity = identity
			}
			req.Secret = secretFromEnv()

			return withApp(cmd.Context(), func(a *app) error {
				resp, err := a.service.GenerateTerms(cmd.Context(), *req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				printGenerated(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&ontologyName, "ontology", "", "ontology to generate into (overrides the request file)")
	cmd.Flags().BoolVar(&doCommit, "commit", false, "commit the generated terms")
	cmd.Flags().StringVar(&identity, "identity", "", "identity recorded as the author of the commit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	return cmd
}

// readRequest reads a generation request. JSON is accepted as YAML.
func readRequest(path string) (*service.GenerateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	var req service.GenerateRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request %s: %w", path, err)
	}
	return &req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
