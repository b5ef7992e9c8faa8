package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"term-forge/internal/commit"
	"term-forge/internal/config"
	"term-forge/internal/ontology"
)

func initDBCommand() *cobra.Command {
	var connStr string

	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the commit tables and per-ontology id counters",
		Long: `Create the commit tables and an id counter for every configured ontology.

Each counter starts after the highest id with the ontology's prefix found in
its source file. Existing counters are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if connStr == "" {
				connStr = cfg.Store.ConnectionString
			}
			if connStr == "" {
				connStr = config.DefaultConnectionString
			}

			ctx := cmd.Context()
			pc, err := commit.OpenPostgresCommitter(ctx, connStr)
			if err != nil {
				return err
			}
			defer pc.Close()

			if err := pc.InitSchema(ctx); err != nil {
				return err
			}
			for _, o := range cfg.Ontologies {
				next, err := nextID(ctx, o)
				if err != nil {
					return err
				}
				if err := pc.EnsureCounter(ctx, o.Name, o.IDPrefix, next); err != nil {
					return err
				}
				logger.Info("id counter ready", "ontology", o.Name, "prefix", o.IDPrefix, "next", commit.FormatID(o.IDPrefix, next))
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Database initialized (%s).\n", maskConnectionString(connStr))
			return nil
		},
	}
	cmd.Flags().StringVar(&connStr, "db", "", "database connection string (overrides store.connection_string)")
	return cmd
}

// nextID returns the first unused numeric id with the ontology's prefix.
func nextID(ctx context.Context, o config.OntologyConfig) (int64, error) {
	g, err := ontology.FileSource{}.Load(ctx, o.Descriptor())
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", o.Name, err)
	}
	var highest int64
	for _, t := range g.Terms() {
		if n, ok := commit.ParseID(t.ID, o.IDPrefix); ok && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}
