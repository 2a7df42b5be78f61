package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/config"
	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/infra/db"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "scribblectl",
		Short:        "Administer the analysis record store",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("CONFIG_PATH", "config.yaml"), "path to config.yaml")

	open := func(ctx context.Context) (*db.Store, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		return db.Open(ctx, cfg)
	}

	root.AddCommand(newMigrateCmd(open), newGetCmd(open), newDeleteCmd(open))
	return root
}

type opener func(ctx context.Context) (*db.Store, error)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newMigrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the analysis_results table if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			err = store.Migrate(cmd.Context())
			if errors.Is(err, db.ErrNoMigration) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to migrate\n", store.Driver)
				return nil
			}
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema ready\n", store.Driver)
			return nil
		},
	}
}

func newGetCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one analysis record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Repo.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("%w: %s", domain.ErrNotFound, args[0])
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newDeleteCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one analysis record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			ok, err := store.Repo.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not found\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted\n", args[0])
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
