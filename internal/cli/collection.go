package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nhlutterodt/localrag/internal/collection"
	"github.com/nhlutterodt/localrag/internal/config"
)

// newCollectionCmd implements the supplemented `ragd collection` admin
// surface: spec.md §3 explicitly keeps collection lifecycle management off
// the HTTP surface, so list/destroy exist only here.
func newCollectionCmd(dataDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage ingested collections",
	}
	cmd.AddCommand(newCollectionListCmd(dataDir))
	cmd.AddCommand(newCollectionDestroyCmd(dataDir))
	return cmd
}

func newCollectionListCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every collection and its vector/document counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, reg, err := loadRegistry(*dataDir)
			if err != nil {
				return err
			}

			names, err := reg.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no collections ingested yet")
				return nil
			}

			for _, name := range names {
				m, err := reg.MetricsFor(name)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s error: %v\n", name, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s vectors=%-6d model=%-20s health=%-8s lastIngested=%s\n",
					name, m.VectorCount, m.EmbeddingModel, m.Health, m.LastIngestedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newCollectionDestroyCmd(dataDir *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Permanently delete a collection's vectors and manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !force {
				fmt.Fprintf(cmd.OutOrStdout(), "this permanently deletes collection %q; re-run with --force to confirm\n", name)
				return nil
			}

			_, reg, err := loadRegistry(*dataDir)
			if err != nil {
				return err
			}
			if err := reg.Destroy(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "collection %q destroyed\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm permanent deletion")
	return cmd
}

// loadRegistry builds a registry against dir's data directory without
// starting the HTTP server or ingestion worker, for one-shot CLI commands.
func loadRegistry(dir string) (*config.Config, *collection.Registry, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}
	dataDir := resolveDir(dir, cfg.DataDir)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return cfg, collection.New(dataDir, logger), nil
}

// resolveDir joins a possibly-relative configured path against the project
// directory the CLI was pointed at via --dir.
func resolveDir(projectDir, configured string) string {
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(projectDir, configured)
}
