// Package cli provides ragd's cobra command surface: `serve` (the default),
// the supplemented `collection` admin commands, and `version`. Grounded on
// the teacher's cmd/amanmcp/cmd package layout — one file per command,
// constructor functions named newXxxCmd, wired together in NewRootCmd.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/nhlutterodt/localrag/pkg/version"
)

// NewRootCmd builds the ragd root command. Running `ragd` with no
// subcommand is equivalent to `ragd serve`.
func NewRootCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:     "ragd",
		Short:   "Offline retrieval-augmented chat server",
		Version: version.Version,
		Long: `ragd serves a local HTTP API that ingests documents into a
per-collection vector store and answers chat questions grounded in
retrieved context, using a local Ollama instance for embeddings and
generation. No network access beyond that Ollama instance is required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), dataDir)
		},
	}
	cmd.SetVersionTemplate("ragd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "dir", ".", "project directory containing ragd.yaml, data/, and logs/")

	cmd.AddCommand(newServeCmd(&dataDir))
	cmd.AddCommand(newCollectionCmd(&dataDir))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
