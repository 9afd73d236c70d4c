// Package cli provides the Cobra commands for the relata CLI.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/relata-io/relata/internal/config"
	"github.com/relata-io/relata/internal/database"
	"github.com/relata-io/relata/internal/relation"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"

	debug bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "relata",
	Short: "relata - composable PostgreSQL relation queries",
	Long: `relata exposes the relations of a PostgreSQL database as composable
query objects and generates one Go source file per relation.

Get started:
  relata inspect actor.person   Describe a relation and its foreign keys
  relata gen                    Generate relation files for the configured schemas

Configuration is read from relata.yaml, RELATA_* environment variables and an
optional .env file.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		var err error
		cfg, err = config.Load()
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(inspectCmd)
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

// connect opens the database connection and builds the Model with a cached
// metadata service in front of the schema inspector.
func connect(ctx context.Context) (*relation.Model, *database.Connection, *database.SchemaInspector, error) {
	conn, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	inspector := database.NewSchemaInspector(conn)
	cache := database.NewMetadataCache(inspector, cfg.Database.MetadataTTL)
	model := relation.NewModel(cfg.Database.Database, conn, cache)
	return model, conn, inspector, nil
}

func closeQuietly(ctx context.Context, conn *database.Connection) {
	if err := conn.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to close database connection")
	}
}
