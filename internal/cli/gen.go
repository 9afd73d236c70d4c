package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/relata-io/relata/internal/gen"
)

var (
	genOutputDir string
	genSchemas   []string
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate one Go source file per database relation",
	Long: `gen inspects the configured schemas and writes one source file per
relation under <output-dir>/<schema>/<relation>.go. Code between the
preserved-region markers survives regeneration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, conn, inspector, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeQuietly(ctx, conn)

		outDir := genOutputDir
		if outDir == "" {
			outDir = cfg.Generator.OutputDir
		}
		schemas := genSchemas
		if len(schemas) == 0 {
			schemas = cfg.Generator.Schemas
		}
		log.Info().Str("output", outDir).Strs("schemas", schemas).Msg("Generating relation files")
		return gen.New(inspector, inspector).Generate(ctx, outDir, schemas...)
	},
}

func init() {
	genCmd.Flags().StringVarP(&genOutputDir, "output", "o", "", "Output directory (defaults to generator.output_dir)")
	genCmd.Flags().StringSliceVarP(&genSchemas, "schema", "s", nil, "Schemas to generate (defaults to generator.schemas)")
}
