package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <schema.relation>",
	Short: "Describe a relation: fields, keys and foreign keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		model, conn, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeQuietly(ctx, conn)

		rel, err := model.Relation(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), rel)
		return nil
	},
}
