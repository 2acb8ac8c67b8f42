package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/minesync/internal/schema"
)

func schemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the builtin protocol description",
		Long: `Print the builtin protocol description as JSON.

The output can be edited and passed back through "schemaPath" in
minesync.json.

Examples:
  minesync schema
  minesync schema -o protocol.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.MarshalJSON(schema.BuiltinSet())
			if err != nil {
				return err
			}
			if output == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return os.WriteFile(output, data, 0644)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}
