package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/schemas"
)

var schemaCmd = &cobra.Command{
	Use:       "schema <name>",
	Short:     "Print a JSON Schema",
	Long:      "Prints the JSON Schema for a document type: " + strings.Join(schemas.Names(), ", ") + ".",
	Args:      cobra.ExactArgs(1),
	ValidArgs: schemas.Names(),
	RunE:      runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := schemas.Schema(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
