package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON prints a run summary or ledger listing as indented JSON for
// scripting, in place of the tables.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
