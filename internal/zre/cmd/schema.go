package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/engine"
)

var schemaCmd = &cobra.Command{
	Use:    "schema",
	Short:  "Generate the JSON schema of the analysis report",
	Long:   "Generate the JSON schema of the analysis report consumed by downstream tooling.",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := new(jsonschema.Reflector)
		bts, err := json.MarshalIndent(reflector.Reflect(&engine.AnalysisReport{}), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		fmt.Println(string(bts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
