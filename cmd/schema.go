package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bioextract/internal/extract"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/prompt"
	"github.com/sells-group/bioextract/internal/registry"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect extraction schemas",
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List builtin schemas",
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, name := range registry.BuiltinNames() {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a schema as YAML, as JSON Schema, or as a rendered prompt header",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := cfg.Pipeline.Schema
		if len(args) == 1 {
			name = args[0]
		}
		file, _ := cmd.Flags().GetString("file")
		asJSONSchema, _ := cmd.Flags().GetBool("json-schema")
		asPrompt, _ := cmd.Flags().GetBool("prompt")

		schema, err := registry.Resolve(name, file)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case asJSONSchema:
			return writeJSON(out, extract.JSONSchema(schema))
		case asPrompt:
			header, err := prompt.NewBuilder(cfg.Pipeline.MaxPromptLength, cfg.LLM.System).Header(sampleCandidate, schema)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(out, header)
			return err
		default:
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(schema); err != nil {
				return err
			}
			return enc.Close()
		}
	},
}

// sampleCandidate fills the prompt header preview.
var sampleCandidate = model.Candidate{
	ID:           "sample",
	Name:         "Jane Q Doe",
	FirstName:    "Jane",
	LastName:     "Doe",
	Office:       "State Senate",
	Year:         2018,
	Jurisdiction: "Ohio",
}

func init() {
	schemaShowCmd.Flags().String("file", "", "YAML or JSON schema file instead of a builtin")
	schemaShowCmd.Flags().Bool("json-schema", false, "print the JSON Schema used to validate answers")
	schemaShowCmd.Flags().Bool("prompt", false, "print the prompt header rendered for a sample candidate")

	schemaCmd.AddCommand(schemaListCmd)
	schemaCmd.AddCommand(schemaShowCmd)
	rootCmd.AddCommand(schemaCmd)
}
