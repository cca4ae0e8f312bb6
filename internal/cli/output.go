package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var outputFormats = []string{outputText, outputJSON, outputYAML}

func validateOutput(format string) error {
	if !slices.Contains(outputFormats, format) {
		return fmt.Errorf("unknown output format %q, expected one of %v", format, outputFormats)
	}
	return nil
}

// render writes value in the selected output format. text is used for the
// default human-readable format.
func render(cmd *cobra.Command, value any, text func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("output")

	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)

	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()

	default:
		return text(w)
	}
}
