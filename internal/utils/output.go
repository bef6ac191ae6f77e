package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by the --format flag
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Output writes data to stdout in the given format; text falls back to JSON
func Output(format string, data any) error {
	return WriteFormatted(os.Stdout, format, data)
}

// WriteFormatted writes data to w as indented JSON or YAML.
// YAML keys follow the json tags of data.
func WriteFormatted(w io.Writer, format string, data any) error {
	switch format {
	case FormatYAML:
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		var tree any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		out, err := yaml.Marshal(tree)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		_, err = w.Write(out)
		return err
	case FormatJSON, FormatText, "":
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	default:
		return fmt.Errorf("unknown output format %q (want %s, %s or %s)", format, FormatText, FormatJSON, FormatYAML)
	}
}
