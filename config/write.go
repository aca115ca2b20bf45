package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteDefault when the file is already present.
var ErrConfigExists = errors.New("config file already exists")

// keyComments annotate the generated default file.
var keyComments = map[string]string{
	"executable":      "Gemini CLI command name or absolute path.",
	"debug":           "Log at debug level.",
	"permission_mode": "Approval policy passed to the CLI: default, auto_edit or yolo.",
	"log_file":        "Log file path. Empty uses the state directory.",
	"tracing":         "OpenTelemetry tracing of prompts and CLI invocations.",
	"exporter":        "none, file, stderr or otlp.",
	"file_path":       "Traces file for the file exporter. Empty uses the state directory.",
}

// Marshal encodes cfg as commented YAML.
func Marshal(cfg Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	annotate(&doc)

	var buf bytes.Buffer
	buf.WriteString("# gemini-acp configuration\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()
	return buf.Bytes(), nil
}

// annotate attaches keyComments to mapping keys, recursively.
func annotate(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if c, ok := keyComments[n.Content[i].Value]; ok {
				n.Content[i].HeadComment = c
			}
		}
	}
	for _, child := range n.Content {
		annotate(child)
	}
}

// WriteDefault creates a config file at path with default settings and comments.
// Creates the parent directory if it doesn't exist. Unless force is set, an
// existing file is left alone and ErrConfigExists returned.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	data, err := Marshal(Defaults())
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
