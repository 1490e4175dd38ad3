package encode

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v2"
)

// Encoder writes v to w
type Encoder func(v interface{}, w io.Writer) error

// JSONIndented encodes a value into a writer with a single space indentation
func JSONIndented(v interface{}, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", " ")

	return encoder.Encode(v)
}

// YAML encodes a value into a writer as a yaml document
func YAML(v interface{}, w io.Writer) error {
	encoder := yaml.NewEncoder(w)

	if err := encoder.Encode(v); err != nil {
		return err
	}

	return encoder.Close()
}

// ForFormat picks an encoder and its content type by name, defaulting to JSON
func ForFormat(format string) (Encoder, string) {
	switch format {
	case "yaml", "yml":
		return YAML, "application/x-yaml"
	default:
		return JSONIndented, "application/json"
	}
}
