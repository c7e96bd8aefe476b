// Package decode turns JSON, YAML and TOML documents into plain Go values:
// maps, slices, strings, numbers and booleans ready to be profiled.
package decode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Format is a document encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

var (
	ErrUnknownFormat = errors.New("unknown document format")
	ErrMalformed     = errors.New("malformed document")
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Decode parses data in the given format.
func Decode(format Format, data []byte) (interface{}, error) {
	switch format {
	case JSON:
		if !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
		}
		return gjson.ParseBytes(data).Value(), nil
	case YAML:
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return doc, nil
	case TOML:
		var doc map[string]interface{}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// File reads and decodes the document at path.
func File(path string) (interface{}, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	doc, err := Decode(format, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}
