package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wehubfusion/kage/pkg/document"
)

// loadInput reads a document file as JSON and applies path=value overrides.
// A value that parses as JSON is stored as such, anything else as a string.
func loadInput(path string, sets []string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("--input is required")
	}
	raw, err := document.NewFile(path).Raw()
	if err != nil {
		return nil, err
	}
	for _, set := range sets {
		key, value, ok := strings.Cut(set, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected path=value", set)
		}
		if json.Valid([]byte(value)) {
			raw, err = document.SetRawBytes(raw, key, []byte(value))
		} else {
			raw, err = document.SetBytes(raw, key, value)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to apply --set %s: %w", key, err)
		}
	}
	return raw, nil
}

// schemaSource returns the schema file as a document source
func schemaSource(path string) (document.Source, error) {
	if path == "" {
		return nil, fmt.Errorf("--schema is required")
	}
	return document.NewFile(path), nil
}

// query extracts path from rendered JSON output and re-renders it
func query(rendered string, path string) (string, error) {
	v, err := document.GetBytes([]byte(rendered), path)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode query result: %w", err)
	}
	return string(data), nil
}

func errorDocument(err error) []byte {
	data, _ := json.MarshalIndent(map[string]string{"error": err.Error()}, "", "  ")
	return data
}
