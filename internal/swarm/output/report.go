package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/wesleyorama2/swarmer/internal/swarm/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodeJSON writes result to w as indented JSON.
func EncodeJSON(w io.Writer, result *engine.TestResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteJSON writes the JSON report to path, creating parent directories as
// needed. A path of "-" writes to stdout.
func WriteJSON(result *engine.TestResult, path string) error {
	if path == "-" {
		return EncodeJSON(os.Stdout, result)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	if err := EncodeJSON(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (*engine.TestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var result engine.TestResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &result, nil
}
