package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wellcode-ai/wellcode-cli/internal/metrics"
)

// WriteSnapshot serializes the finalized snapshot once. An empty path
// writes to a scratch file in the OS temp directory; the written path is
// returned either way.
func WriteSnapshot(snapshot metrics.Snapshot, path string) (string, error) {
	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	encoded = append(encoded, '\n')

	if strings.TrimSpace(path) == "" {
		file, err := os.CreateTemp("", "wellcode-metrics-*.json")
		if err != nil {
			return "", fmt.Errorf("create scratch snapshot file: %w", err)
		}
		defer file.Close()
		if _, err := file.Write(encoded); err != nil {
			return "", fmt.Errorf("write scratch snapshot file: %w", err)
		}
		return file.Name(), nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot file: %w", err)
	}
	return path, nil
}
