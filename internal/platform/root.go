package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigName is the config file looked up by FindConfig.
const DefaultConfigName = "shelf.yaml"

// FindConfig recursively looks upwards from startDir for shelf.yaml and
// returns its absolute path.
func FindConfig(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if hasFile(dir, DefaultConfigName) {
			return filepath.Join(dir, DefaultConfigName), nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%s not found", DefaultConfigName)
}

func hasFile(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}
