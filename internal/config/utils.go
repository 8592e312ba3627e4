package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrProjectRootNotFound is returned when no marker file exists in any parent.
var ErrProjectRootNotFound = errors.New("project root not found")

// FindProjectRoot searches for the project root directory starting from
// startDir and traversing up the directory tree. A directory is the root
// when it contains one of markers; go.mod is used when no marker is given.
//
// Example:
//
//	root, err := FindProjectRoot(".", ".env", "go.mod")
//	if err != nil {
//	    // fall back to the working directory
//	}
func FindProjectRoot(startDir string, markers ...string) (string, error) {
	if len(markers) == 0 {
		markers = []string{"go.mod"}
	}

	absPath, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absPath
	for {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(currentDir, marker)); err == nil {
				return currentDir, nil
			}
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", fmt.Errorf("%w: none of %v found above %s", ErrProjectRootNotFound, markers, absPath)
		}
		currentDir = parentDir
	}
}
