package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePath rejects empty paths and paths that climb out of their base
// with "..". An empty path is allowed when optional is set.
func ValidatePath(field, path string, optional bool) error {
	if path == "" {
		if optional {
			return nil
		}
		return fmt.Errorf("%s: is required", field)
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("%s: path cannot contain '..'", field)
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s: invalid path", field)
	}
	return nil
}
