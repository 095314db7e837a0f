// Package embed carries files lxt writes into new container directories.
package embed

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SetupScriptName is the file the default setup command runs.
const SetupScriptName = "setup.sh"

//go:embed templates/setup.sh
var SetupScript string

// WriteSetupScript writes the starter setup script into dir unless one is
// already there. It reports whether a file was written.
func WriteSetupScript(dir string) (bool, error) {
	dest := filepath.Join(dir, SetupScriptName)
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to check %s: %w", dest, err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(dest, []byte(SetupScript), 0755); err != nil {
		return false, fmt.Errorf("failed to write setup script: %w", err)
	}
	return true, nil
}
