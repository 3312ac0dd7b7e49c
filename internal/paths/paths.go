package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	daemonName = "camd"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/camd or /run/user/<uid>/camd
//	macOS:   ~/Library/Caches/camd/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, daemonName)
	}
	return filepath.Join(xdg.CacheHome, daemonName, "run")
}

// Default path to the PID file.
//
//	Linux:   $XDG_RUNTIME_DIR/camd/camd.pid
//	macOS:   ~/Library/Caches/camd/run/camd.pid
func PIDFile() string {
	return filepath.Join(Runtime(), "camd.pid")
}

// Default path for the image spool file. Each exposure overwrites it;
// nothing outside the encoding step reads it back.
//
//	Linux:   ~/.local/state/camd/scratch.fits
//	macOS:   ~/Library/Application Support/camd/scratch.fits
func SpoolFile() string {
	return filepath.Join(xdg.StateHome, daemonName, "scratch.fits")
}

// Default path to the environment file read at startup.
//
//	Linux:   ~/.config/camd/camd.env
//	macOS:   ~/Library/Application Support/camd/camd.env
func EnvFile() string {
	return filepath.Join(xdg.ConfigHome, daemonName, "camd.env")
}
