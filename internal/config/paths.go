package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// FileNames are the config file names looked for in each directory.
var FileNames = []string{"config.yaml", "config.yml", "config.toml"}

// SearchPaths lists candidate config files, highest priority first: the
// user config directory, the system directory, then the working directory.
func SearchPaths() []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			dirs = append(dirs, filepath.Join(home, "AppData", "Roaming", "devmigrate"))
		case "darwin":
			dirs = append(dirs, filepath.Join(home, "Library", "Application Support", "devmigrate"))
		default:
			if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
				dirs = append(dirs, filepath.Join(xdg, "devmigrate"))
			} else {
				dirs = append(dirs, filepath.Join(home, ".config", "devmigrate"))
			}
		}
	}
	switch runtime.GOOS {
	case "windows":
		if pd := os.Getenv("ProgramData"); pd != "" {
			dirs = append(dirs, filepath.Join(pd, "devmigrate"))
		}
	case "darwin":
		dirs = append(dirs, filepath.Join("/Library", "Application Support", "devmigrate"))
	default:
		dirs = append(dirs, "/etc/devmigrate")
	}
	dirs = append(dirs, ".")

	var paths []string
	for _, d := range dirs {
		for _, name := range FileNames {
			paths = append(paths, filepath.Join(d, name))
		}
	}
	return paths
}

// ErrNoStore is returned when neither the command line nor the
// configuration names a store.
var ErrNoStore = errors.New("no store path given; pass it on the command line, set " + EnvStore + " or set store in the config file")
