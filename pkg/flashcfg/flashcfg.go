// Package flashcfg loads optional invocation defaults for the flashing
// CLI from a YAML file in the user's home directory. It never persists
// anything written during a session: this is purely a source of defaults
// that command-line flags are free to override.
package flashcfg

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

// DefaultFilename is the config file's name within the user's home
// directory.
const DefaultFilename = ".tiliqua-flash.yaml"

// Config holds invocation defaults for the flashing CLI.
type Config struct {
	ProgrammerBinary   string `yaml:"programmer_binary"`
	CableID            string `yaml:"cable_id"`
	EraseOptionStorage bool   `yaml:"erase_option_storage"`
}

// Defaults returns the built-in defaults used when no config file is
// present or a field is left unset.
func Defaults() Config {
	return Config{
		ProgrammerBinary:   "openFPGALoader",
		CableID:            "dirtyJtag",
		EraseOptionStorage: false,
	}
}

// Load reads the config file at the default path (~/.tiliqua-flash.yaml).
// A missing file is not an error: Load returns the built-in defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Defaults(), nil
	}
	return LoadFromPath(filepath.Join(home, DefaultFilename))
}

// LoadFromPath reads and parses the config file at path, falling back to
// Defaults() for any field the file doesn't set. A missing file is not an
// error.
func LoadFromPath(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, tqerr.Wrap(tqerr.KindManifestParseError, err,
			"cannot read config file %s: %s", path, err.Error())
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, tqerr.Wrap(tqerr.KindManifestParseError, err,
			"cannot parse config file %s: %s", path, err.Error())
	}

	return cfg, nil
}
