// Package config handles chatvault configuration and message store
// path discovery.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the chatvault configuration, loaded from a TOML file with
// sensible defaults for everything omitted.
type Config struct {
	// ChatDB is an explicit message store path; discovery applies
	// when empty.
	ChatDB string `toml:"chat_db"`
	// DataDir holds the dataset, mapping store, and log file.
	DataDir string `toml:"data_dir"`

	DatasetFile  string `toml:"dataset_file"`
	MappingsFile string `toml:"mappings_file"`
	LogFile      string `toml:"log_file"`

	// AttachmentsDir receives copies of original attachment files;
	// WebImagesDir receives the web-ready (converted) variants.
	AttachmentsDir string `toml:"attachments_dir"`
	WebImagesDir   string `toml:"web_images_dir"`

	MessageLimit    int `toml:"message_limit"`
	AttachmentLimit int `toml:"attachment_limit"`

	// DirectoryLookup enables the OS contact directory source.
	DirectoryLookup bool `toml:"directory_lookup"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:         ".",
		DatasetFile:     "chatvault_data.json",
		MappingsFile:    "contact_mappings.json",
		LogFile:         "chatvault.log",
		AttachmentsDir:  "chatvault_attachments",
		WebImagesDir:    "web_ready_images",
		MessageLimit:    500000,
		AttachmentLimit: 20000,
		DirectoryLookup: true,
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chatvault.toml"
	}
	return filepath.Join(home, ".chatvault", "config.toml")
}

// Load reads the config file at path (or the default location when
// empty), layering it over defaults. A missing file yields defaults; a
// malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultPath()
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// DatasetPath returns the absolute-ish dataset file path.
func (c *Config) DatasetPath() string { return filepath.Join(c.DataDir, c.DatasetFile) }

// MappingsPath returns the mapping store file path.
func (c *Config) MappingsPath() string { return filepath.Join(c.DataDir, c.MappingsFile) }

// LogPath returns the log file path, or empty when file logging is
// disabled.
func (c *Config) LogPath() string {
	if c.LogFile == "" {
		return ""
	}
	return filepath.Join(c.DataDir, c.LogFile)
}

// AttachmentsPath returns the attachment copy directory.
func (c *Config) AttachmentsPath() string { return filepath.Join(c.DataDir, c.AttachmentsDir) }

// WebImagesPath returns the web-ready image directory.
func (c *Config) WebImagesPath() string { return filepath.Join(c.DataDir, c.WebImagesDir) }
