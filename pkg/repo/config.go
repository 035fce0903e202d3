package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/bedrock/pkg/object"
)

// RepoVersion is the on-disk layout version written by Init.
const RepoVersion = 1

// Config is the repository-local settings file, <root>/config.
type Config struct {
	Core CoreConfig `toml:"core"`
}

// CoreConfig holds the repository constants fixed at init.
type CoreConfig struct {
	RepoVersion int    `toml:"repo_version"`
	Mode        string `toml:"mode"`
	Checksum    string `toml:"checksum"`
	Compression string `toml:"compression"`
}

// DefaultConfig returns the config Init writes when no option is set.
func DefaultConfig() *Config {
	return &Config{Core: CoreConfig{
		RepoVersion: RepoVersion,
		Mode:        string(object.ModeBare),
		Checksum:    string(object.DefaultAlgorithm),
		Compression: object.DefaultCodec.String(),
	}}
}

func configPath(root string) string {
	return filepath.Join(root, "config")
}

// Validate checks every field and fills defaults for empty ones.
func (c *Config) Validate() error {
	if c.Core.RepoVersion != RepoVersion {
		return fmt.Errorf("config: unsupported repo_version %d", c.Core.RepoVersion)
	}
	mode, err := object.ParseMode(c.Core.Mode)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	alg, err := object.ParseAlgorithm(c.Core.Checksum)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	codec, err := object.ParseCodec(c.Core.Compression)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Core.Mode = string(mode)
	c.Core.Checksum = string(alg)
	c.Core.Compression = codec.String()
	return nil
}

// StoreOptions converts the config into object store options.
func (c *Config) StoreOptions() (object.StoreOptions, error) {
	if err := c.Validate(); err != nil {
		return object.StoreOptions{}, err
	}
	mode, _ := object.ParseMode(c.Core.Mode)
	alg, _ := object.ParseAlgorithm(c.Core.Checksum)
	codec, _ := object.ParseCodec(c.Core.Compression)
	return object.StoreOptions{Mode: mode, Algorithm: alg, Codec: codec}, nil
}

// ReadConfig reads and validates a config file. Unknown keys are rejected so
// a typo cannot silently fall back to a default.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("read config: decode: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("read config: unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteConfig atomically writes cfg to path.
func WriteConfig(path string, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}
