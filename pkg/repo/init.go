package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/bedrock/pkg/object"
)

// InitOptions selects the repository constants. Empty fields take the
// defaults of DefaultConfig.
type InitOptions struct {
	Mode        string
	Checksum    string
	Compression string
}

// Init creates a new repository at path: config, objects/, objects/pack/ and
// refs/heads/. It fails with ErrRepositoryExists if path already has a
// config file.
func Init(path string, opts InitOptions) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("init: abs path: %w", err)
	}
	if _, err := os.Stat(configPath(abs)); err == nil {
		return nil, fmt.Errorf("init %s: %w", abs, ErrRepositoryExists)
	}

	cfg := DefaultConfig()
	if opts.Mode != "" {
		cfg.Core.Mode = opts.Mode
	}
	if opts.Checksum != "" {
		cfg.Core.Checksum = opts.Checksum
	}
	if opts.Compression != "" {
		cfg.Core.Compression = opts.Compression
	}
	storeOpts, err := cfg.StoreOptions()
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	dirs := []string{
		filepath.Join(abs, "objects", "pack"),
		filepath.Join(abs, "refs", "heads"),
		filepath.Join(abs, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	// The config is written last; its presence marks a complete repository.
	if err := WriteConfig(configPath(abs), cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	return &Repo{
		Path:   abs,
		Config: cfg,
		Store:  object.NewStore(abs, storeOpts),
	}, nil
}
