package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/bedrock/pkg/object"
)

var (
	// ErrNotRepository is returned by Open for a path with no repository
	// config.
	ErrNotRepository = errors.New("not a bedrock repository")
	// ErrRepositoryExists is returned by Init when the path already holds a
	// repository.
	ErrRepositoryExists = errors.New("repository already exists")
)

// Repo is an opened repository: a directory holding config, objects/ and
// refs/.
type Repo struct {
	Path   string        // repository root
	Config *Config       // parsed <root>/config
	Store  *object.Store // content-addressed object store
}

// Open opens the repository rooted exactly at path.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cfg, err := ReadConfig(configPath(abs))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", abs, ErrNotRepository)
		}
		return nil, fmt.Errorf("open %s: %w", abs, err)
	}
	info, err := os.Stat(filepath.Join(abs, "objects"))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("open %s: missing objects directory: %w", abs, ErrNotRepository)
	}

	opts, err := cfg.StoreOptions()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", abs, err)
	}
	return &Repo{
		Path:   abs,
		Config: cfg,
		Store:  object.NewStore(abs, opts),
	}, nil
}
