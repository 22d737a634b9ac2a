package rbac

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/greenroomhq/greenroom/pkg/observability"
)

// SeedFile is the on-disk shape of a role seed file.
type SeedFile struct {
	Roles []SeedRole `yaml:"roles"`
}

// SeedRole is a role bundle declared in a seed file.
type SeedRole struct {
	Code     string   `yaml:"code"`
	Name     string   `yaml:"name"`
	Level    int      `yaml:"level"`
	Patterns []string `yaml:"patterns"`
}

// LoadSeedFile parses a YAML role seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, role := range seed.Roles {
		if role.Code == "" {
			return nil, fmt.Errorf("seed file %s: role with empty code", path)
		}
	}
	return &seed, nil
}

// ApplySeedFile upserts every role bundle declared in the seed file.
func ApplySeedFile(ctx context.Context, store Store, path string) error {
	seed, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	for _, sr := range seed.Roles {
		role := &Role{
			Code:     sr.Code,
			Name:     sr.Name,
			Level:    sr.Level,
			Patterns: sr.Patterns,
		}
		if err := store.UpsertRole(ctx, role); err != nil {
			return fmt.Errorf("failed to apply seed role %s: %w", sr.Code, err)
		}
	}
	return nil
}

// WatchSeedFile re-applies the seed file whenever it changes on disk.
// Blocks until ctx is cancelled. Errors on reload are logged, not fatal;
// the previously applied bundles stay in effect.
func WatchSeedFile(ctx context.Context, store Store, path string, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory; editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := ApplySeedFile(ctx, store, path); err != nil {
				logger.WithError(err).Error("failed to reload role seed file")
				continue
			}
			logger.WithField("path", path).Info("role seed file reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Error("seed file watcher error")
		}
	}
}
