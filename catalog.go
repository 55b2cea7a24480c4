package docgo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/docgo/index"
	"github.com/hupe1980/docgo/internal/fs"
	"github.com/hupe1980/docgo/semantic"
)

const catalogFile = "catalog.yaml"

// CollectionSpec is the catalog entry of one collection.
type CollectionSpec struct {
	Name string `yaml:"name"`
	// Schema is a registry URI; empty means no schema validation.
	Schema string `yaml:"schema,omitempty"`
	// Mode selects strict or permissive semantic type checking.
	Mode    semantic.Mode      `yaml:"mode,omitempty"`
	Indexes []index.Definition `yaml:"indexes,omitempty"`
}

// catalog is the persisted collection registry.
type catalog struct {
	Version     int              `yaml:"version"`
	Collections []CollectionSpec `yaml:"collections"`
}

const catalogVersion = 1

func loadCatalog(fsys fs.FileSystem, dir string) (*catalog, error) {
	data, err := fs.ReadFile(fsys, filepath.Join(dir, catalogFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &catalog{Version: catalogVersion}, nil
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c := &catalog{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if c.Version > catalogVersion {
		return nil, fmt.Errorf("catalog version %d is newer than supported %d", c.Version, catalogVersion)
	}
	return c, nil
}

func (c *catalog) save(fsys fs.FileSystem, dir string) error {
	sort.Slice(c.Collections, func(i, j int) bool {
		return c.Collections[i].Name < c.Collections[j].Name
	})
	c.Version = catalogVersion
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return fs.WriteAtomic(fsys, filepath.Join(dir, catalogFile), data, 0o640)
}

func (c *catalog) find(name string) (*CollectionSpec, bool) {
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			return &c.Collections[i], true
		}
	}
	return nil, false
}

func (c *catalog) remove(name string) {
	for i := range c.Collections {
		if c.Collections[i].Name == name {
			c.Collections = append(c.Collections[:i], c.Collections[i+1:]...)
			return
		}
	}
}
