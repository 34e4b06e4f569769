package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/dshills/geostorm/internal/engine/store"
	"github.com/dshills/geostorm/internal/logx"
)

// Workspace is a manifest plus the directory its files live in.
type Workspace struct {
	Dir      string
	Manifest Manifest

	log logx.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the workspace logger.
func WithLogger(log logx.Logger) Option {
	return func(w *Workspace) {
		if log != nil {
			w.log = log
		}
	}
}

// Load reads the manifest of a workspace directory.
func Load(dir string, opts ...Option) (*Workspace, error) {
	w := &Workspace{Dir: dir}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logx.New(slog.LevelInfo)
	}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoManifest, dir)
		}
		return nil, fmt.Errorf("reading %s: %w", ManifestFile, err)
	}
	if err := toml.Unmarshal(data, &w.Manifest); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFile, err)
	}
	if err := w.Manifest.validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Init creates a workspace directory with a fresh manifest. It fails
// when a manifest already exists there.
func Init(dir, name string, opts ...Option) (*Workspace, error) {
	if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrManifestExists, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}

	w := &Workspace{Dir: dir, Manifest: Manifest{Name: name}}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logx.New(slog.LevelInfo)
	}
	if err := w.Save(); err != nil {
		return nil, err
	}
	return w, nil
}

// Save writes the manifest back to disk.
func (w *Workspace) Save() error {
	data, err := toml.Marshal(w.Manifest)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", ManifestFile, err)
	}
	if err := os.WriteFile(filepath.Join(w.Dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ManifestFile, err)
	}
	return nil
}

// AddCollection registers a collection in the manifest. The file is
// created on the next Export.
func (w *Workspace) AddCollection(name, path string, bound []float64) error {
	if _, exists := w.Manifest.Spec(name); exists {
		return fmt.Errorf("%w: duplicate collection %q", ErrBadManifest, name)
	}
	spec := CollectionSpec{Name: name, Path: path, Bound: bound}
	next := w.Manifest
	next.Collections = append(append([]CollectionSpec(nil), w.Manifest.Collections...), spec)
	if err := next.validate(); err != nil {
		return err
	}
	w.Manifest = next
	return nil
}

// filePath resolves a collection file against the workspace directory.
func (w *Workspace) filePath(spec CollectionSpec) string {
	if filepath.IsAbs(spec.Path) {
		return spec.Path
	}
	return filepath.Join(w.Dir, spec.Path)
}

// LoadInto registers every manifest collection on the store and loads
// its features. A collection whose file does not exist yet loads
// empty. Returns the number of features loaded.
func (w *Workspace) LoadInto(st *store.Store) (int, error) {
	total := 0
	for _, spec := range w.Manifest.Collections {
		var copts []store.CollectionOption
		if b, ok := spec.OrbBound(); ok {
			copts = append(copts, store.WithBound(b))
		}
		if err := st.AddCollection(spec.Name, copts...); err != nil {
			return total, err
		}

		n, err := loadCollectionFile(st, spec.Name, w.filePath(spec))
		if err != nil {
			return total, fmt.Errorf("collection %q: %w", spec.Name, err)
		}
		total += n
		w.log.Debug("collection loaded", "collection", spec.Name, "features", n)
	}
	w.log.Info("workspace loaded",
		"dir", w.Dir, "collections", len(w.Manifest.Collections), "features", total)
	return total, nil
}

// Export writes every manifest collection's current store contents
// back to its GeoJSON file. Returns the number of features written.
func (w *Workspace) Export(st *store.Store) (int, error) {
	total := 0
	for _, spec := range w.Manifest.Collections {
		c, err := st.Collection(spec.Name)
		if err != nil {
			return total, err
		}
		n, err := exportCollectionFile(c, w.filePath(spec))
		if err != nil {
			return total, fmt.Errorf("collection %q: %w", spec.Name, err)
		}
		total += n
		w.log.Debug("collection exported", "collection", spec.Name, "features", n)
	}
	w.log.Info("workspace exported",
		"dir", w.Dir, "collections", len(w.Manifest.Collections), "features", total)
	return total, nil
}
