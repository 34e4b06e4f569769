package workspace

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ManifestFile is the manifest name inside a workspace directory.
const ManifestFile = "geostorm.toml"

// Manifest errors
var (
	ErrNoManifest     = errors.New("no workspace manifest found")
	ErrManifestExists = errors.New("workspace manifest already exists")
	ErrBadManifest    = errors.New("invalid workspace manifest")
)

// Manifest describes a workspace: the dataset name and its collections.
type Manifest struct {
	Name        string           `toml:"name"`
	Collections []CollectionSpec `toml:"collection"`
}

// CollectionSpec binds one collection to its GeoJSON file. Bound, when
// present, is the collection's spatial domain as minx, miny, maxx,
// maxy.
type CollectionSpec struct {
	Name  string    `toml:"name"`
	Path  string    `toml:"path"`
	Bound []float64 `toml:"bound,omitempty"`
}

// OrbBound converts the manifest bound. ok is false when no bound is
// set.
func (cs CollectionSpec) OrbBound() (orb.Bound, bool) {
	if len(cs.Bound) != 4 {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: orb.Point{cs.Bound[0], cs.Bound[1]},
		Max: orb.Point{cs.Bound[2], cs.Bound[3]},
	}, true
}

func (m *Manifest) validate() error {
	seen := make(map[string]struct{}, len(m.Collections))
	for _, cs := range m.Collections {
		if cs.Name == "" {
			return fmt.Errorf("%w: collection with empty name", ErrBadManifest)
		}
		if cs.Path == "" {
			return fmt.Errorf("%w: collection %q has no path", ErrBadManifest, cs.Name)
		}
		if _, dup := seen[cs.Name]; dup {
			return fmt.Errorf("%w: duplicate collection %q", ErrBadManifest, cs.Name)
		}
		seen[cs.Name] = struct{}{}
		switch len(cs.Bound) {
		case 0:
		case 4:
			if cs.Bound[0] > cs.Bound[2] || cs.Bound[1] > cs.Bound[3] {
				return fmt.Errorf("%w: collection %q bound is inverted", ErrBadManifest, cs.Name)
			}
		default:
			return fmt.Errorf("%w: collection %q bound needs minx, miny, maxx, maxy", ErrBadManifest, cs.Name)
		}
	}
	return nil
}

// Spec returns the collection spec by name.
func (m *Manifest) Spec(name string) (CollectionSpec, bool) {
	for _, cs := range m.Collections {
		if cs.Name == name {
			return cs, true
		}
	}
	return CollectionSpec{}, false
}
