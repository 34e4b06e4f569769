package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/store"
)

func loadCollectionFile(st *store.Store, name, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	c, err := st.Collection(name)
	if err != nil {
		return 0, err
	}

	n := 0
	for i, gf := range fc.Features {
		f, err := fromGeoJSON(gf)
		if err != nil {
			return n, fmt.Errorf("feature %d: %w", i, err)
		}
		if _, err := c.Put(f); err != nil {
			return n, fmt.Errorf("feature %d: %w", i, err)
		}
		n++
	}
	return n, nil
}

func exportCollectionFile(c *store.Collection, path string) (int, error) {
	fc := geojson.NewFeatureCollection()
	ids := c.IDs()
	for _, id := range ids {
		f, err := c.Get(id)
		if err != nil {
			return 0, err
		}
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = int64(f.ID)
		gf.Properties = geojson.Properties(f.Attributes.ToProperties())
		fc.Append(gf)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// fromGeoJSON converts one GeoJSON feature. A numeric id pins the
// feature's identifier; anything else lets the collection allocate.
func fromGeoJSON(gf *geojson.Feature) (*feature.Feature, error) {
	attrs, err := feature.FromProperties(map[string]any(gf.Properties))
	if err != nil {
		return nil, err
	}
	f := &feature.Feature{
		Geometry:   gf.Geometry,
		Attributes: attrs,
	}
	switch v := gf.ID.(type) {
	case float64:
		f.ID = feature.ID(int64(v))
	case int64:
		f.ID = feature.ID(v)
	case int:
		f.ID = feature.ID(v)
	case string:
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			f.ID = feature.ID(n)
		}
	}
	return f, nil
}
