package query

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"

	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/store"
)

// Compile errors
var (
	ErrEmptyQuery = errors.New("empty query expression")
	ErrSyntax     = errors.New("query syntax error")
)

// Query is a compiled filter expression. A query is immutable and safe
// for concurrent use.
//
// Expressions compare JSON paths against literals and combine the
// results with && || and !:
//
//	name == 'depot'
//	kind == 'road' && lanes >= 2
//	properties.zone != null || geometry.type == 'Polygon'
//	!(status == 'closed')
//
// Paths resolve against the feature document {id, geometry,
// properties}; a bare name like lanes is shorthand for
// properties.lanes. A path by itself is truthy when it exists and is
// neither null nor false.
type Query struct {
	src  string
	root node
}

// Compile parses a filter expression.
func Compile(src string) (*Query, error) {
	p := newParser(src)
	root, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Query{src: src, root: root}, nil
}

// MustCompile compiles an expression and panics on error. Use only for
// known-valid expressions in initialization code.
func MustCompile(src string) *Query {
	q, err := Compile(src)
	if err != nil {
		panic("invalid query expression: " + src + ": " + err.Error())
	}
	return q
}

// Source returns the expression the query was compiled from.
func (q *Query) Source() string { return q.src }

// Match reports whether the feature satisfies the expression.
func (q *Query) Match(f *feature.Feature) bool {
	if f == nil {
		return false
	}
	doc, err := featureDoc(f)
	if err != nil {
		return false
	}
	return q.root.eval(doc)
}

// MatchJSON evaluates the expression against a raw feature document.
func (q *Query) MatchJSON(doc []byte) bool {
	return q.root.eval(doc)
}

// Predicate adapts the query for store selection.
func (q *Query) Predicate() store.Predicate {
	return func(f *feature.Feature) bool { return q.Match(f) }
}

// featureDoc renders a feature as the JSON document paths resolve
// against.
func featureDoc(f *feature.Feature) ([]byte, error) {
	doc := struct {
		ID         int64             `json:"id"`
		Geometry   *geojson.Geometry `json:"geometry,omitempty"`
		Properties map[string]any    `json:"properties,omitempty"`
	}{
		ID:         int64(f.ID),
		Properties: f.Attributes.ToProperties(),
	}
	if f.Geometry != nil {
		doc.Geometry = geojson.NewGeometry(f.Geometry)
	}
	return json.Marshal(doc)
}

// resolve widens bare attribute names to the properties object. Paths
// that already address a document section pass through.
func resolve(path string) string {
	switch {
	case path == "id" || path == "geometry" || path == "properties":
		return path
	case len(path) > 9 && path[:9] == "geometry.":
		return path
	case len(path) > 11 && path[:11] == "properties.":
		return path
	default:
		return "properties." + path
	}
}

func lookup(doc []byte, path string) gjson.Result {
	return gjson.GetBytes(doc, resolve(path))
}

func syntaxErr(pos int, format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, pos, fmt.Sprintf(format, args...))
}
