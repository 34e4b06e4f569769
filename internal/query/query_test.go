package query

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/dshills/geostorm/internal/engine/feature"
)

func testFeature() *feature.Feature {
	return &feature.Feature{
		ID:       7,
		Geometry: orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}},
		Attributes: feature.Attributes{
			"name":    feature.String("depot"),
			"lanes":   feature.Int(2),
			"grade":   feature.Float(1.5),
			"open":    feature.Bool(true),
			"closed":  feature.Bool(false),
			"variant": feature.Null(),
		},
	}
}

func TestMatchComparisons(t *testing.T) {
	f := testFeature()

	tests := []struct {
		expr string
		want bool
	}{
		{"name == 'depot'", true},
		{`name == "depot"`, true},
		{"name == 'dock'", false},
		{"name != 'dock'", true},
		{"lanes == 2", true},
		{"lanes == 3", false},
		{"lanes >= 2", true},
		{"lanes > 2", false},
		{"lanes < 3", true},
		{"lanes <= 1", false},
		{"grade > 1", true},
		{"grade > 1.5", false},
		{"grade >= 1.5", true},
		{"open == true", true},
		{"open == false", false},
		{"closed == false", true},
		{"variant == null", true},
		{"missing == null", true},
		{"name == null", false},
		{"name != null", true},
		// Strict typing: numbers never match strings.
		{"lanes == '2'", false},
		{"name == 2", false},
		// String ordering is lexicographic.
		{"name < 'e'", true},
		{"name > 'e'", false},
	}

	for _, tt := range tests {
		q, err := Compile(tt.expr)
		if err != nil {
			t.Errorf("Compile(%q) error = %v", tt.expr, err)
			continue
		}
		if got := q.Match(f); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestMatchBooleanOperators(t *testing.T) {
	f := testFeature()

	tests := []struct {
		expr string
		want bool
	}{
		{"name == 'depot' && lanes == 2", true},
		{"name == 'depot' && lanes == 9", false},
		{"name == 'dock' || lanes == 2", true},
		{"name == 'dock' || lanes == 9", false},
		{"!(name == 'dock')", true},
		{"!open", false},
		{"!closed", true},
		{"!missing", true},
		// && binds tighter than ||.
		{"name == 'dock' || open && lanes == 2", true},
		{"(name == 'dock' || open) && lanes == 2", true},
		{"(name == 'dock' || closed) && lanes == 2", false},
	}

	for _, tt := range tests {
		q, err := Compile(tt.expr)
		if err != nil {
			t.Errorf("Compile(%q) error = %v", tt.expr, err)
			continue
		}
		if got := q.Match(f); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestMatchDocumentPaths(t *testing.T) {
	f := testFeature()

	tests := []struct {
		expr string
		want bool
	}{
		{"id == 7", true},
		{"id == 8", false},
		{"geometry.type == 'Polygon'", true},
		{"geometry.type == 'Point'", false},
		{"properties.name == 'depot'", true},
		{"geometry", true},
	}

	for _, tt := range tests {
		q, err := Compile(tt.expr)
		if err != nil {
			t.Errorf("Compile(%q) error = %v", tt.expr, err)
			continue
		}
		if got := q.Match(f); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestMatchExistence(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"name", true},
		{"missing", false},
		{"variant", false}, // null is not truthy
		{"closed", false},  // false is not truthy
		{"open", true},
		{"lanes", true},
	}

	f := testFeature()
	for _, tt := range tests {
		q := MustCompile(tt.expr)
		if got := q.Match(f); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestMatchNilAndBareFeatures(t *testing.T) {
	q := MustCompile("name == 'depot'")
	if q.Match(nil) {
		t.Error("Match(nil) = true, want false")
	}

	bare := &feature.Feature{ID: 1}
	if q.Match(bare) {
		t.Error("Match(bare) = true, want false")
	}
	if !MustCompile("name == null").Match(bare) {
		t.Error("null match on bare feature = false, want true")
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr error
	}{
		{"", ErrEmptyQuery},
		{"   ", ErrEmptyQuery},
		{"name ==", ErrSyntax},
		{"== 'x'", ErrSyntax},
		{"name = 'x'", ErrSyntax},
		{"name & open", ErrSyntax},
		{"name | open", ErrSyntax},
		{"(name == 'x'", ErrSyntax},
		{"name == 'x')", ErrSyntax},
		{"name == 'unterminated", ErrSyntax},
		{"name == name", ErrSyntax},
		{"name == 'x' &&", ErrSyntax},
		{"$bad", ErrSyntax},
		{"lanes == -", ErrSyntax},
	}

	for _, tt := range tests {
		_, err := Compile(tt.expr)
		if err == nil {
			t.Errorf("Compile(%q) error = nil, want %v", tt.expr, tt.wantErr)
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Compile(%q) error = %v, want %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestNegativeNumbers(t *testing.T) {
	f := &feature.Feature{
		ID:         1,
		Geometry:   orb.Point{0, 0},
		Attributes: feature.Attributes{"depth": feature.Float(-12.5)},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"depth == -12.5", true},
		{"depth < -10", true},
		{"depth > -20", true},
		{"depth < -20", false},
	}

	for _, tt := range tests {
		q := MustCompile(tt.expr)
		if got := q.Match(f); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEscapedStrings(t *testing.T) {
	f := &feature.Feature{
		ID:         1,
		Attributes: feature.Attributes{"name": feature.String("o'hare")},
	}
	q := MustCompile(`name == 'o\'hare'`)
	if !q.Match(f) {
		t.Error("escaped quote did not match")
	}
}

func TestPredicate(t *testing.T) {
	q := MustCompile("lanes >= 2")
	pred := q.Predicate()

	yes := &feature.Feature{ID: 1, Attributes: feature.Attributes{"lanes": feature.Int(3)}}
	no := &feature.Feature{ID: 2, Attributes: feature.Attributes{"lanes": feature.Int(1)}}

	if !pred(yes) {
		t.Error("predicate rejected matching feature")
	}
	if pred(no) {
		t.Error("predicate accepted non-matching feature")
	}
}

func TestSourceRoundTrip(t *testing.T) {
	const src = "name == 'depot' && lanes >= 2"
	q := MustCompile(src)
	if q.Source() != src {
		t.Errorf("Source() = %q, want %q", q.Source(), src)
	}
}

func TestMatchJSON(t *testing.T) {
	q := MustCompile("properties.kind == 'road'")
	doc := []byte(`{"id":4,"properties":{"kind":"road"}}`)
	if !q.MatchJSON(doc) {
		t.Error("MatchJSON = false, want true")
	}
	if q.MatchJSON([]byte(`{"id":4}`)) {
		t.Error("MatchJSON on empty properties = true, want false")
	}
}
