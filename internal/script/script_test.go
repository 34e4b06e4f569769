package script

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/dshills/geostorm/internal/engine"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/store"
	"github.com/dshills/geostorm/internal/logx"
)

func newTestEngine(t *testing.T, collections ...string) *engine.Engine {
	t.Helper()
	st := store.NewStore()
	for _, name := range collections {
		if err := st.AddCollection(name); err != nil {
			t.Fatalf("add collection %q: %v", name, err)
		}
	}
	e := engine.New(st, engine.WithLogger(logx.New(slog.LevelError)))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func mustCreate(t *testing.T, e *engine.Engine, coll string, g orb.Geometry, attrs feature.Attributes) feature.ID {
	t.Helper()
	op := e.NewOperation()
	h, err := op.AddCreate(coll, g, attrs)
	if err != nil {
		t.Fatalf("add create: %v", err)
	}
	rec, err := e.Submit(context.Background(), op.Build())
	if err != nil {
		t.Fatalf("submit create: %v", err)
	}
	id, ok := rec.Resolved(h)
	if !ok {
		t.Fatalf("create handle did not resolve")
	}
	return id
}

func mustRun(t *testing.T, e *engine.Engine, src string) *Result {
	t.Helper()
	s, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse script: %v", err)
	}
	res, err := NewRunner(e).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run script: %v", err)
	}
	return res
}

func mustGet(t *testing.T, e *engine.Engine, coll string, id feature.ID) *feature.Feature {
	t.Helper()
	f, err := e.Get(coll, id)
	if err != nil {
		t.Fatalf("get %s/%d: %v", coll, id, err)
	}
	return f
}

func nearPoint(got orb.Geometry, want orb.Point) bool {
	p, ok := got.(orb.Point)
	if !ok {
		return false
	}
	return math.Abs(p[0]-want[0]) < 1e-9 && math.Abs(p[1]-want[1]) < 1e-9
}

// ============================================================================
// Parsing
// ============================================================================

func TestParseScript(t *testing.T) {
	src := `{
		"label": "build block",
		"operations": [
			{"op": "create", "collection": "parcels", "as": "@lot",
			 "geometry": {"type": "Point", "coordinates": [1, 2]},
			 "attributes": {"name": "alpha", "zone": "r1"}},
			{"op": "modify", "collection": "parcels",
			 "target": {"ref": "@lot"}, "set": {"zone": "r2"}}
		],
		"chain": [
			{"operations": [
				{"op": "move", "scope": {"collection": "parcels", "ref": "@lot"},
				 "dx": 5, "dy": -5}
			]}
		]
	}`

	s, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Label != "build block" {
		t.Errorf("expected label %q, got %q", "build block", s.Label)
	}
	if len(s.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(s.Operations))
	}
	if s.Operations[0].Op != OpCreate || s.Operations[0].As != "@lot" {
		t.Errorf("unexpected first operation: %+v", s.Operations[0])
	}
	if len(s.Chain) != 1 || len(s.Chain[0].Operations) != 1 {
		t.Fatalf("expected one chained block with one operation")
	}
	if s.Chain[0].Operations[0].Op != OpMove {
		t.Errorf("expected chained move, got %q", s.Chain[0].Operations[0].Op)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"garbage", `{not json`, ErrBadScript},
		{"unknown field", `{"operations": [{"op": "merge", "scope": {"collection": "a", "ids": [1, 2]}, "bogus": 1}]}`, ErrBadScript},
		{"no operations", `{"label": "empty"}`, ErrBadScript},
		{"missing op", `{"operations": [{"collection": "a"}]}`, ErrBadScript},
		{"unknown op", `{"operations": [{"op": "teleport"}]}`, ErrUnknownOp},
		{"create without geometry", `{"operations": [{"op": "create", "collection": "a"}]}`, ErrBadScript},
		{"create without collection", `{"operations": [{"op": "create", "geometry": {"type": "Point", "coordinates": [0, 0]}}]}`, ErrBadScript},
		{"bad as name", `{"operations": [{"op": "create", "collection": "a", "as": "lot", "geometry": {"type": "Point", "coordinates": [0, 0]}}]}`, ErrBadScript},
		{"modify without target", `{"operations": [{"op": "modify", "collection": "a", "set": {"x": 1}}]}`, ErrBadScript},
		{"modify changes nothing", `{"operations": [{"op": "modify", "collection": "a", "target": {"id": 1}}]}`, ErrBadScript},
		{"patch needs id target", `{"operations": [{"op": "modify", "collection": "a", "target": {"ref": "@x"}, "patch": {"k": 1}}]}`, ErrBadScript},
		{"target with id and ref", `{"operations": [{"op": "modify", "collection": "a", "target": {"id": 1, "ref": "@x"}, "set": {"k": 1}}]}`, ErrBadScript},
		{"delete without targets", `{"operations": [{"op": "delete", "collection": "a"}]}`, ErrBadScript},
		{"transform without scope", `{"operations": [{"op": "move", "dx": 1}]}`, ErrBadScript},
		{"scope without selector", `{"operations": [{"op": "move", "scope": {"collection": "a"}, "dx": 1}]}`, ErrBadScript},
		{"scope with two selectors", `{"operations": [{"op": "move", "scope": {"collection": "a", "id": 1, "where": "x > 0"}, "dx": 1}]}`, ErrBadScript},
		{"affine short matrix", `{"operations": [{"op": "affine", "scope": {"collection": "a", "id": 1}, "matrix": [1, 0, 0]}]}`, ErrBadScript},
		{"clip short bound", `{"operations": [{"op": "clip", "scope": {"collection": "a", "id": 1}, "bound": [0, 0, 1]}]}`, ErrBadScript},
		{"split one part", `{"operations": [{"op": "split", "scope": {"collection": "a", "id": 1}, "parts": 1}]}`, ErrBadScript},
		{"bad origin", `{"operations": [{"op": "rotate", "scope": {"collection": "a", "id": 1}, "degrees": 90, "origin": [1]}]}`, ErrBadScript},
		{"bad chain block", `{"operations": [{"op": "merge", "scope": {"collection": "a", "ids": [1, 2]}}], "chain": [{"operations": []}]}`, ErrBadScript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse(%s) = %v, want %v", tt.name, err, tt.want)
			}
		})
	}
}

// ============================================================================
// Creates, Modifies, Deletes
// ============================================================================

func TestRunCreateAndModifyByName(t *testing.T) {
	e := newTestEngine(t, "parcels")

	res := mustRun(t, e, `{
		"label": "subdivide",
		"operations": [
			{"op": "create", "collection": "parcels", "as": "@lot",
			 "geometry": {"type": "Point", "coordinates": [3, 4]},
			 "attributes": {"name": "alpha", "zone": "r1", "area": 120.5}},
			{"op": "modify", "collection": "parcels",
			 "target": {"ref": "@lot"}, "set": {"zone": "r2"}, "clear": ["area"]}
		]
	}`)

	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if res.Records[0].Label != "subdivide" {
		t.Errorf("expected label to carry through, got %q", res.Records[0].Label)
	}
	id, ok := res.Created["@lot"]
	if !ok {
		t.Fatalf("expected @lot in created names, got %v", res.Created)
	}

	f := mustGet(t, e, "parcels", id)
	if !orb.Equal(f.Geometry, orb.Point{3, 4}) {
		t.Errorf("expected geometry (3,4), got %v", f.Geometry)
	}
	if got, _ := f.Attributes["zone"].AsString(); got != "r2" {
		t.Errorf("expected zone r2, got %q", got)
	}
	if _, there := f.Attributes["area"]; there {
		t.Error("expected area cleared")
	}
	if got, _ := f.Attributes["name"].AsString(); got != "alpha" {
		t.Errorf("expected name kept, got %q", got)
	}
}

func TestRunDeleteByID(t *testing.T) {
	e := newTestEngine(t, "parcels")
	a := mustCreate(t, e, "parcels", orb.Point{0, 0}, nil)
	b := mustCreate(t, e, "parcels", orb.Point{1, 1}, nil)

	mustRun(t, e, `{
		"operations": [
			{"op": "delete", "collection": "parcels",
			 "targets": [{"id": 1}, {"id": 2}]}
		]
	}`)

	if _, err := e.Get("parcels", a); err == nil {
		t.Error("expected first feature deleted")
	}
	if _, err := e.Get("parcels", b); err == nil {
		t.Error("expected second feature deleted")
	}
}

func TestRunCreateThenDeleteByNameInOneBlock(t *testing.T) {
	e := newTestEngine(t, "parcels")

	res := mustRun(t, e, `{
		"operations": [
			{"op": "create", "collection": "parcels", "as": "@tmp",
			 "geometry": {"type": "Point", "coordinates": [9, 9]}},
			{"op": "delete", "collection": "parcels", "targets": [{"ref": "@tmp"}]}
		]
	}`)

	id := res.Created["@tmp"]
	if id == 0 {
		t.Fatalf("expected @tmp to resolve")
	}
	if _, err := e.Get("parcels", id); err == nil {
		t.Error("expected feature created then deleted in the same transaction")
	}
}

func TestRunUnknownName(t *testing.T) {
	e := newTestEngine(t, "parcels")

	s, err := Parse([]byte(`{
		"operations": [
			{"op": "modify", "collection": "parcels",
			 "target": {"ref": "@ghost"}, "set": {"zone": "r9"}}
		]
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = NewRunner(e).Run(context.Background(), s)
	if !errors.Is(err, ErrBadName) {
		t.Errorf("expected ErrBadName, got %v", err)
	}
}

func TestRunNilScript(t *testing.T) {
	e := newTestEngine(t, "parcels")
	_, err := NewRunner(e).Run(context.Background(), nil)
	if !errors.Is(err, ErrBadScript) {
		t.Errorf("expected ErrBadScript, got %v", err)
	}
}

// ============================================================================
// Transforms
// ============================================================================

func TestRunPointTransforms(t *testing.T) {
	tests := []struct {
		name string
		op   string
		want orb.Point
	}{
		{
			"move",
			`{"op": "move", "scope": {"collection": "poles", "id": 1}, "dx": 10, "dy": -2}`,
			orb.Point{12, 1},
		},
		{
			"rotate quarter turn about origin",
			`{"op": "rotate", "scope": {"collection": "poles", "id": 1}, "degrees": 90, "origin": [0, 0]}`,
			orb.Point{-3, 2},
		},
		{
			"scale about origin",
			`{"op": "scale", "scope": {"collection": "poles", "id": 1}, "fx": 2, "fy": 3, "origin": [0, 0]}`,
			orb.Point{4, 9},
		},
		{
			"affine translation",
			`{"op": "affine", "scope": {"collection": "poles", "id": 1}, "matrix": [1, 0, 100, 0, 1, 200]}`,
			orb.Point{102, 203},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, "poles")
			id := mustCreate(t, e, "poles", orb.Point{2, 3}, nil)

			mustRun(t, e, `{"operations": [`+tt.op+`]}`)

			f := mustGet(t, e, "poles", id)
			if !nearPoint(f.Geometry, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, f.Geometry)
			}
		})
	}
}

func TestRunClip(t *testing.T) {
	e := newTestEngine(t, "roads")
	id := mustCreate(t, e, "roads", orb.LineString{{0, 0}, {10, 0}}, nil)

	mustRun(t, e, `{
		"operations": [
			{"op": "clip", "scope": {"collection": "roads", "id": 1},
			 "bound": [0, -1, 4, 1]}
		]
	}`)

	f := mustGet(t, e, "roads", id)
	want := orb.LineString{{0, 0}, {4, 0}}
	if !orb.Equal(f.Geometry, want) {
		t.Errorf("expected clipped line %v, got %v", want, f.Geometry)
	}
}

func TestRunSplit(t *testing.T) {
	e := newTestEngine(t, "roads")
	id := mustCreate(t, e, "roads", orb.LineString{{0, 0}, {10, 0}}, feature.Attributes{
		"name": feature.String("main"),
	})

	mustRun(t, e, `{
		"operations": [
			{"op": "split", "scope": {"collection": "roads", "id": 1}, "parts": 2}
		]
	}`)

	st := e.Store()
	col, err := st.Collection("roads")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if col.Count() != 2 {
		t.Fatalf("expected 2 features after split, got %d", col.Count())
	}
	f := mustGet(t, e, "roads", id)
	if !orb.Equal(f.Geometry, orb.LineString{{0, 0}, {5, 0}}) {
		t.Errorf("expected original to keep the first half, got %v", f.Geometry)
	}
	g := mustGet(t, e, "roads", id+1)
	if got, _ := g.Attributes["name"].AsString(); got != "main" {
		t.Errorf("expected split part to copy attributes, got %q", got)
	}
}

func TestRunMerge(t *testing.T) {
	e := newTestEngine(t, "poles")
	a := mustCreate(t, e, "poles", orb.Point{0, 0}, feature.Attributes{
		"name": feature.String("west"),
	})
	b := mustCreate(t, e, "poles", orb.Point{5, 5}, nil)

	mustRun(t, e, `{
		"operations": [
			{"op": "merge", "scope": {"collection": "poles", "ids": [1, 2]}}
		]
	}`)

	f := mustGet(t, e, "poles", a)
	if _, ok := f.Geometry.(orb.MultiPoint); !ok {
		t.Errorf("expected merged multipoint, got %T", f.Geometry)
	}
	if got, _ := f.Attributes["name"].AsString(); got != "west" {
		t.Errorf("expected survivor to keep attributes, got %q", got)
	}
	if _, err := e.Get("poles", b); err == nil {
		t.Error("expected merged member deleted")
	}
}

// ============================================================================
// Where Scopes
// ============================================================================

func TestRunWhereScope(t *testing.T) {
	e := newTestEngine(t, "roads")
	one := mustCreate(t, e, "roads", orb.Point{0, 0}, feature.Attributes{"lanes": feature.Int(1)})
	two := mustCreate(t, e, "roads", orb.Point{0, 0}, feature.Attributes{"lanes": feature.Int(2)})
	three := mustCreate(t, e, "roads", orb.Point{0, 0}, feature.Attributes{"lanes": feature.Int(3)})

	mustRun(t, e, `{
		"operations": [
			{"op": "move", "scope": {"collection": "roads", "where": "lanes >= 2"},
			 "dx": 100, "dy": 0}
		]
	}`)

	if f := mustGet(t, e, "roads", one); !orb.Equal(f.Geometry, orb.Point{0, 0}) {
		t.Errorf("expected single-lane road untouched, got %v", f.Geometry)
	}
	for _, id := range []feature.ID{two, three} {
		if f := mustGet(t, e, "roads", id); !orb.Equal(f.Geometry, orb.Point{100, 0}) {
			t.Errorf("expected road %d moved to (100,0), got %v", id, f.Geometry)
		}
	}
}

func TestRunWhereSelectsNothing(t *testing.T) {
	e := newTestEngine(t, "roads")
	mustCreate(t, e, "roads", orb.Point{0, 0}, feature.Attributes{"lanes": feature.Int(1)})

	s, err := Parse([]byte(`{
		"operations": [
			{"op": "move", "scope": {"collection": "roads", "where": "lanes > 9"}, "dx": 1}
		]
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = NewRunner(e).Run(context.Background(), s)
	if !errors.Is(err, ErrBadScript) {
		t.Errorf("expected ErrBadScript for empty selection, got %v", err)
	}
}

func TestRunWhereBadQuery(t *testing.T) {
	e := newTestEngine(t, "roads")

	s, err := Parse([]byte(`{
		"operations": [
			{"op": "move", "scope": {"collection": "roads", "where": "lanes >"}, "dx": 1}
		]
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err = NewRunner(e).Run(context.Background(), s); err == nil {
		t.Error("expected error for malformed where clause")
	}
}

// ============================================================================
// Patches
// ============================================================================

func TestRunPatch(t *testing.T) {
	e := newTestEngine(t, "parcels")
	id := mustCreate(t, e, "parcels", orb.Point{1, 1}, feature.Attributes{
		"name":  feature.String("alpha"),
		"lanes": feature.Int(2),
		"grade": feature.Float(0.5),
	})

	mustRun(t, e, `{
		"operations": [
			{"op": "modify", "collection": "parcels", "target": {"id": 1},
			 "patch": {"lanes": 4, "grade": null, "surface": "paved"}}
		]
	}`)

	f := mustGet(t, e, "parcels", id)
	if got, _ := f.Attributes["lanes"].AsInt(); got != 4 {
		t.Errorf("expected lanes 4, got %d", got)
	}
	if _, there := f.Attributes["grade"]; there {
		t.Error("expected null patch to remove grade")
	}
	if got, _ := f.Attributes["surface"].AsString(); got != "paved" {
		t.Errorf("expected surface paved, got %q", got)
	}
	if got, _ := f.Attributes["name"].AsString(); got != "alpha" {
		t.Errorf("expected untouched name kept, got %q", got)
	}
}

func TestRunPatchWithExplicitSet(t *testing.T) {
	e := newTestEngine(t, "parcels")
	id := mustCreate(t, e, "parcels", orb.Point{1, 1}, feature.Attributes{
		"zone": feature.String("r1"),
	})

	// Explicit sets win over patch values for the same name.
	mustRun(t, e, `{
		"operations": [
			{"op": "modify", "collection": "parcels", "target": {"id": 1},
			 "patch": {"zone": "r2"}, "set": {"zone": "r3"}}
		]
	}`)

	f := mustGet(t, e, "parcels", id)
	if got, _ := f.Attributes["zone"].AsString(); got != "r3" {
		t.Errorf("expected explicit set to win, got %q", got)
	}
}

// ============================================================================
// Chained Blocks
// ============================================================================

func TestRunChainedBlocks(t *testing.T) {
	e := newTestEngine(t, "parcels")

	res := mustRun(t, e, `{
		"label": "root",
		"operations": [
			{"op": "create", "collection": "parcels", "as": "@lot",
			 "geometry": {"type": "Point", "coordinates": [1, 1]},
			 "attributes": {"zone": "r1"}}
		],
		"chain": [
			{"label": "annex", "operations": [
				{"op": "modify", "collection": "parcels",
				 "target": {"ref": "@lot"}, "set": {"zone": "r2"}},
				{"op": "create", "collection": "parcels", "as": "@annex",
				 "geometry": {"type": "Point", "coordinates": [2, 2]}}
			]},
			{"label": "shift", "operations": [
				{"op": "move", "scope": {"collection": "parcels", "ref": "@annex"},
				 "dx": 1, "dy": 1}
			]}
		]
	}`)

	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}
	root, annex, shift := res.Records[0], res.Records[1], res.Records[2]
	if annex.Parent != root.Seq {
		t.Errorf("expected annex chained from root, got parent %d", annex.Parent)
	}
	if shift.Parent != annex.Seq {
		t.Errorf("expected shift chained from annex, got parent %d", shift.Parent)
	}
	if root.Label != "root" || annex.Label != "annex" || shift.Label != "shift" {
		t.Errorf("expected labels carried, got %q %q %q", root.Label, annex.Label, shift.Label)
	}

	lot := res.Created["@lot"]
	f := mustGet(t, e, "parcels", lot)
	if got, _ := f.Attributes["zone"].AsString(); got != "r2" {
		t.Errorf("expected chained modify applied, got zone %q", got)
	}
	moved := mustGet(t, e, "parcels", res.Created["@annex"])
	if !orb.Equal(moved.Geometry, orb.Point{3, 3}) {
		t.Errorf("expected annex moved to (3,3), got %v", moved.Geometry)
	}
}

func TestRunChainFailureKeepsCommittedBlocks(t *testing.T) {
	e := newTestEngine(t, "parcels")

	s, err := Parse([]byte(`{
		"operations": [
			{"op": "create", "collection": "parcels", "as": "@lot",
			 "geometry": {"type": "Point", "coordinates": [1, 1]}}
		],
		"chain": [
			{"operations": [
				{"op": "modify", "collection": "parcels",
				 "target": {"id": 999}, "set": {"zone": "r2"}}
			]}
		]
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	res, err := NewRunner(e).Run(context.Background(), s)
	if err == nil {
		t.Fatal("expected chained block against a missing feature to fail")
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected the root block committed, got %d records", len(res.Records))
	}
	if _, getErr := e.Get("parcels", res.Created["@lot"]); getErr != nil {
		t.Errorf("expected root block to stay committed: %v", getErr)
	}
}

func TestRunSeqsInCommitOrder(t *testing.T) {
	e := newTestEngine(t, "parcels")

	res := mustRun(t, e, `{
		"operations": [
			{"op": "create", "collection": "parcels",
			 "geometry": {"type": "Point", "coordinates": [0, 0]}}
		],
		"chain": [
			{"operations": [
				{"op": "create", "collection": "parcels",
				 "geometry": {"type": "Point", "coordinates": [1, 1]}}
			]}
		]
	}`)

	seqs := res.Seqs()
	if len(seqs) != 2 || seqs[0] >= seqs[1] {
		t.Errorf("expected ascending commit seqs, got %v", seqs)
	}
}
