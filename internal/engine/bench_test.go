package engine

import (
	"context"
	"log/slog"
	"testing"

	"github.com/paulmach/orb"

	"github.com/dshills/geostorm/internal/engine/descriptor"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/store"
	"github.com/dshills/geostorm/internal/logx"
)

// ============================================================================
// Setup Helpers
// ============================================================================

func setupLargeEngine(b *testing.B, count int) (*Engine, []feature.ID) {
	b.Helper()
	st := store.NewStore()
	if err := st.AddCollection("parcels"); err != nil {
		b.Fatalf("add collection: %v", err)
	}
	c, _ := st.Collection("parcels")
	ids := make([]feature.ID, count)
	for i := 0; i < count; i++ {
		x := float64(i % 100)
		y := float64(i / 100)
		f, err := c.Put(&feature.Feature{
			Geometry:   orb.Point{x, y},
			Attributes: feature.Attributes{"n": feature.Int(int64(i))},
		})
		if err != nil {
			b.Fatalf("put: %v", err)
		}
		ids[i] = f.ID
	}
	e := New(st, WithLogger(logx.New(slog.LevelError)), WithMaxUndoEntries(1<<20))
	b.Cleanup(func() { _ = e.Close() })
	return e, ids
}

func moveOp(b *testing.B, e *Engine, id feature.ID) *descriptor.Descriptor {
	b.Helper()
	op := e.NewOperation()
	if _, err := op.AddTransform(descriptor.One("parcels", descriptor.ByID(id)), descriptor.MoveBy(0.5, 0.5)); err != nil {
		b.Fatalf("add transform: %v", err)
	}
	return op.Build()
}

// ============================================================================
// Submission Benchmarks
// ============================================================================

func BenchmarkSubmitCreate(b *testing.B) {
	e, _ := setupLargeEngine(b, 0)
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		op := e.NewOperation()
		if _, err := op.AddCreate("parcels", orb.Point{float64(i), 0}, nil); err != nil {
			b.Fatal(err)
		}
		if _, err := e.Submit(ctx, op.Build()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSubmitMove(b *testing.B) {
	e, ids := setupLargeEngine(b, 1000)
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := e.Submit(ctx, moveOp(b, e, ids[i%len(ids)])); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSubmitSelectionMove(b *testing.B) {
	e, ids := setupLargeEngine(b, 1000)
	ctx := context.Background()
	sel := feature.NewSelection()
	sel.Add("parcels", ids[:100]...)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		op := e.NewOperation()
		if _, err := op.AddTransform(descriptor.Selected(sel), descriptor.MoveBy(0.1, 0)); err != nil {
			b.Fatal(err)
		}
		if _, err := e.Submit(ctx, op.Build()); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Undo/Redo Benchmarks
// ============================================================================

func BenchmarkUndoRedo(b *testing.B) {
	e, ids := setupLargeEngine(b, 100)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if _, err := e.Submit(ctx, moveOp(b, e, ids[i%len(ids)])); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := e.Undo(ctx); err != nil {
			b.Fatal(err)
		}
		if _, err := e.Redo(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Read Benchmarks
// ============================================================================

func BenchmarkSelectInBound(b *testing.B) {
	e, _ := setupLargeEngine(b, 10000)
	bound := orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{40, 40}}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := e.SelectInBound(bound, "parcels"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNearest(b *testing.B) {
	e, _ := setupLargeEngine(b, 10000)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := e.Nearest("parcels", orb.Point{50, 50}, 10); err != nil {
			b.Fatal(err)
		}
	}
}
