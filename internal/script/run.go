package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/sjson"

	"github.com/dshills/geostorm/internal/engine"
	"github.com/dshills/geostorm/internal/engine/descriptor"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/history"
	"github.com/dshills/geostorm/internal/engine/kernel"
	"github.com/dshills/geostorm/internal/logx"
	"github.com/dshills/geostorm/internal/query"
)

// Runner executes parsed scripts against an engine.
type Runner struct {
	eng *engine.Engine
	log logx.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(log logx.Logger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRunner returns a runner over the engine.
func NewRunner(eng *engine.Engine, opts ...RunnerOption) *Runner {
	r := &Runner{eng: eng}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logx.New(slog.LevelInfo)
	}
	return r
}

// Result reports what a script run committed.
type Result struct {
	// Records holds one transaction record per script block, in commit
	// order: the root block first, chained blocks depth-first after it.
	Records []*history.Record

	// Created maps @names to the identifiers the store assigned.
	Created map[string]feature.ID
}

// Seqs returns the committed sequence numbers in commit order.
func (r *Result) Seqs() []uint64 {
	out := make([]uint64, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Seq
	}
	return out
}

// Run executes the script. The root block commits as one transaction;
// chain blocks commit as chained continuations, depth-first. Where
// clauses and patches read store state at build time. A failed block
// stops the run; blocks already committed stay committed and undo
// individually.
func (r *Runner) Run(ctx context.Context, s *Script) (*Result, error) {
	res := &Result{Created: make(map[string]feature.ID)}
	if s == nil {
		return res, fmt.Errorf("%w: nil script", ErrBadScript)
	}
	if err := s.validate(); err != nil {
		return res, err
	}
	if err := r.runBlock(ctx, s, nil, res); err != nil {
		return res, err
	}
	return res, nil
}

// runBlock commits one script block and recurses into its chain.
func (r *Runner) runBlock(ctx context.Context, s *Script, parent *history.Record, res *Result) error {
	var b *descriptor.Builder
	var err error
	if parent == nil {
		b = r.eng.NewOperation()
	} else {
		b, err = r.eng.ChainFrom(parent)
		if err != nil {
			return err
		}
	}
	b.SetLabel(s.Label)

	names := make(map[string]descriptor.Handle)
	for i := range s.Operations {
		if err := r.addOperation(b, &s.Operations[i], names, res.Created); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}

	rec, err := r.eng.Submit(ctx, b.Build())
	if err != nil {
		return err
	}
	res.Records = append(res.Records, rec)

	// Fix @names to the identifiers this commit assigned so chained
	// blocks can reference them directly.
	for name, h := range names {
		if id, ok := rec.Resolved(h); ok {
			res.Created[name] = id
		}
	}
	r.log.Debug("script block committed",
		"seq", rec.Seq, "label", rec.Label, "directives", len(s.Operations))

	for _, child := range s.Chain {
		if err := r.runBlock(ctx, child, rec, res); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) addOperation(b *engine.Builder, o *Operation, names map[string]descriptor.Handle, created map[string]feature.ID) error {
	switch o.Op {
	case OpCreate:
		attrs, err := feature.FromProperties(o.Attributes)
		if err != nil {
			return err
		}
		h, err := b.AddCreate(o.Collection, o.Geometry.Geometry(), attrs)
		if err != nil {
			return err
		}
		if o.As != "" {
			names[o.As] = h
		}
		return nil

	case OpModify:
		ref, err := resolveTarget(*o.Target, names, created)
		if err != nil {
			return err
		}
		set, err := feature.FromProperties(o.Set)
		if err != nil {
			return err
		}
		clear := o.Clear
		if len(o.Patch) > 0 {
			set, clear, err = r.patchedAttributes(o.Collection, feature.ID(o.Target.ID), o.Patch, set, clear)
			if err != nil {
				return err
			}
		}
		var geom orb.Geometry
		if o.Geometry != nil {
			geom = o.Geometry.Geometry()
		}
		_, err = b.AddModify(o.Collection, ref, set, clear, geom)
		return err

	case OpDelete:
		refs := make([]descriptor.Ref, 0, len(o.Targets))
		for _, t := range o.Targets {
			ref, err := resolveTarget(t, names, created)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		_, err := b.AddDelete(o.Collection, refs...)
		return err

	default:
		scope, err := r.resolveScope(*o.Scope, names, created)
		if err != nil {
			return err
		}
		op, err := transformOp(o)
		if err != nil {
			return err
		}
		_, err = b.AddTransform(scope, op)
		return err
	}
}

func transformOp(o *Operation) (descriptor.TransformOp, error) {
	var origin *orb.Point
	if len(o.Origin) == 2 {
		origin = &orb.Point{o.Origin[0], o.Origin[1]}
	}
	switch o.Op {
	case OpMove:
		return descriptor.MoveBy(o.DX, o.DY), nil
	case OpRotate:
		return descriptor.RotateBy(o.Degrees*math.Pi/180, origin), nil
	case OpScale:
		return descriptor.ScaleBy(o.FX, o.FY, origin), nil
	case OpAffine:
		m := kernel.Affine{
			A: o.Matrix[0], B: o.Matrix[1], Tx: o.Matrix[2],
			C: o.Matrix[3], D: o.Matrix[4], Ty: o.Matrix[5],
		}
		return descriptor.ApplyMatrix(m), nil
	case OpClip:
		return descriptor.ClipTo(orb.Bound{
			Min: orb.Point{o.Bound[0], o.Bound[1]},
			Max: orb.Point{o.Bound[2], o.Bound[3]},
		}), nil
	case OpSplit:
		return descriptor.SplitInto(o.Parts), nil
	case OpMerge:
		return descriptor.MergeAll(), nil
	default:
		return descriptor.TransformOp{}, fmt.Errorf("%w: %q", ErrUnknownOp, o.Op)
	}
}

// resolveTarget turns a target spec into a feature reference. Names
// resolve to handles within the current block, then to the concrete
// identifiers earlier blocks committed.
func resolveTarget(t TargetSpec, names map[string]descriptor.Handle, created map[string]feature.ID) (descriptor.Ref, error) {
	if t.ID > 0 {
		return descriptor.ByID(feature.ID(t.ID)), nil
	}
	if h, ok := names[t.Ref]; ok {
		return descriptor.ByHandle(h), nil
	}
	if id, ok := created[t.Ref]; ok {
		return descriptor.ByID(id), nil
	}
	return descriptor.Ref{}, fmt.Errorf("%w: %q", ErrBadName, t.Ref)
}

// resolveScope turns a scope spec into a transform scope. Where
// clauses run against current store state.
func (r *Runner) resolveScope(sc ScopeSpec, names map[string]descriptor.Handle, created map[string]feature.ID) (descriptor.Scope, error) {
	switch {
	case sc.ID > 0:
		return descriptor.One(sc.Collection, descriptor.ByID(feature.ID(sc.ID))), nil
	case sc.Ref != "":
		ref, err := resolveTarget(TargetSpec{Ref: sc.Ref}, names, created)
		if err != nil {
			return descriptor.Scope{}, err
		}
		return descriptor.One(sc.Collection, ref), nil
	case len(sc.IDs) > 0:
		sel := feature.NewSelection()
		for _, id := range sc.IDs {
			sel.Add(sc.Collection, feature.ID(id))
		}
		return descriptor.Selected(sel), nil
	default:
		q, err := query.Compile(sc.Where)
		if err != nil {
			return descriptor.Scope{}, err
		}
		sel, err := r.eng.Select(sc.Collection, q.Predicate())
		if err != nil {
			return descriptor.Scope{}, err
		}
		if sel.Count() == 0 {
			return descriptor.Scope{}, fmt.Errorf("%w: where %q selected nothing", ErrBadScript, sc.Where)
		}
		return descriptor.Selected(sel), nil
	}
}

// patchedAttributes folds sjson path sets over the feature's current
// properties document and returns the resulting attribute map along
// with the names the patch removed. A null patch value deletes the
// path.
func (r *Runner) patchedAttributes(collection string, id feature.ID, patch map[string]any, set feature.Attributes, clear []string) (feature.Attributes, []string, error) {
	f, err := r.eng.Get(collection, id)
	if err != nil {
		return nil, nil, err
	}
	props := f.Attributes.ToProperties()
	if props == nil {
		props = map[string]any{}
	}
	doc, err := json.Marshal(props)
	if err != nil {
		return nil, nil, err
	}

	paths := make([]string, 0, len(patch))
	for p := range patch {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if patch[p] == nil {
			if doc, err = sjson.DeleteBytes(doc, p); err != nil {
				return nil, nil, fmt.Errorf("%w: patch %q: %v", ErrBadScript, p, err)
			}
			continue
		}
		if doc, err = sjson.SetBytes(doc, p, patch[p]); err != nil {
			return nil, nil, fmt.Errorf("%w: patch %q: %v", ErrBadScript, p, err)
		}
	}

	var patched map[string]any
	if err := json.Unmarshal(doc, &patched); err != nil {
		return nil, nil, err
	}
	attrs, err := feature.FromProperties(patched)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: patch result: %v", ErrBadScript, err)
	}

	// Fold explicit sets over the patch, then list the attributes the
	// patch dropped so the directive clears them.
	for k, v := range set {
		attrs[k] = v
	}
	cleared := append([]string(nil), clear...)
	for name := range f.Attributes {
		if _, kept := attrs[name]; !kept {
			cleared = append(cleared, name)
		}
	}
	sort.Strings(cleared)
	return attrs, cleared, nil
}
