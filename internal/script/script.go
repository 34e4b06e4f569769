package script

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Script errors
var (
	ErrBadScript = errors.New("invalid edit script")
	ErrUnknownOp = errors.New("unknown script operation")
	ErrBadName   = errors.New("unknown feature name")
)

// Known operation verbs.
const (
	OpCreate = "create"
	OpModify = "modify"
	OpDelete = "delete"
	OpMove   = "move"
	OpRotate = "rotate"
	OpScale  = "scale"
	OpAffine = "affine"
	OpClip   = "clip"
	OpSplit  = "split"
	OpMerge  = "merge"
)

// Script is one transaction's worth of operations. Chain blocks commit
// as separate transactions chained from this one; undoing this script
// therefore first requires undoing its chained blocks.
type Script struct {
	Label      string      `json:"label,omitempty"`
	Operations []Operation `json:"operations"`
	Chain      []*Script   `json:"chain,omitempty"`
}

// Operation is a single directive of a script. Op selects the verb;
// only the fields that verb reads are meaningful.
type Operation struct {
	Op         string            `json:"op"`
	Collection string            `json:"collection,omitempty"`
	As         string            `json:"as,omitempty"`
	Target     *TargetSpec       `json:"target,omitempty"`
	Targets    []TargetSpec      `json:"targets,omitempty"`
	Scope      *ScopeSpec        `json:"scope,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry,omitempty"`
	Attributes map[string]any    `json:"attributes,omitempty"`
	Set        map[string]any    `json:"set,omitempty"`
	Clear      []string          `json:"clear,omitempty"`
	Patch      map[string]any    `json:"patch,omitempty"`
	DX         float64           `json:"dx,omitempty"`
	DY         float64           `json:"dy,omitempty"`
	Degrees    float64           `json:"degrees,omitempty"`
	FX         float64           `json:"fx,omitempty"`
	FY         float64           `json:"fy,omitempty"`
	Origin     []float64         `json:"origin,omitempty"`
	Matrix     []float64         `json:"matrix,omitempty"`
	Bound      []float64         `json:"bound,omitempty"`
	Parts      int               `json:"parts,omitempty"`
}

// TargetSpec addresses one feature: a concrete identifier or the @name
// of a create in this script or an earlier committed block.
type TargetSpec struct {
	ID  int64  `json:"id,omitempty"`
	Ref string `json:"ref,omitempty"`
}

// ScopeSpec addresses the features a transform applies to. Exactly one
// of id, ref, ids or where selects within the collection.
type ScopeSpec struct {
	Collection string  `json:"collection"`
	ID         int64   `json:"id,omitempty"`
	Ref        string  `json:"ref,omitempty"`
	IDs        []int64 `json:"ids,omitempty"`
	Where      string  `json:"where,omitempty"`
}

// Parse decodes and structurally validates a script document.
func Parse(data []byte) (*Script, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadScript, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) validate() error {
	if len(s.Operations) == 0 {
		return fmt.Errorf("%w: no operations", ErrBadScript)
	}
	for i := range s.Operations {
		if err := s.Operations[i].validate(); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	for i, child := range s.Chain {
		if child == nil {
			return fmt.Errorf("%w: chain block %d is null", ErrBadScript, i)
		}
		if err := child.validate(); err != nil {
			return fmt.Errorf("chain block %d: %w", i, err)
		}
	}
	return nil
}

func (o *Operation) validate() error {
	switch o.Op {
	case OpCreate:
		if o.Collection == "" {
			return fmt.Errorf("%w: create needs a collection", ErrBadScript)
		}
		if o.Geometry == nil {
			return fmt.Errorf("%w: create needs a geometry", ErrBadScript)
		}
		if o.As != "" && !validName(o.As) {
			return fmt.Errorf("%w: name %q must start with @", ErrBadScript, o.As)
		}
	case OpModify:
		if o.Collection == "" {
			return fmt.Errorf("%w: modify needs a collection", ErrBadScript)
		}
		if o.Target == nil {
			return fmt.Errorf("%w: modify needs a target", ErrBadScript)
		}
		if err := o.Target.validate(); err != nil {
			return err
		}
		if len(o.Set) == 0 && len(o.Clear) == 0 && len(o.Patch) == 0 && o.Geometry == nil {
			return fmt.Errorf("%w: modify changes nothing", ErrBadScript)
		}
		if len(o.Patch) > 0 && o.Target.Ref != "" {
			return fmt.Errorf("%w: patch requires an id target", ErrBadScript)
		}
	case OpDelete:
		if o.Collection == "" {
			return fmt.Errorf("%w: delete needs a collection", ErrBadScript)
		}
		if len(o.Targets) == 0 {
			return fmt.Errorf("%w: delete needs targets", ErrBadScript)
		}
		for i := range o.Targets {
			if err := o.Targets[i].validate(); err != nil {
				return fmt.Errorf("target %d: %w", i, err)
			}
		}
	case OpMove, OpRotate, OpScale, OpAffine, OpClip, OpSplit, OpMerge:
		if o.Scope == nil {
			return fmt.Errorf("%w: %s needs a scope", ErrBadScript, o.Op)
		}
		if err := o.Scope.validate(); err != nil {
			return err
		}
		return o.validateTransform()
	case "":
		return fmt.Errorf("%w: missing op", ErrBadScript)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, o.Op)
	}
	return nil
}

func (o *Operation) validateTransform() error {
	if len(o.Origin) != 0 && len(o.Origin) != 2 {
		return fmt.Errorf("%w: origin needs x, y", ErrBadScript)
	}
	switch o.Op {
	case OpAffine:
		if len(o.Matrix) != 6 {
			return fmt.Errorf("%w: affine matrix needs 6 values", ErrBadScript)
		}
	case OpClip:
		if len(o.Bound) != 4 {
			return fmt.Errorf("%w: clip bound needs minx, miny, maxx, maxy", ErrBadScript)
		}
	case OpSplit:
		if o.Parts < 2 {
			return fmt.Errorf("%w: split needs at least 2 parts", ErrBadScript)
		}
	}
	return nil
}

func (t *TargetSpec) validate() error {
	switch {
	case t.ID > 0 && t.Ref != "":
		return fmt.Errorf("%w: target has both id and ref", ErrBadScript)
	case t.ID > 0:
		return nil
	case t.Ref != "":
		if !validName(t.Ref) {
			return fmt.Errorf("%w: ref %q must start with @", ErrBadScript, t.Ref)
		}
		return nil
	default:
		return fmt.Errorf("%w: target needs an id or a ref", ErrBadScript)
	}
}

func (sc *ScopeSpec) validate() error {
	if sc.Collection == "" {
		return fmt.Errorf("%w: scope needs a collection", ErrBadScript)
	}
	set := 0
	if sc.ID > 0 {
		set++
	}
	if sc.Ref != "" {
		if !validName(sc.Ref) {
			return fmt.Errorf("%w: ref %q must start with @", ErrBadScript, sc.Ref)
		}
		set++
	}
	if len(sc.IDs) > 0 {
		set++
	}
	if sc.Where != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: scope needs exactly one of id, ref, ids, where", ErrBadScript)
	}
	return nil
}

func validName(name string) bool {
	return len(name) > 1 && name[0] == '@'
}
