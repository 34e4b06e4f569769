package engine

import (
	"errors"
	"fmt"

	"github.com/dshills/geostorm/internal/engine/descriptor"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/history"
	"github.com/dshills/geostorm/internal/engine/store"
)

// Errors returned by engine operations.
var (
	// ErrEmptyOperation indicates a submitted descriptor with no directives.
	ErrEmptyOperation = errors.New("operation has no directives")

	// ErrWrongContext indicates Execute was called off the engine's
	// mutation context. Route the call through Submit or RunTask.
	ErrWrongContext = errors.New("not on the engine's mutation context")

	// ErrNoParentTransaction indicates a chained operation whose parent
	// is missing from history or never committed.
	ErrNoParentTransaction = errors.New("parent transaction missing or failed")

	// ErrEngineClosed indicates an operation on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrHookNotFound indicates a hook id that is not registered.
	ErrHookNotFound = errors.New("hook not found")
)

// Errors re-exported from sub-packages.
var (
	ErrNothingToUndo      = history.ErrNothingToUndo
	ErrNothingToRedo      = history.ErrNothingToRedo
	ErrCollectionNotFound = store.ErrCollectionNotFound
	ErrFeatureNotFound    = store.ErrFeatureNotFound
	ErrUnknownCollection  = descriptor.ErrUnknownCollection
)

// ValidationError reports the directive that failed validation. The
// operation was rejected before touching the store.
type ValidationError struct {
	Directive  int
	Collection string
	ID         feature.ID
	Err        error
}

func (e *ValidationError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("directive %d invalid: %s/%d: %v", e.Directive, e.Collection, e.ID, e.Err)
	}
	return fmt.Sprintf("directive %d invalid: %s: %v", e.Directive, e.Collection, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConcurrentModificationError reports a feature whose stored state no
// longer matches the state an operation was validated (or recorded)
// against. Actual is zero when the feature no longer exists.
type ConcurrentModificationError struct {
	Collection string
	ID         feature.ID
	Expected   uint64
	Actual     uint64
}

func (e *ConcurrentModificationError) Error() string {
	if e.Actual == 0 {
		return fmt.Sprintf("concurrent modification: %s/%d no longer exists", e.Collection, e.ID)
	}
	return fmt.Sprintf("concurrent modification: %s/%d changed underneath the operation", e.Collection, e.ID)
}

// ApplyError reports the directive that failed while applying. Every
// change the operation had already made was rolled back.
type ApplyError struct {
	Directive int
	Kind      descriptor.Kind
	Err       error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("directive %d (%s) failed: %v", e.Directive, e.Kind, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }
