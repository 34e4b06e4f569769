// Package engine executes batch edit operations against spatial
// feature datasets as atomic, undoable transactions.
//
// The engine package serves as the main facade, combining the feature
// store, the geometry kernel, operation descriptors, and undo/redo
// history into a unified API for building feature editors.
//
// # Architecture
//
// The engine is built on several sub-packages:
//
//   - feature: Feature model with typed attributes and content digests
//   - kernel: Geometry math (move, rotate, scale, affine, clip, split, merge)
//   - descriptor: Builders assembling directives into immutable operations
//   - store: In-memory collections with spatial indexing and write locking
//   - history: Transaction records and undo/redo stacks
//
// # The Mutation Context
//
// Every mutation runs on one internal goroutine, the mutation loop, so
// operations commit one at a time in arrival order. Submit routes an
// operation to the loop from any goroutine and blocks until it
// resolves; SubmitAsync returns a Ticket instead. Execute is the
// on-loop entry point for code already running on the mutation
// context (inside RunTask or a hook) and fails with ErrWrongContext
// anywhere else:
//
//	err := e.RunTask(ctx, func(mctx context.Context) error {
//	    rec, err := e.Execute(mctx, desc) // legal here
//	    ...
//	})
//
// Reads never route through the loop.
//
// # Basic Usage
//
// Build an operation and submit it:
//
//	st := store.NewStore()
//	st.AddCollection("parcels")
//	e := engine.New(st)
//	defer e.Close()
//
//	op := e.NewOperation()
//	h, _ := op.AddCreate("parcels", orb.Point{2, 3}, nil)
//	op.AddTransform(descriptor.One("parcels", descriptor.ByHandle(h)),
//	    descriptor.MoveBy(10, 0))
//
//	rec, err := e.Submit(ctx, op.Build())
//
// The operation is atomic: either every directive applies or none do.
// Directives may reference features created earlier in the same
// operation through the handles the builder returned.
//
// # Chaining
//
// A committed transaction's record seeds follow-up operations, so a
// second operation can address features the first one created:
//
//	op2, _ := e.ChainFrom(rec)
//	op2.AddModify("parcels", descriptor.ByHandle(h), attrs, nil, nil)
//	rec2, err := e.Submit(ctx, op2.Build())
//
// Chained transactions undo before their parents, since undo order is
// strictly newest-first.
//
// # Undo/Redo
//
// Undo restores the exact store state from the record's before images;
// no geometry math is repeated. Redo replays the recorded after images
// with identifiers pinned:
//
//	e.Undo(ctx)
//	e.Redo(ctx)
//
//	cp := e.Checkpoint()
//	// ... several operations ...
//	e.RollBackTo(ctx, cp) // undo everything committed after cp
//
// If the store no longer matches the state a record expects, the undo
// or redo fails with ConcurrentModificationError and nothing changes.
//
// # Conflict Detection
//
// Validation captures a content digest of every feature an operation
// targets. The digests are re-checked under the write locks before the
// first directive applies, so an interleaved edit of a targeted
// feature rejects the operation instead of being silently overwritten.
//
// # Error Handling
//
// The package defines several error types:
//
//   - ErrEmptyOperation: Descriptor has no directives
//   - ErrWrongContext: Execute called off the mutation context
//   - ErrNoParentTransaction: Chained parent missing or never committed
//   - ErrEngineClosed: Submission after Close
//   - ErrNothingToUndo, ErrNothingToRedo: Empty history stacks
//   - ValidationError: A directive failed validation; store untouched
//   - ApplyError: A directive failed mid-apply; changes rolled back
//   - ConcurrentModificationError: Targeted state changed underneath
package engine
