// Package history provides undo/redo tracking for committed edit
// transactions.
//
// The history records each transaction as before/after images of the
// features it touched, so reverting and re-applying is pure state
// replay. Key concepts:
//
// # Records
//
// A Record captures one atomic transaction:
//   - Per-directive outcomes with full feature snapshots
//   - The identifiers assigned for created features
//   - Lifecycle status (applied, undone, redone, rejected)
//   - Chain linkage to a parent transaction
//
// # History Stack
//
// The History type manages the undo/redo stacks:
//
//	hist := history.New(1000) // Max 1000 undoable transactions
//
//	// Commit
//	hist.Push(rec)
//
//	// Undo/redo; the callback performs the store work
//	hist.Undo(revert)
//	hist.Redo(reapply)
//
// # Chained Transactions
//
// Transactions chained from a parent commit after it and therefore sit
// above it on the undo stack. Undoing in stack order reverts the chain
// child-first, so a parent is never reverted under a live descendant.
//
// # Checkpoints
//
// A Checkpoint marks a stack position. Undoing while AboveCheckpoint
// reports true rolls the dataset back to the marked state.
package history
