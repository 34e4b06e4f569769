package engine

import (
	"context"
)

// ctxTokenKey carries the owning engine through a context, marking it
// as that engine's mutation context.
type ctxTokenKey struct{}

func (e *Engine) markContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxTokenKey{}, e)
}

// onMutationContext reports whether ctx descends from this engine's
// mutation loop.
func (e *Engine) onMutationContext(ctx context.Context) bool {
	owner, _ := ctx.Value(ctxTokenKey{}).(*Engine)
	return owner == e
}

// task is one unit of work queued for the mutation loop. ctx is the
// submitter's context and is only honored up to acceptance: a task
// whose context is already done when the loop reaches it is dropped
// via fail; once run starts, the work runs to completion.
type task struct {
	ctx  context.Context
	run  func(mctx context.Context)
	fail func(err error)
}

func (e *Engine) enqueue(t *task) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	select {
	case e.tasks <- t:
		return nil
	case <-e.quit:
		return ErrEngineClosed
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

// run is the mutation loop. It owns every store mutation: tasks
// execute one at a time, in arrival order, on this goroutine.
func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case t := <-e.tasks:
			e.exec(t)
		case <-e.quit:
			// Reject whatever was queued but never accepted.
			for {
				select {
				case t := <-e.tasks:
					t.fail(ErrEngineClosed)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) exec(t *task) {
	if err := t.ctx.Err(); err != nil {
		t.fail(err)
		return
	}
	// Acceptance point: from here the task is detached from the
	// submitter's context and cannot be canceled.
	t.run(e.markContext(context.Background()))
}

// RunTask runs fn on the mutation context and waits for it. Inside fn,
// Execute and the other on-context calls are legal. Calls already on
// the mutation context run fn inline, so tasks may nest without
// deadlocking. If ctx is done before the loop accepts the task, the
// task is dropped; after acceptance fn always runs to completion, even
// when RunTask itself returns early with ctx's error.
func (e *Engine) RunTask(ctx context.Context, fn func(mctx context.Context) error) error {
	if e.onMutationContext(ctx) {
		return fn(ctx)
	}
	errc := make(chan error, 1)
	t := &task{
		ctx:  ctx,
		run:  func(mctx context.Context) { errc <- fn(mctx) },
		fail: func(err error) { errc <- err },
	}
	if err := e.enqueue(t); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
