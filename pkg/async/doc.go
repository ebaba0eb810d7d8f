// Package async provides small helpers for running functions in the
// background: a typed Future for callers that care about the result, and
// Fire for side effects that must never block or fail the calling path.
//
// Fire exists for best-effort side channels (cache warms, proxy toggles,
// notifications) where the caller's own success is already decided and the
// background task's failure should only be logged:
//
//	async.Fire(ctx, detail, rpn.Activate, func(err error) {
//	    log.Error("rpn activation failed", logger.Error(err))
//	})
//
// Panics inside asynchronous functions are recovered and surfaced as errors
// wrapping ErrPanic; a background task can never crash the process.
package async
