package httpapi

import (
	"context"
)

// serverBaseCtx is canceled when the server goes down, so inference still
// running at shutdown is abandoned.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context. nil resets it.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context from req, keeping its values and deadline,
// that is also canceled when base is done. cancel must be called when the
// handler returns.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(req)
	stop := context.AfterFunc(base, func() { cancel(context.Cause(base)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
