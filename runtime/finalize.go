package runtime

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/guest-bridge/errors"
)

// Finalize shuts the runtime down: the exit handler runs, in-flight async
// calls finish, their posted completions run, and every lent host entry is
// released. Afterwards every runtime operation fails with a finalized
// error, including a second Finalize.
func (r *Runtime) Finalize(ctx context.Context) error {
	if r == nil || r.eng == nil {
		return errors.NotInitialized(errors.PhaseRuntime)
	}
	if !r.finalized.CompareAndSwap(false, true) {
		return errors.Finalized(errors.PhaseRuntime)
	}

	var errs []error
	if r.exit != nil {
		if err := r.exit(ctx); err != nil {
			errs = append(errs, errors.Wrap(errors.PhaseRuntime, errors.KindUsage, err, "exit handler"))
		}
	}
	if err := r.eng.Close(); err != nil {
		errs = append(errs, err)
	}
	flushed := r.loop.RunOnce()
	lent := r.table.Len()
	if err := r.table.Close(); err != nil {
		errs = append(errs, err)
	}

	r.log.Debug("runtime finalized",
		zap.Int("flushed", flushed),
		zap.Int("released", lent))
	_ = r.log.Sync()
	return stderrors.Join(errs...)
}
