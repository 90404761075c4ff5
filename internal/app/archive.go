package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/asegrid/internal/artifact"
	"github.com/specialistvlad/asegrid/internal/ctxlog"
	"github.com/specialistvlad/asegrid/internal/execenv"
	"github.com/specialistvlad/asegrid/internal/restart"
)

// archivingExecutor copies the retrieved files of every attempt that
// produced any into the archive bucket, under <job>/<attempt>-<id>/.
type archivingExecutor struct {
	inner  restart.Executor
	bucket *artifact.Bucket
}

func (e *archivingExecutor) Run(ctx context.Context, a *execenv.Attempt) (*execenv.Result, error) {
	res, err := e.inner.Run(ctx, a)
	if res == nil || ctx.Err() != nil {
		return res, err
	}
	prefix := fmt.Sprintf("%s/%02d-%s", a.Job, a.Number, res.ID)
	if upErr := e.bucket.WithPrefix(prefix).Upload(ctx, res.Retrieved); upErr != nil {
		// The attempt itself is unaffected.
		ctxlog.FromContext(ctx).Error("Failed to archive attempt.", "prefix", prefix, "error", upErr)
	}
	return res, err
}
