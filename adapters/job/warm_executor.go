package nbexportjob

import (
	"context"

	gcmd "github.com/goliatone/go-command"
	rendercmd "github.com/goliatone/go-nbexport/command"
	"github.com/goliatone/go-nbexport/nbexport"
)

// NewWarmExecutor routes warmup renders through the job task so scheduled
// warms share its retry policy and cancel registry. The render result travels
// back through the command result context.
func NewWarmExecutor(task *RenderTask, builder *MessageBuilder) rendercmd.WarmExecutor {
	return rendercmd.WarmExecutorFunc(func(ctx context.Context, req nbexport.ExportRequest) (nbexport.ExportResult, error) {
		if task == nil {
			return nbexport.ExportResult{}, nbexport.NewError(nbexport.KindInternal, "render task is nil", nil)
		}
		if builder == nil {
			return nbexport.ExportResult{}, nbexport.NewError(nbexport.KindNotImpl, "message builder not configured", nil)
		}

		build, err := builder.Build(ctx, req)
		if err != nil {
			return nbexport.ExportResult{}, err
		}

		result := gcmd.NewResult[nbexport.ExportResult]()
		execCtx := gcmd.ContextWithResult(ctx, result)
		if err := task.Execute(execCtx, build.Message); err != nil {
			return nbexport.ExportResult{}, err
		}

		rendered, ok := result.Load()
		if !ok {
			return nbexport.ExportResult{}, nbexport.NewError(nbexport.KindInternal, "render result missing from dispatch", nil)
		}
		return rendered, nil
	})
}
