package nbexportjob

import (
	"context"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-nbexport/nbexport"
)

// Enqueuer delivers execution messages to go-job.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *job.ExecutionMessage) error
}

// EnqueuerFunc adapts a function to an Enqueuer.
type EnqueuerFunc func(ctx context.Context, msg *job.ExecutionMessage) error

func (f EnqueuerFunc) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if f == nil {
		return nbexport.NewError(nbexport.KindInternal, "enqueuer is nil", nil)
	}
	return f(ctx, msg)
}

// Config configures the go-job render scheduler.
type Config struct {
	Enqueuer    Enqueuer
	TaskID      string
	TaskPath    string
	Config      job.Config
	IDGenerator func() string
	Logger      nbexport.Logger
}

// Scheduler enqueues document render jobs. Renders are idempotent (the cache
// key covers every input), so identical pending messages carry the same
// dedup signature and merge in the queue.
type Scheduler struct {
	builder  *MessageBuilder
	enqueuer Enqueuer
	logger   nbexport.Logger
}

// NewScheduler creates a new job scheduler adapter.
func NewScheduler(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = nbexport.NopLogger{}
	}

	return &Scheduler{
		builder: NewMessageBuilder(MessageBuilderConfig{
			TaskID:      cfg.TaskID,
			TaskPath:    cfg.TaskPath,
			Config:      cfg.Config,
			IDGenerator: cfg.IDGenerator,
			Logger:      logger,
		}),
		enqueuer: cfg.Enqueuer,
		logger:   logger,
	}
}

// ScheduleRender enqueues a render job and returns the render ID used for
// cancellation. The request mask is taken literally; callers resolve the
// default mask before scheduling.
func (s *Scheduler) ScheduleRender(ctx context.Context, req nbexport.ExportRequest) (string, error) {
	if s == nil {
		return "", nbexport.NewError(nbexport.KindInternal, "scheduler is nil", nil)
	}
	if s.enqueuer == nil {
		return "", nbexport.NewError(nbexport.KindNotImpl, "job enqueuer not configured", nil)
	}

	result, err := s.builder.Build(ctx, req)
	if err != nil {
		return "", err
	}

	if err := s.enqueuer.Enqueue(ctx, result.Message); err != nil {
		s.logger.Errorf("enqueue render %s failed: %v", req.Path, err)
		return result.RenderID, err
	}
	return result.RenderID, nil
}
