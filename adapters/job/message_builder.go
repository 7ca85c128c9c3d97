package nbexportjob

import (
	"context"
	"errors"
	"fmt"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-nbexport/nbexport"
)

var errExecutionSkipped = errors.New("render execution skipped")

// MessageBuilderConfig configures message building for render jobs.
type MessageBuilderConfig struct {
	TaskID      string
	TaskPath    string
	Config      job.Config
	IDGenerator func() string
	Logger      nbexport.Logger
}

// MessageBuilder builds execution messages for document renders.
type MessageBuilder struct {
	taskID      string
	taskPath    string
	config      job.Config
	idGenerator func() string
	logger      nbexport.Logger
}

// BuildResult captures the outcome of message building.
type BuildResult struct {
	RenderID  string
	Message   *job.ExecutionMessage
	Signature string
}

// NewMessageBuilder creates a new MessageBuilder.
func NewMessageBuilder(cfg MessageBuilderConfig) *MessageBuilder {
	logger := cfg.Logger
	if logger == nil {
		logger = nbexport.NopLogger{}
	}
	taskID := cfg.TaskID
	if taskID == "" {
		taskID = DefaultRenderTaskID
	}
	taskPath := cfg.TaskPath
	if taskPath == "" {
		taskPath = DefaultRenderTaskPath
	}

	return &MessageBuilder{
		taskID:      taskID,
		taskPath:    taskPath,
		config:      cfg.Config,
		idGenerator: cfg.IDGenerator,
		logger:      logger,
	}
}

// Build prepares an execution message for a render request. The request mask
// is carried literally; callers resolve defaults before building.
func (b *MessageBuilder) Build(ctx context.Context, req nbexport.ExportRequest) (BuildResult, error) {
	if b == nil {
		return BuildResult{}, nbexport.NewError(nbexport.KindInternal, "message builder is nil", nil)
	}
	if req.Path == "" {
		return BuildResult{}, nbexport.NewError(nbexport.KindValidation, "notebook path is required", nil)
	}

	payload := Payload{
		RenderID: b.nextID(),
		Path:     req.Path,
		Theme:    req.Theme,
		Backends: req.Mask,
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return BuildResult{}, err
	}

	signature := buildDedupKey(req)
	msg := &job.ExecutionMessage{
		JobID:          b.taskID,
		ScriptPath:     b.taskPath,
		Config:         b.config,
		Parameters:     map[string]any{"payload": encoded},
		IdempotencyKey: signature,
		DedupPolicy:    job.DedupPolicyMerge,
	}

	return BuildResult{RenderID: payload.RenderID, Message: msg, Signature: signature}, nil
}

// BuildMessage returns an execution message for GetHandler-style execution.
func (b *MessageBuilder) BuildMessage(ctx context.Context, req nbexport.ExportRequest) (*job.ExecutionMessage, error) {
	result, err := b.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.Message == nil {
		return nil, nbexport.NewError(nbexport.KindValidation, "execution message is required", nil)
	}
	return result.Message, nil
}

func (b *MessageBuilder) nextID() string {
	if b != nil && b.idGenerator != nil {
		return b.idGenerator()
	}
	return ""
}

// buildDedupKey derives a queue dedup signature from the render inputs.
// Identical pending renders merge; the memoized cache makes re-execution
// cheap either way.
func buildDedupKey(req nbexport.ExportRequest) string {
	return fmt.Sprintf("render:%s|%s|%s", req.Path, nbexport.NormalizeTheme(req.Theme), req.Mask)
}
