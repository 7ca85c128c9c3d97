package nbexportjob

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/goliatone/go-command/dispatcher"
	errorslib "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	rendercmd "github.com/goliatone/go-nbexport/command"
	"github.com/goliatone/go-nbexport/nbexport"
)

const (
	DefaultRenderTaskID   = "render:document"
	DefaultRenderTaskPath = "render:document"
)

var (
	backoffRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
	backoffRandMu sync.Mutex
)

// Payload captures the job execution input. Backends is taken literally:
// schedulers resolve the default mask before building the payload, so a zero
// mask here renders as not available.
type Payload struct {
	RenderID string              `json:"render_id,omitempty"`
	Path     string              `json:"path"`
	Theme    string              `json:"theme,omitempty"`
	Backends nbexport.Capability `json:"backends,omitempty"`
}

func (p Payload) toRequest() nbexport.ExportRequest {
	return nbexport.ExportRequest{
		Path:  p.Path,
		Theme: p.Theme,
		Mask:  p.Backends,
	}
}

// MessageBuilderFunc builds an execution message for non-queue paths.
type MessageBuilderFunc func(ctx context.Context) (*job.ExecutionMessage, error)

// RenderDispatch dispatches a document render command.
type RenderDispatch func(ctx context.Context, msg rendercmd.RenderDocument) error

// TaskConfig configures the render task.
type TaskConfig struct {
	ID             string
	Path           string
	Config         job.Config
	HandlerOptions job.HandlerOptions
	RetryPolicy    RetryPolicy
	CancelRegistry *CancelRegistry
	Logger         nbexport.Logger
	Dispatch       RenderDispatch
	MessageBuilder MessageBuilderFunc
}

// RenderTask executes document render jobs.
type RenderTask struct {
	id             string
	path           string
	config         job.Config
	handlerOptions job.HandlerOptions
	retryPolicy    RetryPolicy
	cancelRegistry *CancelRegistry
	logger         nbexport.Logger
	dispatch       RenderDispatch
	messageBuilder MessageBuilderFunc
}

// NewRenderTask creates a document render task.
func NewRenderTask(cfg TaskConfig) *RenderTask {
	logger := cfg.Logger
	if logger == nil {
		logger = nbexport.NopLogger{}
	}
	id := cfg.ID
	if id == "" {
		id = DefaultRenderTaskID
	}
	path := cfg.Path
	if path == "" {
		path = DefaultRenderTaskPath
	}
	dispatch := cfg.Dispatch
	if dispatch == nil {
		dispatch = func(ctx context.Context, msg rendercmd.RenderDocument) error {
			return dispatcher.Dispatch(ctx, msg)
		}
	}

	return &RenderTask{
		id:             id,
		path:           path,
		config:         cfg.Config,
		handlerOptions: cfg.HandlerOptions,
		retryPolicy:    cfg.RetryPolicy,
		cancelRegistry: cfg.CancelRegistry,
		logger:         logger,
		dispatch:       dispatch,
		messageBuilder: cfg.MessageBuilder,
	}
}

// GetID returns the task identifier.
func (t *RenderTask) GetID() string { return t.id }

// GetHandler returns a handler for non-queue execution paths.
func (t *RenderTask) GetHandler() func() error {
	return func() error {
		if t == nil {
			return nbexport.NewError(nbexport.KindInternal, "task is nil", nil)
		}
		if t.messageBuilder == nil {
			return nbexport.NewError(nbexport.KindNotImpl, "job message builder not configured", nil)
		}

		ctx := context.Background()
		msg, err := t.messageBuilder(ctx)
		if err != nil {
			if errors.Is(err, errExecutionSkipped) {
				return nil
			}
			return err
		}
		if msg == nil {
			return nbexport.NewError(nbexport.KindValidation, "execution message is required", nil)
		}
		return t.Execute(ctx, msg)
	}
}

// GetHandlerConfig returns scheduler options for the task.
func (t *RenderTask) GetHandlerConfig() job.HandlerOptions { return t.handlerOptions }

// GetConfig returns task config defaults.
func (t *RenderTask) GetConfig() job.Config { return t.config }

// GetPath returns the task path.
func (t *RenderTask) GetPath() string { return t.path }

// GetEngine returns nil because this task is code-driven.
func (t *RenderTask) GetEngine() job.Engine { return nil }

// Execute runs a document render for the provided payload. Retryable
// failures (timeouts, transient backend errors) re-dispatch up to the retry
// policy; render errors are never cached, so a retry recomputes from scratch.
func (t *RenderTask) Execute(ctx context.Context, msg *job.ExecutionMessage) error {
	if t == nil {
		return nbexport.NewError(nbexport.KindInternal, "task is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := decodePayload(msg)
	if err != nil {
		return err
	}
	if payload.Path == "" {
		return nbexport.NewError(nbexport.KindValidation, "notebook path is required", nil)
	}

	execCtx := ctx
	if t.cancelRegistry != nil && payload.RenderID != "" {
		var cancel context.CancelCauseFunc
		execCtx, cancel = context.WithCancelCause(ctx)
		defer cancel(nil)
		release := t.cancelRegistry.Register(payload.RenderID, cancel)
		defer release()
	}

	policy := t.retryPolicy
	attempt := 0
	for {
		if err := execCtx.Err(); err != nil {
			return context.Cause(execCtx)
		}

		cmd := rendercmd.RenderDocument{Request: payload.toRequest()}
		err := t.dispatch(execCtx, cmd)
		if err == nil {
			return nil
		}
		if execCtx.Err() != nil {
			return context.Cause(execCtx)
		}

		if !policy.shouldRetry(err) || attempt >= policy.MaxRetries {
			return err
		}

		attempt++
		t.logger.Debugf("render %s retry %d after %v", payload.Path, attempt, err)
		delay := policy.backoffDelay(attempt)
		if delay > 0 {
			if serr := sleepWithContext(execCtx, delay); serr != nil {
				return serr
			}
		}
	}
}

func encodePayload(payload Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nbexport.NewError(nbexport.KindValidation, "payload is not serializable", err)
	}
	return json.RawMessage(raw), nil
}

func decodePayload(msg *job.ExecutionMessage) (Payload, error) {
	if msg == nil || msg.Parameters == nil {
		return Payload{}, nbexport.NewError(nbexport.KindValidation, "job payload is required", nil)
	}

	raw, ok := msg.Parameters["payload"]
	if !ok {
		return Payload{}, nbexport.NewError(nbexport.KindValidation, "job payload missing", nil)
	}

	switch value := raw.(type) {
	case Payload:
		return value, nil
	case *Payload:
		if value == nil {
			return Payload{}, nbexport.NewError(nbexport.KindValidation, "job payload is nil", nil)
		}
		return *value, nil
	case json.RawMessage:
		return unmarshalPayload(value)
	case []byte:
		return unmarshalPayload(value)
	case string:
		return unmarshalPayload([]byte(value))
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return Payload{}, nbexport.NewError(nbexport.KindValidation, "job payload is invalid", err)
		}
		return unmarshalPayload(data)
	}
}

func unmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, nbexport.NewError(nbexport.KindValidation, "job payload is empty", nil)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, nbexport.NewError(nbexport.KindValidation, "job payload is invalid", err)
	}
	return payload, nil
}

// RetryPolicy determines retry behavior for retryable errors.
type RetryPolicy struct {
	MaxRetries int
	Backoff    job.BackoffConfig
	Retryable  func(error) bool
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if err == nil || p.MaxRetries <= 0 {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return defaultRetryable(err)
}

func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return computeBackoffDelay(attempt, p.Backoff)
}

// defaultRetryable treats timeouts and transient faults as retryable.
// Exhaustion (KindUnavailable) is deterministic for a given host and mask, so
// retrying it would only burn attempts.
func defaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errorslib.IsRetryableError(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}
	var renderErr *nbexport.RenderError
	if errors.As(err, &renderErr) {
		switch renderErr.Kind {
		case nbexport.KindTimeout, nbexport.KindInternal:
			return true
		}
	}
	return false
}

func computeBackoffDelay(attempt int, cfg job.BackoffConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}

	switch cfg.Strategy {
	case job.BackoffFixed:
		return applyJitter(interval, cfg.Jitter)
	case job.BackoffExponential:
		delay := interval
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxInterval {
				delay = maxInterval
				break
			}
		}
		return applyJitter(delay, cfg.Jitter)
	default:
		return 0
	}
}

func applyJitter(delay time.Duration, jitter bool) time.Duration {
	if !jitter || delay <= 0 {
		return delay
	}
	// +/-50% jitter
	half := float64(delay) * 0.5
	backoffRandMu.Lock()
	offset := (backoffRand.Float64()*2 - 1) * half
	backoffRandMu.Unlock()
	jittered := float64(delay) + offset
	if jittered < 0 {
		return 0
	}
	return time.Duration(jittered)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
