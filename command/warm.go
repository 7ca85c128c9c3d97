package command

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-nbexport/nbexport"
)

// WarmRequest describes one cache-priming render.
type WarmRequest struct {
	Path     string `json:"path"`
	Theme    string `json:"theme,omitempty"`
	Backends string `json:"backends,omitempty"`
}

func (r WarmRequest) toExportRequest() (nbexport.ExportRequest, error) {
	mask := nbexport.DefaultCapabilities()
	if raw := strings.TrimSpace(r.Backends); raw != "" {
		parsed, err := nbexport.ParseCapability(raw)
		if err != nil {
			return nbexport.ExportRequest{}, err
		}
		mask = parsed
	}
	return nbexport.ExportRequest{
		Path:  strings.TrimSpace(r.Path),
		Theme: r.Theme,
		Mask:  mask,
	}, nil
}

// WarmLoader loads warm requests from a source.
type WarmLoader func(ctx context.Context) ([]WarmRequest, error)

// DocumentRenderer renders documents for warmup runs.
type DocumentRenderer interface {
	RenderDocument(ctx context.Context, req nbexport.ExportRequest) (nbexport.ExportResult, error)
}

// WarmExecutor runs warmup renders through the job pipeline.
type WarmExecutor interface {
	ExecuteRender(ctx context.Context, req nbexport.ExportRequest) (nbexport.ExportResult, error)
}

// WarmExecutorFunc adapts a function to a WarmExecutor.
type WarmExecutorFunc func(ctx context.Context, req nbexport.ExportRequest) (nbexport.ExportResult, error)

func (f WarmExecutorFunc) ExecuteRender(ctx context.Context, req nbexport.ExportRequest) (nbexport.ExportResult, error) {
	if f == nil {
		return nbexport.ExportResult{}, errors.New("warm executor is required", errors.CategoryInternal).
			WithTextCode("WARM_EXECUTOR_NIL")
	}
	return f(ctx, req)
}

// WarmCommand wires CLI/Cron execution for cache warmup renders.
type WarmCommand struct {
	renderer   DocumentRenderer
	executor   WarmExecutor
	loader     WarmLoader
	cliConfig  gcmd.CLIConfig
	cronConfig gcmd.HandlerConfig
	limits     WarmLimits
	sleep      func(time.Duration)
}

// WarmOption customizes warmup commands.
type WarmOption func(*WarmCommand)

// WarmLimits bounds warmup throughput.
type WarmLimits struct {
	MaxRenders  int
	MinInterval time.Duration
}

// WithWarmCLIConfig overrides CLI configuration.
func WithWarmCLIConfig(cfg gcmd.CLIConfig) WarmOption {
	return func(cmd *WarmCommand) {
		cmd.cliConfig = cfg
	}
}

// WithWarmCronConfig overrides cron configuration.
func WithWarmCronConfig(cfg gcmd.HandlerConfig) WarmOption {
	return func(cmd *WarmCommand) {
		cmd.cronConfig = cfg
	}
}

// WithWarmLimits overrides warmup execution limits.
func WithWarmLimits(limits WarmLimits) WarmOption {
	return func(cmd *WarmCommand) {
		cmd.limits = limits
	}
}

// WithWarmExecutor routes warmup renders through the job pipeline instead of
// calling the service directly.
func WithWarmExecutor(executor WarmExecutor) WarmOption {
	return func(cmd *WarmCommand) {
		cmd.executor = executor
	}
}

// NewWarmupCommand creates a cache warmup CLI/Cron command.
func NewWarmupCommand(renderer DocumentRenderer, loader WarmLoader, opts ...WarmOption) *WarmCommand {
	cmd := &WarmCommand{
		renderer: renderer,
		loader:   loader,
		cliConfig: gcmd.CLIConfig{
			Path:        []string{"renders-warmup"},
			Description: "Pre-render notebooks to prime the cache",
			Group:       "renders",
		},
		cronConfig: gcmd.HandlerConfig{Expression: "0 * * * *"},
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cmd)
		}
	}
	return cmd
}

// CronHandler executes scheduled warmup renders.
func (c *WarmCommand) CronHandler() func() error {
	return func() error {
		_, err := c.run(context.Background(), "")
		return err
	}
}

// CronOptions returns cron configuration.
func (c *WarmCommand) CronOptions() gcmd.HandlerConfig {
	if c == nil {
		return gcmd.HandlerConfig{}
	}
	return c.cronConfig
}

// CLIHandler exposes the CLI handler.
func (c *WarmCommand) CLIHandler() any {
	return &warmCLI{cmd: c}
}

// CLIOptions returns CLI configuration.
func (c *WarmCommand) CLIOptions() gcmd.CLIConfig {
	if c == nil {
		return gcmd.CLIConfig{}
	}
	return c.cliConfig
}

func (c *WarmCommand) run(ctx context.Context, from string) (int, error) {
	if c == nil {
		return 0, errors.New("warmup command is nil", errors.CategoryInternal).
			WithTextCode("WARM_CMD_NIL")
	}
	if c.renderer == nil && c.executor == nil {
		return 0, errors.New("warmup renderer or executor is required", errors.CategoryValidation).
			WithTextCode("RENDERER_REQUIRED")
	}

	requests, err := c.loadRequests(ctx, from)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, item := range requests {
		if c.limits.MaxRenders > 0 && count >= c.limits.MaxRenders {
			break
		}
		req, err := item.toExportRequest()
		if err != nil {
			return count, err
		}
		if c.executor != nil {
			if _, err := c.executor.ExecuteRender(ctx, req); err != nil {
				return count, err
			}
		} else if _, err := c.renderer.RenderDocument(ctx, req); err != nil {
			return count, err
		}
		count++
		if c.limits.MinInterval > 0 && c.sleep != nil {
			c.sleep(c.limits.MinInterval)
		}
	}
	return count, nil
}

func (c *WarmCommand) loadRequests(ctx context.Context, from string) ([]WarmRequest, error) {
	if strings.TrimSpace(from) != "" {
		return loadWarmRequestsFromFile(from)
	}
	if c.loader == nil {
		return nil, errors.New("warmup loader not configured", errors.CategoryValidation).
			WithTextCode("LOADER_REQUIRED")
	}
	return c.loader(ctx)
}

type warmCLI struct {
	cmd  *WarmCommand
	From string `kong:"name='from',help='Path to JSON warmup render requests'"`
}

func (c *warmCLI) Run() error {
	if c == nil || c.cmd == nil {
		return errors.New("warmup command is required", errors.CategoryInternal).
			WithTextCode("WARM_CMD_NIL")
	}
	_, err := c.cmd.run(context.Background(), c.From)
	return err
}

func loadWarmRequestsFromFile(path string) ([]WarmRequest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "read warmup file failed").
			WithTextCode("WARM_FILE_READ")
	}

	var requests []WarmRequest
	if err := json.Unmarshal(content, &requests); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "warmup file invalid JSON").
			WithTextCode("WARM_FILE_INVALID")
	}
	return requests, nil
}

// NotebookBatch builds warm requests for a notebook list.
type NotebookBatch struct {
	Paths    []string
	Theme    string
	Backends string
}

// BuildWarmRequests returns warm requests for each notebook path.
func BuildWarmRequests(batch NotebookBatch) []WarmRequest {
	if len(batch.Paths) == 0 {
		return nil
	}
	requests := make([]WarmRequest, 0, len(batch.Paths))
	for _, path := range batch.Paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		requests = append(requests, WarmRequest{
			Path:     path,
			Theme:    batch.Theme,
			Backends: batch.Backends,
		})
	}
	return requests
}

// CLIHandler exposes cache clearing via CLI.
func (h *ClearRenderCacheHandler) CLIHandler() any {
	return &clearCacheCLI{handler: h}
}

// CLIOptions describes cache clearing CLI metadata.
func (h *ClearRenderCacheHandler) CLIOptions() gcmd.CLIConfig {
	return gcmd.CLIConfig{
		Path:        []string{"renders-cache-clear"},
		Description: "Drop memoized render artifacts",
		Group:       "renders",
	}
}

type clearCacheCLI struct {
	handler *ClearRenderCacheHandler
}

func (c *clearCacheCLI) Run() error {
	if c == nil || c.handler == nil {
		return errors.New("cache clear handler is required", errors.CategoryInternal).
			WithTextCode("CACHE_HANDLER_REQUIRED")
	}
	return c.handler.Execute(context.Background(), ClearRenderCache{})
}
