package nbexportjob

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-command/dispatcher"
	job "github.com/goliatone/go-job"
	rendercmd "github.com/goliatone/go-nbexport/command"
	"github.com/goliatone/go-nbexport/nbexport"
)

func okBackend() nbexport.Backend {
	return nbexport.NewBackend("tex", nbexport.CapTeX, func(ctx context.Context, in nbexport.RenderInput) (nbexport.BackendResult, error) {
		_ = ctx
		_ = in
		return nbexport.BackendResult{Body: []byte("%PDF-1.7 tex")}, nil
	})
}

func blockingBackend(started chan struct{}) nbexport.Backend {
	return nbexport.NewBackend("tex", nbexport.CapTeX, func(ctx context.Context, in nbexport.RenderInput) (nbexport.BackendResult, error) {
		_ = in
		select {
		case <-started:
		default:
			close(started)
		}
		<-ctx.Done()
		return nbexport.BackendResult{}, ctx.Err()
	})
}

func newTestService(t *testing.T, backends ...nbexport.Backend) nbexport.Service {
	t.Helper()
	engine := nbexport.NewEngine()
	engine.Backends = backends
	return nbexport.NewService(nbexport.ServiceConfig{Engine: engine})
}

func writeTestNotebook(t *testing.T) string {
	t.Helper()
	content := `{
  "nbformat": 4,
  "nbformat_minor": 5,
  "metadata": {},
  "cells": [
    {"cell_type": "markdown", "metadata": {}, "source": ["# Report"]}
  ]
}`
	path := filepath.Join(t.TempDir(), "weekly_report.ipynb")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write notebook: %v", err)
	}
	return path
}

func TestScheduler_ScheduleRenderPrimesCache(t *testing.T) {
	svc := newTestService(t, okBackend())
	path := writeTestNotebook(t)

	sub := dispatcher.SubscribeCommand(rendercmd.NewRenderDocumentHandler(svc))
	defer sub.Unsubscribe()

	task := NewRenderTask(TaskConfig{})
	cmd := job.NewTaskCommander(task)
	enqueuer := EnqueuerFunc(func(ctx context.Context, msg *job.ExecutionMessage) error {
		return cmd.Execute(ctx, msg)
	})

	scheduler := NewScheduler(Config{
		Enqueuer:    enqueuer,
		IDGenerator: func() string { return "warm-1" },
	})

	req := nbexport.ExportRequest{Path: path, Mask: nbexport.CapTeX}
	renderID, err := scheduler.ScheduleRender(context.Background(), req)
	if err != nil {
		t.Fatalf("schedule render: %v", err)
	}
	if renderID != "warm-1" {
		t.Fatalf("expected render id from generator, got %q", renderID)
	}

	result, err := svc.RenderDocument(context.Background(), req)
	if err != nil {
		t.Fatalf("render document: %v", err)
	}
	if !result.Cached {
		t.Fatalf("expected job execution to prime the cache")
	}
}

func TestScheduler_CancelStopsRender(t *testing.T) {
	started := make(chan struct{})
	svc := newTestService(t, blockingBackend(started))
	path := writeTestNotebook(t)

	sub := dispatcher.SubscribeCommand(rendercmd.NewRenderDocumentHandler(svc))
	defer sub.Unsubscribe()

	registry := NewCancelRegistry()
	task := NewRenderTask(TaskConfig{CancelRegistry: registry})
	cmd := job.NewTaskCommander(task)

	done := make(chan error, 1)
	enqueuer := EnqueuerFunc(func(ctx context.Context, msg *job.ExecutionMessage) error {
		go func() {
			done <- cmd.Execute(ctx, msg)
		}()
		return nil
	})

	scheduler := NewScheduler(Config{
		Enqueuer:    enqueuer,
		IDGenerator: func() string { return "warm-1" },
	})

	renderID, err := scheduler.ScheduleRender(context.Background(), nbexport.ExportRequest{
		Path: path,
		Mask: nbexport.CapTeX,
	})
	if err != nil {
		t.Fatalf("schedule render: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not start")
	}

	if err := registry.Cancel(context.Background(), renderID); err != nil {
		t.Fatalf("cancel render: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected canceled job to fail")
		}
		if nbexport.KindFromError(err) != nbexport.KindCanceled {
			t.Fatalf("expected canceled kind, got %v", err)
		}
		if !strings.Contains(err.Error(), renderID) {
			t.Fatalf("expected cause to name render %q, got %v", renderID, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not finish")
	}

	if err := registry.Cancel(context.Background(), renderID); err == nil {
		t.Fatalf("expected finished render to be unregistered")
	}
}

type tempNetError struct{}

func (tempNetError) Error() string   { return "temporary" }
func (tempNetError) Timeout() bool   { return false }
func (tempNetError) Temporary() bool { return true }

func TestRenderTask_RetriesRetryableErrors(t *testing.T) {
	var attempts int
	policy := RetryPolicy{
		MaxRetries: 2,
		Backoff: job.BackoffConfig{
			Strategy: job.BackoffNone,
		},
	}
	task := NewRenderTask(TaskConfig{
		RetryPolicy: policy,
		Dispatch: func(ctx context.Context, msg rendercmd.RenderDocument) error {
			_ = ctx
			if msg.Request.Path != "notebooks/weekly_report.ipynb" {
				t.Fatalf("unexpected path %q", msg.Request.Path)
			}
			attempts++
			if attempts < 3 {
				return tempNetError{}
			}
			return nil
		},
	})

	encoded, err := encodePayload(Payload{
		RenderID: "warm-1",
		Path:     "notebooks/weekly_report.ipynb",
		Backends: nbexport.CapTeX,
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	err = task.Execute(context.Background(), &job.ExecutionMessage{
		Parameters: map[string]any{"payload": encoded},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRenderTask_DoesNotRetryExhaustion(t *testing.T) {
	var attempts int
	task := NewRenderTask(TaskConfig{
		RetryPolicy: RetryPolicy{MaxRetries: 3},
		Dispatch: func(ctx context.Context, msg rendercmd.RenderDocument) error {
			_ = ctx
			_ = msg
			attempts++
			return nbexport.NewError(nbexport.KindUnavailable, "no enabled backend produced a document", nil)
		},
	})

	encoded, err := encodePayload(Payload{Path: "notebooks/weekly_report.ipynb"})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	err = task.Execute(context.Background(), &job.ExecutionMessage{
		Parameters: map[string]any{"payload": encoded},
	})
	if !nbexport.IsNotAvailable(err) {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
}

func TestRenderTask_PayloadDecodeTolerance(t *testing.T) {
	want := Payload{
		RenderID: "warm-1",
		Path:     "notebooks/weekly_report.ipynb",
		Theme:    "dark",
		Backends: nbexport.CapTeX,
	}
	raw, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	cases := map[string]any{
		"struct":  want,
		"pointer": &want,
		"raw":     json.RawMessage(raw),
		"bytes":   raw,
		"string":  string(raw),
		"map": map[string]any{
			"render_id": "warm-1",
			"path":      "notebooks/weekly_report.ipynb",
			"theme":     "dark",
			"backends":  "tex",
		},
	}

	for name, value := range cases {
		payload, err := decodePayload(&job.ExecutionMessage{
			Parameters: map[string]any{"payload": value},
		})
		if err != nil {
			t.Fatalf("%s: decode payload: %v", name, err)
		}
		if payload.Path != want.Path {
			t.Fatalf("%s: expected path %q, got %q", name, want.Path, payload.Path)
		}
		if payload.Backends != nbexport.CapTeX {
			t.Fatalf("%s: expected tex mask, got %s", name, payload.Backends)
		}
		if payload.Theme != "dark" {
			t.Fatalf("%s: expected dark theme, got %q", name, payload.Theme)
		}
	}

	if _, err := decodePayload(nil); err == nil {
		t.Fatalf("expected nil message to fail")
	}
	if _, err := decodePayload(&job.ExecutionMessage{Parameters: map[string]any{}}); err == nil {
		t.Fatalf("expected missing payload to fail")
	}
	if _, err := decodePayload(&job.ExecutionMessage{Parameters: map[string]any{"payload": []byte{}}}); err == nil {
		t.Fatalf("expected empty payload to fail")
	}
}
