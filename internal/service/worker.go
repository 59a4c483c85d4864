package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vidfetch/vidfetch/internal/log"
	"github.com/vidfetch/vidfetch/internal/model"
	"github.com/vidfetch/vidfetch/internal/request"
)

// Worker answers one job request. Submissions are acknowledged right away
// and processed by a background Task, other commands are answered
// synchronously.
type Worker struct {
	plugin       string
	executor     Executor
	deliverer    Deliverer
	fallback     FallbackStore
	timeout      time.Duration
	timeoutScope string
	now          func() time.Time
}

func NewWorker(cfg model.Config) *Worker {
	return &Worker{
		plugin:       cfg.Plugin,
		executor:     NewExecutor(cfg.Tool),
		deliverer:    NewCallback(cfg.Callback, cfg.Plugin),
		fallback:     NewFallbackStore(cfg.Fallback.Path()),
		timeout:      cfg.Tool.TimeoutDuration(),
		timeoutScope: cfg.Tool.TimeoutScope,
		now:          time.Now,
	}
}

// WithDeliverer replaces the callback delivery, used by tests.
func (w *Worker) WithDeliverer(d Deliverer) *Worker {
	w.deliverer = d
	return w
}

// WithExecutor replaces the job executor, used by tests.
func (w *Worker) WithExecutor(e Executor) *Worker {
	w.executor = e
	return w
}

// TaskResult is what a Task ends with.
type TaskResult struct {
	Payload      model.Payload
	Delivery     Delivery
	FallbackPath string
}

// Task is the detached processing of one submission.
type Task struct {
	g       *errgroup.Group
	outcome TaskResult
}

// Wait blocks until the task is finished. A non nil error means the payload
// was neither delivered nor stored.
func (t *Task) Wait() (TaskResult, error) {
	err := t.g.Wait()
	return t.outcome, err
}

// Handle decodes raw and writes exactly one response line to out. For a
// submission the returned Task must be waited for before the process exits.
// A returned error has already been reported on out and is fatal.
func (w *Worker) Handle(ctx context.Context, raw []byte, out io.Writer) (*Task, error) {
	req, err := request.Decode(raw, w.now())
	if err != nil {
		return nil, w.fail(ctx, out, err)
	}

	ctx = log.ContextAttrs(ctx,
		slog.String("plugin", w.plugin),
		slog.String("request_id", req.RequestID),
	)

	switch req.Command {
	case model.CommandSubmit:
		if err := w.acknowledge(out, req); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "request accepted", "items", len(req.Jobs), "batch", req.Batch)
		return w.start(ctx, req), nil
	case model.CommandQuery:
		return nil, w.query(ctx, out, req)
	default:
		err := model.NewRequestError(model.CodeUnknownCommand, fmt.Errorf("%w: %q", model.ErrUnknownCommand, req.Command))
		return nil, w.fail(ctx, out, err)
	}
}

func (w *Worker) acknowledge(out io.Writer, req request.Request) error {
	msg := fmt.Sprintf(
		"Request %s accepted with %d item(s) and is running in the background. The result will replace this placeholder: %s",
		req.RequestID, len(req.Jobs), model.Placeholder(w.plugin, req.RequestID),
	)
	return model.WriteSuccess(out, msg)
}

func (w *Worker) query(ctx context.Context, out io.Writer, req request.Request) error {
	if req.RequestID == "" {
		return w.fail(ctx, out, model.NewRequestError(model.CodeMissingRequestID, model.ErrMissingRequestID))
	}
	payload, err := w.fallback.Load(w.plugin, req.RequestID)
	switch {
	case err == nil:
		return model.WriteSuccess(out, fmt.Sprintf("Request %s finished with status %s.\n%s", req.RequestID, payload.Status, payload.SummaryText))
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, model.ErrFallbackDisabled):
		return model.WriteSuccess(out, fmt.Sprintf("No stored result for request %s. Results are delivered through the callback once ready.", req.RequestID))
	default:
		return w.fail(ctx, out, model.NewRequestError(model.CodeInternal, err))
	}
}

func (w *Worker) fail(ctx context.Context, out io.Writer, err error) error {
	var reqErr *model.RequestError
	if !errors.As(err, &reqErr) {
		reqErr = model.NewRequestError(model.CodeInternal, err)
	}
	slog.ErrorContext(ctx, "request failed", "code", reqErr.Code, "error", reqErr.Err)
	if werr := model.WriteError(out, reqErr.Code, reqErr.Err, reqErr.Extra); werr != nil {
		return errors.Join(reqErr, werr)
	}
	return reqErr
}

func (w *Worker) start(ctx context.Context, req request.Request) *Task {
	t := &Task{g: &errgroup.Group{}}
	t.g.Go(func() error {
		var err error
		t.outcome, err = w.process(ctx, req)
		return err
	})
	return t
}

// process runs every job in order, then delivers the aggregate payload and
// stores it when delivery fails.
func (w *Worker) process(ctx context.Context, req request.Request) (TaskResult, error) {
	started := w.now()
	executor := w.executor
	runCtx := ctx
	if w.timeoutScope == model.TimeoutScopeBatch && w.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
		executor = executor.WithTimeout(0)
	}

	items := make([]model.ItemResult, 0, len(req.Jobs))
	for _, job := range req.Jobs {
		jctx := runCtx
		if job.Index != nil {
			jctx = log.ContextAttrs(runCtx, slog.Int("index", *job.Index))
		}
		item := executor.Execute(jctx, job)
		slog.InfoContext(jctx, "item finished", "success", item.Success, "exit_code", item.ExitCode, "url", item.URL)
		items = append(items, item)
	}

	payload := Aggregate(req.RequestID, w.plugin, started, w.now(), items)
	outcome := TaskResult{Payload: payload}
	slog.InfoContext(ctx, "request finished", "status", payload.Status)

	body, err := json.Marshal(payload)
	if err != nil {
		return outcome, fmt.Errorf("encoding payload: %w", err)
	}

	outcome.Delivery, err = w.deliverer.Deliver(ctx, req.RequestID, body)
	if err == nil {
		return outcome, nil
	}
	slog.ErrorContext(ctx, "callback delivery failed", "error", err, "attempts", len(outcome.Delivery.Attempts))

	path, ferr := w.fallback.Save(ctx, w.plugin, payload)
	if ferr != nil {
		slog.ErrorContext(ctx, "result lost: fallback unavailable",
			"error", ferr,
			"status", payload.Status,
			"summary", payload.SummaryText,
		)
		return outcome, errors.Join(err, ferr)
	}
	outcome.FallbackPath = path
	return outcome, nil
}
