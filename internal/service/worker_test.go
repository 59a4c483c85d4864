package service_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/vidfetch/vidfetch/internal/model"
	"github.com/vidfetch/vidfetch/internal/service"

	"github.com/stretchr/testify/require"
)

var requestIDRx = regexp.MustCompile(`^\d{14}-[0-9a-f]{8}$`)

type workerFixture struct {
	cfg      model.Config
	callback *callbackServer
	worker   *service.Worker
}

func newWorkerFixture(t *testing.T, tool string, attempts int, statuses ...int) workerFixture {
	t.Helper()
	srv := newCallbackServer(t, statuses...)
	cfg := model.DefaultConfig()
	cfg.Tool.Path = tool
	cfg.Callback.BaseURL = srv.URL
	cfg.Callback.MaxAttempts = attempts
	cfg.Fallback.Dir = filepath.Join(t.TempDir(), "async_results")

	cb := service.NewCallback(cfg.Callback, cfg.Plugin).WithClient(srv.Client()).WithSleep(noSleep)
	return workerFixture{
		cfg:      cfg,
		callback: srv,
		worker:   service.NewWorker(cfg).WithDeliverer(cb),
	}
}

func (f workerFixture) submit(t *testing.T, raw string) (ack map[string]any, outcome service.TaskResult) {
	t.Helper()
	var out bytes.Buffer
	task, err := f.worker.Handle(t.Context(), []byte(raw), &out)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, 1, bytes.Count(out.Bytes(), []byte("\n")), "exactly one response line")
	ack = decodeLine(t, out.Bytes())

	outcome, err = task.Wait()
	require.NoError(t, err)
	return ack, outcome
}

func (f workerFixture) delivered(t *testing.T, n int) model.Payload {
	t.Helper()
	reqs := f.callback.Requests()
	require.Greater(t, len(reqs), n)
	var p model.Payload
	require.NoError(t, json.Unmarshal(reqs[n].Body, &p))
	return p
}

func TestWorkerSingleSucceeds(t *testing.T) {
	t.Parallel()
	tool, _ := downloadTool(t, "")
	f := newWorkerFixture(t, tool, 3, http.StatusOK)

	ack, outcome := f.submit(t, `{"command":"submit","url":"https://example/video"}`)

	payload := f.delivered(t, 0)
	require.Regexp(t, requestIDRx, payload.RequestID)
	require.Equal(t, "success", ack["status"])
	require.Contains(t, ack["result"], model.Placeholder("VideoFetcher", payload.RequestID))
	require.Equal(t, "/VideoFetcher/"+payload.RequestID, f.callback.Requests()[0].Path)
	require.NoError(t, model.ValidatePayload(f.callback.Requests()[0].Body))

	require.Equal(t, model.StatusSucceed, payload.Status)
	require.Len(t, payload.Items, 1)
	require.True(t, payload.Items[0].Success)
	require.Len(t, payload.Items[0].Files, 1)
	require.Nil(t, payload.Items[0].Index)
	require.False(t, payload.FinishedAt.Before(payload.StartedAt))

	require.True(t, outcome.Delivery.Delivered)
	require.Empty(t, outcome.FallbackPath)
	require.Equal(t, payload.RequestID, outcome.Payload.RequestID)
}

func TestWorkerBatchPartial(t *testing.T) {
	t.Parallel()
	tool, _ := downloadTool(t, "u2")
	f := newWorkerFixture(t, tool, 3, http.StatusOK)

	ack, _ := f.submit(t, `{"command0":"submit","url0":"u1","command1":"submit","url1":"u2","requestId":"batch-1"}`)
	require.Contains(t, ack["result"], "2 item(s)")
	require.Contains(t, ack["result"], "{{VCP_ASYNC_RESULT::VideoFetcher::batch-1}}")

	payload := f.delivered(t, 0)
	require.Equal(t, "batch-1", payload.RequestID)
	require.Equal(t, model.StatusPartial, payload.Status)
	require.Len(t, payload.Items, 2)
	require.Equal(t, 0, *payload.Items[0].Index)
	require.True(t, payload.Items[0].Success)
	require.Equal(t, 1, *payload.Items[1].Index)
	require.False(t, payload.Items[1].Success)
	require.Equal(t, 1, payload.Items[1].ExitCode)
	require.Contains(t, payload.SummaryText, "[1] FAIL u2")
	require.NoError(t, model.ValidatePayload(f.callback.Requests()[0].Body))
}

func TestWorkerBatchInvalidItem(t *testing.T) {
	t.Parallel()
	tool, _ := downloadTool(t, "")
	f := newWorkerFixture(t, tool, 1, http.StatusOK)

	f.submit(t, `{"url0":"u1","command1":"search","url1":"u2","url2":""}`)

	payload := f.delivered(t, 0)
	require.Equal(t, model.StatusPartial, payload.Status)
	require.Len(t, payload.Items, 3)
	require.True(t, payload.Items[0].Success)
	require.Equal(t, "INVALID_ITEM", payload.Items[1].ErrorTag)
	require.Contains(t, payload.Items[1].Error, "search")
	require.Equal(t, "INVALID_ITEM", payload.Items[2].ErrorTag)
}

func TestWorkerBatchFirstItemInvalid(t *testing.T) {
	t.Parallel()
	tool, _ := downloadTool(t, "")

	for _, command := range []string{"download", "query"} {
		f := newWorkerFixture(t, tool, 1, http.StatusOK)
		raw := `{"command0":"` + command + `","url0":"a","command1":"submit","url1":"b"}`
		ack, _ := f.submit(t, raw)
		require.Equal(t, "success", ack["status"], command)

		payload := f.delivered(t, 0)
		require.Equal(t, model.StatusPartial, payload.Status, command)
		require.Len(t, payload.Items, 2)
		require.False(t, payload.Items[0].Success)
		require.Equal(t, "INVALID_ITEM", payload.Items[0].ErrorTag)
		require.Contains(t, payload.Items[0].Error, command)
		require.True(t, payload.Items[1].Success)
	}
}

func TestWorkerPostProcessingDegraded(t *testing.T) {
	t.Parallel()
	out := t.TempDir()
	tool := fakeTool(t, `echo "ERROR: Postprocessing: ffprobe and ffmpeg not found. Please install or provide the path using --ffmpeg-location" >&2
printf 'audio' > "`+out+`/a.webm"
echo "`+out+`/a.webm"`)
	f := newWorkerFixture(t, tool, 1, http.StatusOK)

	f.submit(t, `{"url":"https://example/song","audioOnly":true,"audioFormat":"mp3"}`)

	payload := f.delivered(t, 0)
	require.Equal(t, model.StatusPartial, payload.Status)
	require.True(t, payload.Items[0].Success)
	require.True(t, payload.Items[0].Degraded)
	require.Contains(t, payload.Items[0].DiagnosticNotes[0], "post-processing tool unavailable")
	require.Contains(t, payload.SummaryText, "(post-processing degraded)")
	require.NoError(t, model.ValidatePayload(f.callback.Requests()[0].Body))
}

func TestWorkerCallbackExhausted(t *testing.T) {
	t.Parallel()
	tool, _ := downloadTool(t, "")
	f := newWorkerFixture(t, tool, 3, http.StatusInternalServerError)

	_, outcome := f.submit(t, `{"command":"submit","url":"https://example/video","requestId":"r-500"}`)

	require.Len(t, f.callback.Requests(), 3)
	require.Len(t, outcome.Delivery.Attempts, 3)
	require.False(t, outcome.Delivery.Delivered)

	path := filepath.Join(f.cfg.Fallback.Dir, "VideoFetcher-r-500.json")
	require.Equal(t, path, outcome.FallbackPath)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored model.Payload
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Equal(t, outcome.Payload, stored)
	require.Equal(t, f.delivered(t, 2), stored)
}

func TestWorkerCallbackRejected(t *testing.T) {
	t.Parallel()
	tool, _ := downloadTool(t, "")
	f := newWorkerFixture(t, tool, 8, http.StatusBadRequest)

	_, outcome := f.submit(t, `{"command":"submit","url":"https://example/video","requestId":"r-400"}`)

	require.Len(t, f.callback.Requests(), 1)
	require.Len(t, outcome.Delivery.Attempts, 1)
	require.FileExists(t, filepath.Join(f.cfg.Fallback.Dir, "VideoFetcher-r-400.json"))
}

func TestWorkerResultLost(t *testing.T) {
	t.Parallel()
	tool, _ := downloadTool(t, "")
	f := newWorkerFixture(t, tool, 1, http.StatusServiceUnavailable)
	cfg := f.cfg
	cfg.Fallback = model.Fallback{}
	cb := service.NewCallback(cfg.Callback, cfg.Plugin).WithClient(f.callback.Client()).WithSleep(noSleep)
	w := service.NewWorker(cfg).WithDeliverer(cb)

	var out bytes.Buffer
	task, err := w.Handle(t.Context(), []byte(`{"url":"https://example/video"}`), &out)
	require.NoError(t, err)
	_, err = task.Wait()
	require.ErrorIs(t, err, model.ErrDeliveryExhausted)
	require.ErrorIs(t, err, model.ErrFallbackDisabled)
}

func TestWorkerBatchTimeout(t *testing.T) {
	t.Parallel()
	tool := fakeTool(t, `exec sleep 10`)
	f := newWorkerFixture(t, tool, 1, http.StatusOK)
	cfg := f.cfg
	cfg.Tool.Timeout = model.Duration(300 * time.Millisecond)
	cfg.Tool.TimeoutScope = model.TimeoutScopeBatch
	cb := service.NewCallback(cfg.Callback, cfg.Plugin).WithClient(f.callback.Client())
	w := service.NewWorker(cfg).WithDeliverer(cb)

	var out bytes.Buffer
	started := time.Now()
	task, err := w.Handle(t.Context(), []byte(`{"url0":"a","url1":"b","url2":"c"}`), &out)
	require.NoError(t, err)
	outcome, err := task.Wait()
	require.NoError(t, err)
	require.Less(t, time.Since(started), 5*time.Second)

	require.Equal(t, model.StatusFailed, outcome.Payload.Status)
	require.Len(t, outcome.Payload.Items, 3)
	for _, it := range outcome.Payload.Items {
		require.False(t, it.Success)
		require.Equal(t, string(service.TagTimeout), it.ErrorTag)
	}
}

func TestWorkerErrors(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t, "yt-dlp", 1)

	cases := []struct {
		scenario string
		given    string
		code     string
	}{
		{"empty", "  \n", model.CodeEmptyInput},
		{"invalid json", "{", model.CodeInvalidJSON},
		{"not an object", "null", model.CodeInvalidJSON},
		{"missing url", `{"command":"submit"}`, model.CodeMissingURL},
		{"unknown command", `{"command":"explode","url":"u"}`, model.CodeUnknownCommand},
		{"query without id", `{"command":"query"}`, model.CodeMissingRequestID},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			var out bytes.Buffer
			task, err := f.worker.Handle(t.Context(), []byte(tc.given), &out)
			require.Error(t, err)
			require.Nil(t, task)
			var reqErr *model.RequestError
			require.ErrorAs(t, err, &reqErr)
			require.Equal(t, tc.code, reqErr.Code)

			line := decodeLine(t, out.Bytes())
			require.Equal(t, "error", line["status"])
			require.Equal(t, tc.code, line["code"])
			require.NotEmpty(t, line["error"])
		})
	}
	require.Empty(t, f.callback.Requests())
}

func TestWorkerQuery(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t, "yt-dlp", 1)
	store := service.NewFallbackStore(f.cfg.Fallback.Dir)
	_, err := store.Save(t.Context(), f.cfg.Plugin, testPayload("stored-1"))
	require.NoError(t, err)

	t.Run("stored", func(t *testing.T) {
		var out bytes.Buffer
		task, err := f.worker.Handle(t.Context(), []byte(`{"command":"query","requestId":"stored-1"}`), &out)
		require.NoError(t, err)
		require.Nil(t, task)
		line := decodeLine(t, out.Bytes())
		require.Equal(t, "success", line["status"])
		require.Contains(t, line["result"], "finished with status Succeed")
		require.Contains(t, line["result"], "Processed 1 item(s)")
	})

	t.Run("unknown", func(t *testing.T) {
		var out bytes.Buffer
		_, err := f.worker.Handle(t.Context(), []byte(`{"command":"query","taskId":"other"}`), &out)
		require.NoError(t, err)
		line := decodeLine(t, out.Bytes())
		require.Equal(t, "success", line["status"])
		require.Contains(t, line["result"], "No stored result for request other")
	})
}
