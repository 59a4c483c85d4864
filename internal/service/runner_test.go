package service_test

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/vidfetch/vidfetch/internal/service"

	"github.com/stretchr/testify/require"
)

func TestRunner(t *testing.T) {
	t.Parallel()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	t.Run("exit code", func(t *testing.T) {
		res, err := service.NewRunner().Run(t.Context(), service.Command{
			Path:    sh,
			Args:    []string{"-c", "echo out; echo err >&2; exit 3"},
			Timeout: 5 * time.Second,
		})
		require.NoError(t, err)
		require.Equal(t, 3, res.ExitCode)
		require.Equal(t, "out\n", res.Stdout)
		require.Equal(t, "err\n", res.Stderr)
		require.Equal(t, sh, res.Path)
		require.False(t, res.Started.IsZero())
		require.GreaterOrEqual(t, res.Elapsed(), time.Duration(0))
	})

	t.Run("stderr lines", func(t *testing.T) {
		var mu sync.Mutex
		var lines []string
		runner := service.NewRunner().WithStderr(func(_ context.Context, line string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, line)
		})
		res, err := runner.Run(t.Context(), service.Command{
			Path: sh,
			Args: []string{"-c", `printf 'one\ntwo\r\nthree' >&2`},
		})
		require.NoError(t, err)
		require.Zero(t, res.ExitCode)
		require.Equal(t, "one\ntwo\r\nthree", res.Stderr)
		require.Equal(t, []string{"one", "two", "three"}, lines)
	})

	t.Run("env", func(t *testing.T) {
		res, err := service.NewRunner().Run(t.Context(), service.Command{
			Path: sh,
			Args: []string{"-c", `printf %s "$VIDFETCH_TEST"`},
			Env:  []string{"VIDFETCH_TEST=golang"},
		})
		require.NoError(t, err)
		require.Equal(t, "golang", res.Stdout)
	})

	t.Run("timeout", func(t *testing.T) {
		res, err := service.NewRunner().Run(t.Context(), service.Command{
			Path:    sh,
			Args:    []string{"-c", "echo started; exec sleep 10"},
			Timeout: 100 * time.Millisecond,
		})
		require.Error(t, err)
		var runErr *service.RunError
		require.ErrorAs(t, err, &runErr)
		require.Equal(t, service.TagTimeout, runErr.Tag)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, -1, res.ExitCode)
		require.Equal(t, "started\n", res.Stdout)
		require.Less(t, res.Elapsed(), 5*time.Second)
	})

	t.Run("spawn error", func(t *testing.T) {
		_, err := service.NewRunner().Run(t.Context(), service.Command{
			Path: "/nonexistent/yt-dlp",
		})
		var runErr *service.RunError
		require.ErrorAs(t, err, &runErr)
		require.Equal(t, service.TagSpawn, runErr.Tag)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := service.NewRunner().Run(ctx, service.Command{
			Path: sh,
			Args: []string{"-c", "exit 0"},
		})
		var runErr *service.RunError
		require.ErrorAs(t, err, &runErr)
		require.Equal(t, service.TagCanceled, runErr.Tag)
		require.ErrorIs(t, err, context.Canceled)
	})
}
