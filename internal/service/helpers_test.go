package service_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTool writes an executable shell script standing in for yt-dlp.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	require.NoError(t, err)
	return path
}

// downloadTool prints one created file per call and exits 1 when the
// locator equals failOn.
func downloadTool(t *testing.T, failOn string) (tool string, outDir string) {
	t.Helper()
	outDir = t.TempDir()
	tool = fakeTool(t, `for a; do url="$a"; done
if [ "$url" = "`+failOn+`" ]; then
  echo "ERROR: [generic] unable to download $url" >&2
  exit 1
fi
f="`+outDir+`/$(printf %s "$url" | tr -c 'A-Za-z0-9' _).mp4"
printf 'fake video' > "$f"
echo "[download] Destination: $f" >&2
echo "$f"`)
	return tool, outDir
}

type recorded struct {
	Path string
	Body []byte
}

// callbackServer answers with statuses in order, repeating the last one.
type callbackServer struct {
	*httptest.Server
	mu       sync.Mutex
	statuses []int
	requests []recorded
}

func newCallbackServer(t *testing.T, statuses ...int) *callbackServer {
	t.Helper()
	cs := &callbackServer{statuses: statuses}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs.mu.Lock()
		n := len(cs.requests)
		cs.requests = append(cs.requests, recorded{Path: r.URL.Path, Body: body})
		status := http.StatusOK
		if len(cs.statuses) > 0 {
			status = cs.statuses[min(n, len(cs.statuses)-1)]
		}
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *callbackServer) Requests() []recorded {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]recorded(nil), cs.requests...)
}

func noSleep(context.Context, time.Duration) error {
	return nil
}

func decodeLine(t *testing.T, line []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(line, &m))
	return m
}
