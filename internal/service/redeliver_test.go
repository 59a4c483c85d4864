package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vidfetch/vidfetch/internal/model"
	"github.com/vidfetch/vidfetch/internal/service"

	"github.com/stretchr/testify/require"
)

func TestRedeliverer(t *testing.T) {
	t.Parallel()

	t.Run("delivered", func(t *testing.T) {
		store := service.NewFallbackStore(t.TempDir())
		for _, id := range []string{"r1", "r2"} {
			_, err := store.Save(t.Context(), "VideoFetcher", testPayload(id))
			require.NoError(t, err)
		}
		srv := newCallbackServer(t, http.StatusOK)
		cb := testCallback(srv.URL, 1).WithClient(srv.Client())

		report, err := service.NewRedeliverer("VideoFetcher", store, cb, 0).Run(t.Context())
		require.NoError(t, err)
		require.Equal(t, service.RedeliverReport{Delivered: 2}, report)

		reqs := srv.Requests()
		require.Len(t, reqs, 2)
		require.Equal(t, "/VideoFetcher/r1", reqs[0].Path)
		require.Equal(t, "/VideoFetcher/r2", reqs[1].Path)
		var p model.Payload
		require.NoError(t, json.Unmarshal(reqs[0].Body, &p))
		require.Equal(t, testPayload("r1"), p)
		require.NotContains(t, string(reqs[0].Body), "\n")

		paths, err := store.List("VideoFetcher")
		require.NoError(t, err)
		require.Empty(t, paths)
	})

	t.Run("rejected stays", func(t *testing.T) {
		store := service.NewFallbackStore(t.TempDir())
		path, err := store.Save(t.Context(), "VideoFetcher", testPayload("r1"))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "VideoFetcher-broken.json"), []byte("{"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "VideoFetcher-r9.json"), []byte(`{"requestId":"r9","status":"Done"}`), 0o644))

		srv := newCallbackServer(t, http.StatusBadRequest)
		cb := testCallback(srv.URL, 3).WithClient(srv.Client())

		report, err := service.NewRedeliverer("VideoFetcher", store, cb, 100).Run(t.Context())
		require.Error(t, err)
		require.ErrorIs(t, err, model.ErrDeliveryRejected)
		require.Equal(t, service.RedeliverReport{Failed: 3}, report)
		require.ErrorContains(t, err, "payload validation failed")
		require.Len(t, srv.Requests(), 1)
		require.FileExists(t, path)
	})

	t.Run("disabled", func(t *testing.T) {
		_, err := service.NewRedeliverer("VideoFetcher", service.NewFallbackStore(""), nil, 0).Run(t.Context())
		require.ErrorIs(t, err, model.ErrFallbackDisabled)
	})
}

func TestRedelivererSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("skipped in short mode")
	}
	t.Parallel()

	store := service.NewFallbackStore(t.TempDir())
	_, err := store.Save(t.Context(), "VideoFetcher", testPayload("r1"))
	require.NoError(t, err)
	srv := newCallbackServer(t, http.StatusOK)
	r := service.NewRedeliverer("VideoFetcher", store, testCallback(srv.URL, 1).WithClient(srv.Client()), 0)

	ctx, cancel := context.WithTimeout(t.Context(), 2500*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Schedule(ctx, "@every 1s"))

	require.Len(t, srv.Requests(), 1)
	paths, err := store.List("VideoFetcher")
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestRedelivererScheduleInvalid(t *testing.T) {
	r := service.NewRedeliverer("VideoFetcher", service.NewFallbackStore(t.TempDir()), nil, 0)
	err := r.Schedule(t.Context(), "* * 32 * *")
	require.Error(t, err)
	require.EqualError(t, err, "parsing schedule: end of range (32) above maximum (31): 32")
}
