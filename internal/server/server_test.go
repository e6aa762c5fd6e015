package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ShutdownOrder(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(http.NotFoundHandler(), 0, time.Second, time.Second, 5*time.Second, logger)

	var (
		mu    sync.Mutex
		order []string
	)
	hook := func(name string, err error) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return err
		}
	}

	errCache := errors.New("cache close failed")
	srv.OnShutdown("database", hook("database", nil))
	srv.OnShutdown("cache", hook("cache", errCache))
	srv.OnShutdown("events", hook("events", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := srv.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errCache)
	assert.Equal(t, []string{"events", "cache", "database"}, order)
}

func TestServer_ListenFailureStillRunsHooks(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(http.NotFoundHandler(), -1, time.Second, time.Second, time.Second, logger)

	closed := false
	srv.OnShutdown("database", func(context.Context) error {
		closed = true
		return nil
	})

	err := srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
	assert.True(t, closed)
}

func TestServer_Addr(t *testing.T) {
	t.Parallel()

	srv := New(http.NotFoundHandler(), 8080, time.Second, time.Second, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, ":8080", srv.Addr())
}
