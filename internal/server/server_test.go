package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrank/reelrank/internal/config"
)

func TestServer_StopsOnContextAndRunsHooks(t *testing.T) {
	srv := New(config.ServerConfig{Host: "127.0.0.1", Port: 0, WriteTimeout: time.Second}, http.NotFoundHandler())

	var order []string
	srv.OnShutdown(
		func(context.Context) error { order = append(order, "first"); return errors.New("ignored") },
		func(context.Context) error { order = append(order, "second"); return nil },
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, []string{"first", "second"}, order)
}
