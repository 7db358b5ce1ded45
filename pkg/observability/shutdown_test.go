package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(NewNopLogger(), time.Second)

	var order []string
	for _, name := range []string{"database", "redis", "otel"} {
		name := name
		sm.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"otel", "redis", "database"}, order)
}

func TestShutdownManager_ContinuesPastFailures(t *testing.T) {
	sm := NewShutdownManager(NewNopLogger(), time.Second)

	var closed bool
	sm.Register("database", func(ctx context.Context) error {
		closed = true
		return nil
	})
	sm.Register("redis", func(ctx context.Context) error {
		return errors.New("connection reset")
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: connection reset")
	assert.True(t, closed)
}

func TestShutdownManager_DrainsServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	sm := NewShutdownManager(NewNopLogger(), time.Second, srv)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.Wait(ctx))
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
}
