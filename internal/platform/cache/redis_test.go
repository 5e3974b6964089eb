package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := New(context.Background(), Options{Addr: srv.Addr(), DB: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	v, err := srv.DB(2).Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
	require.False(t, srv.Exists("k"))
}

func TestNewFailsWithoutServer(t *testing.T) {
	_, err := New(context.Background(), Options{})
	require.Error(t, err)

	srv, err := miniredis.Run()
	require.NoError(t, err)
	addr := srv.Addr()
	srv.Close()
	_, err = New(context.Background(), Options{Addr: addr})
	require.Error(t, err)
}

func TestAsynqOptsMirrorsSettings(t *testing.T) {
	opts := Options{Addr: "redis:6379", Password: "pw", DB: 3, PoolSize: 20}.AsynqOpts()
	require.Equal(t, "redis:6379", opts.Addr)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, 20, opts.PoolSize)
}
