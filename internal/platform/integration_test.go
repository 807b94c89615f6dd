package platform_test

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/shelf"
	"github.com/aretw0/shelf/pkg/adapters/fs"
	"github.com/aretw0/shelf/pkg/agent"
	"github.com/aretw0/shelf/pkg/core"
)

type running struct {
	server  *shelf.Server
	url     string
	dataDir string
	stop    func()
	done    chan error
	once    sync.Once
}

func startServer(t *testing.T, dataDir string, opts ...shelf.Option) *running {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	server, err := shelf.NewServer(ctx, dataDir, opts...)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	r := &running{
		server:  server,
		url:     "ws://" + ln.Addr().String() + "/ws",
		dataDir: dataDir,
		stop:    cancel,
		done:    make(chan error, 1),
	}
	go func() { r.done <- server.Serve(ctx, ln) }()
	t.Cleanup(r.shutdown)
	return r
}

func (r *running) shutdown() {
	r.once.Do(func() {
		r.stop()
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
		}
	})
}

func newClient(t *testing.T, url, dataDir string) *shelf.Client {
	t.Helper()
	c, err := shelf.NewClient(context.Background(), url, dataDir,
		shelf.WithReconnectDelay(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func addItem(id string) shelf.Mutation {
	return func(d core.Document) (core.Document, error) {
		return core.AddItem(d, core.Item{ID: id, Title: id, Icon: core.IconBook}), nil
	}
}

func TestServer_EditPersistsOnShutdown(t *testing.T) {
	dataDir := t.TempDir()
	srv := startServer(t, dataDir, shelf.WithSaveInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := newClient(t, srv.url, t.TempDir())
	snap, err := client.Edit(ctx, 2*time.Second, addItem("a"))
	require.NoError(t, err)
	assert.True(t, snap.Live)

	require.Eventually(t, func() bool {
		got, err := srv.server.Hub.Document(context.Background())
		return err == nil && got.Equal(snap.Document)
	}, 2*time.Second, 20*time.Millisecond)

	// The save interval is an hour: only the shutdown flush can write it.
	srv.shutdown()
	data, err := os.ReadFile(filepath.Join(dataDir, fs.DefaultPrimaryName))
	require.NoError(t, err)
	saved, err := core.DecodeDocument(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, saved.ItemOrder)
}

func TestServer_RestartsFromDisk(t *testing.T) {
	dataDir := t.TempDir()
	first := startServer(t, dataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := newClient(t, first.url, t.TempDir()).Edit(ctx, 2*time.Second, addItem("kept"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := first.server.Hub.Document(context.Background())
		return err == nil && len(got.Items) == 1
	}, 2*time.Second, 20*time.Millisecond)
	first.shutdown()

	second := startServer(t, dataDir)
	snap, err := newClient(t, second.url, t.TempDir()).Fetch(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, snap.Live)
	assert.Equal(t, []string{"kept"}, snap.Document.ItemOrder)
}

func TestClient_OfflineEditSentLater(t *testing.T) {
	clientDir := t.TempDir()

	// Reserve an address, then free it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	offline := newClient(t, "ws://"+addr+"/ws", clientDir)
	snap, err := offline.Edit(ctx, time.Second, addItem("late"))
	require.NoError(t, err)
	assert.False(t, snap.Live)

	pending, ok, err := offline.Cache.Get(ctx, core.SlotPending)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"late"}, pending.ItemOrder)
	require.NoError(t, offline.Close())

	srv := startServer(t, t.TempDir())
	online := newClient(t, srv.url, clientDir)
	snap, err = online.Fetch(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, snap.Live)
	assert.Equal(t, []string{"late"}, snap.Document.ItemOrder, "pending edit reached the server first")

	_, ok, err = online.Cache.Get(ctx, core.SlotPending)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServer_AdoptsHandEditedFile(t *testing.T) {
	dataDir := t.TempDir()
	srv := startServer(t, dataDir, shelf.WithWatch(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := newClient(t, srv.url, t.TempDir())
	_, err := client.Fetch(ctx, 2*time.Second)
	require.NoError(t, err)

	edited := core.AddItem(core.Empty(), core.Item{ID: "by-hand", Title: "Edited", Icon: core.IconArrowUp})
	data, err := edited.MarshalIndent()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return srv.server.Store.State().(fs.StoreState).Watching
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, fs.DefaultPrimaryName), data, 0644))

	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-client.Agent.Events():
			if e.Kind == agent.EventStateUpdate && e.Document.Equal(edited) {
				return
			}
		case <-timeout:
			t.Fatal("hand edit was not broadcast")
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServer_RoutesLifecycleLogs(t *testing.T) {
	t.Cleanup(func() { lifecycle.SetLogger(nil) })

	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	startServer(t, t.TempDir(), shelf.WithLogger(logger), shelf.WithWatch(true))

	// The state watcher runs under a lifecycle supervisor.
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "starting supervisor")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "component=lifecycle")
}
