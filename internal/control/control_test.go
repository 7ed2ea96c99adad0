package control

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusbsync/assets"
	"fusbsync/internal/app"
	"fusbsync/internal/config"
	"fusbsync/internal/mount"
	"fusbsync/internal/store"
)

type env struct {
	client *Client
	http   *httptest.Server
	drive  string
	target string
	quits  atomic.Int32
}

func setup(t *testing.T, opts ...func(*app.Options)) *env {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := config.Load(filepath.Join(t.TempDir(), "settings.ini"), logger)
	require.NoError(t, err)
	e := &env{drive: t.TempDir(), target: t.TempDir()}
	require.NoError(t, cfg.SetLocalFolder(e.target))
	require.NoError(t, cfg.Set(config.KeyPurgeSource, "never"))
	require.NoError(t, cfg.Set(config.KeyIconPath, filepath.Join(t.TempDir(), "missing.png")))

	p := filepath.Join(e.drive, "DCIM", "IMG_0001.JPG")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0o644))

	lister := mount.ListerFunc(func(context.Context) ([]mount.Drive, error) {
		return []mount.Drive{mount.Drive(e.drive)}, nil
	})
	w, err := mount.NewWatcher(ctx, lister, logger)
	require.NoError(t, err)

	so := app.Options{Config: cfg, Logger: logger}
	for _, o := range opts {
		o(&so)
	}
	srv := NewServer(ServerOptions{
		Syncer:  app.New(so),
		Watcher: w,
		Quit:    func() { e.quits.Add(1) },
	})
	e.http = httptest.NewServer(srv.Handler())
	t.Cleanup(e.http.Close)
	e.client = NewClient(e.http.URL + "/rpc")
	return e
}

func TestInitialize(t *testing.T) {
	e := setup(t)
	var out struct {
		Server struct {
			Name string `json:"name"`
		} `json:"server"`
		Settings string `json:"settings"`
	}
	require.NoError(t, e.client.Call(context.Background(), "initialize", nil, &out))
	assert.Equal(t, "fusb_sync", out.Server.Name)
	assert.True(t, strings.HasSuffix(out.Settings, "settings.ini"))
}

func TestDrivesAndSettings(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	drives, err := e.client.Drives(ctx)
	require.NoError(t, err)
	assert.Equal(t, []mount.Drive{mount.Drive(e.drive)}, drives)

	var out struct {
		Settings map[string]string `json:"settings"`
	}
	require.NoError(t, e.client.Call(ctx, "settings/get", nil, &out))
	assert.Equal(t, e.target, out.Settings[config.KeyLocalFolder])
	assert.Equal(t, "never", out.Settings[config.KeyPurgeSource])
}

func TestSyncRun(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rep, err := e.client.Sync(ctx, e.drive)
	require.NoError(t, err)
	require.Len(t, rep.Result.Copied, 1)
	assert.Equal(t, "IMG_0001.JPG", rep.Result.Copied[0].RelativePath)
	assert.FileExists(t, filepath.Join(e.target, "IMG_0001.JPG"))

	var rpcErr *RPCError
	err = e.client.Call(ctx, "sync/run", map[string]string{}, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)

	_, err = e.client.Sync(ctx, filepath.Join(e.drive, "nowhere"))
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, codeServer, rpcErr.Code)
}

// gateRecorder holds every run in CreateRun until open is closed.
type gateRecorder struct {
	open    chan struct{}
	created atomic.Int32
}

func (r *gateRecorder) CreateRun(context.Context, store.SyncRun) (string, error) {
	r.created.Add(1)
	<-r.open
	return "run", nil
}

func (r *gateRecorder) FinishRun(context.Context, string, string, int, int, int64, []byte) error {
	return nil
}

func TestOverlappingSyncsRunOneAtATime(t *testing.T) {
	rec := &gateRecorder{open: make(chan struct{})}
	e := setup(t, func(o *app.Options) {
		o.Recorder = rec
		require.NoError(t, o.Config.Set(config.KeyPurgeSource, "always"))
	})
	ctx := context.Background()

	reports := make([]*app.Report, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = e.client.Sync(ctx, e.drive)
		}()
	}

	require.Eventually(t, func() bool { return rec.created.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return rec.created.Load() > 1 }, 200*time.Millisecond, 10*time.Millisecond)
	close(rec.open)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(2), rec.created.Load())
	// the first run copies and purges, the second finds an empty source
	assert.Equal(t, 1, len(reports[0].Result.Copied)+len(reports[1].Result.Copied))
	assert.Equal(t, 1, reports[0].Deleted+reports[1].Deleted)
	assert.FileExists(t, filepath.Join(e.target, "IMG_0001.JPG"))
}

func TestQuitAndUnknownMethod(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.client.Quit(ctx))
	assert.Equal(t, int32(1), e.quits.Load())

	var rpcErr *RPCError
	require.ErrorAs(t, e.client.Call(ctx, "tray/show", nil, nil), &rpcErr)
	assert.Equal(t, codeMethodNotFound, rpcErr.Code)
}

func TestHTTPEdges(t *testing.T) {
	e := setup(t)

	res, err := http.Get(e.http.URL + "/rpc")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)

	res, err = http.Post(e.http.URL+"/rpc", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	b, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Contains(t, string(b), "-32700")

	res, err = http.Get(e.http.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(e.http.URL + "/icon.png")
	require.NoError(t, err)
	b, _ = io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, assets.IconPNG(), b)
}

func TestNewClientAddr(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7847/rpc", NewClient(DefaultAddr).BaseURL)
	assert.Equal(t, "http://host/rpc", NewClient("http://host/rpc").BaseURL)
}
