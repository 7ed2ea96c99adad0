package mount

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu     sync.Mutex
	drives []Drive
	err    error
}

func (f *fakeLister) set(d ...Drive) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drives = d
}

func (f *fakeLister) List(context.Context) ([]Drive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Drive(nil), f.drives...), nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDetectReportsOnlyNewDrives(t *testing.T) {
	ctx := context.Background()
	l := &fakeLister{drives: []Drive{`C:\`}}
	w, err := NewWatcher(ctx, l, quiet())
	require.NoError(t, err)

	var got []Drive
	record := func(_ context.Context, d Drive) { got = append(got, d) }

	require.NoError(t, w.Detect(ctx, record))
	assert.Empty(t, got, "drives present at start are not reported")

	l.set(`C:\`, `E:\`, `F:\`)
	require.NoError(t, w.Detect(ctx, record))
	assert.Equal(t, []Drive{`E:\`, `F:\`}, got)

	require.NoError(t, w.Detect(ctx, record))
	assert.Len(t, got, 2, "a drive is reported once while mounted")

	l.set(`C:\`, `F:\`)
	require.NoError(t, w.Detect(ctx, record))
	assert.Equal(t, []Drive{`C:\`, `F:\`}, w.Known())

	l.set(`C:\`, `F:\`, `E:\`)
	require.NoError(t, w.Detect(ctx, record))
	assert.Equal(t, []Drive{`E:\`, `F:\`, `E:\`}, got, "re-inserted drive is reported again")
}

func TestDetectRemovesSeveralDrives(t *testing.T) {
	ctx := context.Background()
	l := &fakeLister{drives: []Drive{"a", "b", "c", "d"}}
	w, err := NewWatcher(ctx, l, quiet())
	require.NoError(t, err)

	l.set("d")
	require.NoError(t, w.Detect(ctx, nil))
	assert.Equal(t, []Drive{"d"}, w.Known())
}

func TestDetectPropagatesListError(t *testing.T) {
	ctx := context.Background()
	l := &fakeLister{}
	w, err := NewWatcher(ctx, l, quiet())
	require.NoError(t, err)

	l.err = errors.New("boom")
	assert.EqualError(t, w.Detect(ctx, nil), "boom")

	_, err = NewWatcher(ctx, l, quiet())
	assert.Error(t, err)
}

func TestScanStops(t *testing.T) {
	ctx := context.Background()
	l := &fakeLister{}
	w, err := NewWatcher(ctx, l, quiet())
	require.NoError(t, err)

	seen := make(chan Drive, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Scan(ctx, 5*time.Millisecond, func(_ context.Context, d Drive) { seen <- d })
	}()

	l.set("/media/me/CAM")
	select {
	case d := <-seen:
		assert.Equal(t, Drive("/media/me/CAM"), d)
	case <-time.After(2 * time.Second):
		t.Fatal("drive not reported")
	}

	w.Stop()
	w.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not stop")
	}
}

func TestScanHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w, err := NewWatcher(ctx, &fakeLister{}, quiet())
	require.NoError(t, err)

	cancel()
	assert.ErrorIs(t, w.Scan(ctx, time.Hour, nil), context.Canceled)
}

func TestSystemListerRoots(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "CAMERA"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "USBSTICK"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.txt"), nil, 0o644))

	if DefaultRoots() == nil {
		t.Skip("drive letters are enumerated on this platform")
	}
	got, err := SystemLister{Roots: []string{root, filepath.Join(root, "missing")}}.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Drive{Drive(filepath.Join(root, "CAMERA")), Drive(filepath.Join(root, "USBSTICK"))}, got)
}
