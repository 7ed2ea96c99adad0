package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.ini")

	c, err := Load(path, discard())
	require.NoError(t, err)

	assert.Equal(t, "", c.LocalFolder())
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "loading alone must not create the file")

	assert.Equal(t, DefaultRemotePath, c.RemotePath())
	assert.Equal(t, DefaultIconPath, c.IconPath())
	d, err := c.SyncInterval()
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncInterval, d)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "[Settings]")
	assert.Contains(t, string(b), "remote_path")
	assert.Contains(t, string(b), "DCIM")
	assert.Contains(t, string(b), "sync_interval")
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.ini")
	require.NoError(t, os.WriteFile(path, []byte(`[Settings]
local_folder = /photos
remote_path = DCIM/100CANON
sync_interval = 0.5
settle_delay = 0
purge_source = never
exclude = *.THM, .trashes
`), 0o644))

	c, err := Load(path, discard())
	require.NoError(t, err)

	assert.Equal(t, "/photos", c.LocalFolder())
	assert.Equal(t, "DCIM/100CANON", c.RemotePath())
	d, err := c.SyncInterval()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)
	d, err = c.SettleDelay()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)
	p, err := c.PurgeSource()
	require.NoError(t, err)
	assert.Equal(t, PurgeNever, p)
	assert.Equal(t, []string{"*.THM", ".trashes"}, c.Exclude())
	assert.Empty(t, c.MountRoots())
}

func TestLoadFileWithoutSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.ini")
	require.NoError(t, os.WriteFile(path, []byte("[Other]\na = b\n"), 0o644))

	c, err := Load(path, discard())
	require.NoError(t, err)
	require.NoError(t, c.SetLocalFolder("/target"))

	again, err := Load(path, discard())
	require.NoError(t, err)
	assert.Equal(t, "/target", again.LocalFolder())
}

func TestSetValidates(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "s.ini"), discard())
	require.NoError(t, err)

	var ve *ValueError
	err = c.Set(KeySyncInterval, "fast")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, KeySyncInterval, ve.Key)

	assert.ErrorAs(t, c.Set(KeySyncInterval, "0"), &ve)
	assert.ErrorAs(t, c.Set(KeyPurgeSource, "sometimes"), &ve)
	assert.ErrorIs(t, c.Set("colour", "blue"), ErrUnknownKey)

	require.NoError(t, c.Set(KeyPurgeSource, "ALWAYS"))
	p, err := c.PurgeSource()
	require.NoError(t, err)
	assert.Equal(t, PurgeAlways, p)
}

func TestBadValueInFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.ini")
	require.NoError(t, os.WriteFile(path, []byte("[Settings]\nsync_interval = soon\n"), 0o644))

	c, err := Load(path, discard())
	require.NoError(t, err)
	_, err = c.SyncInterval()
	var ve *ValueError
	assert.ErrorAs(t, err, &ve)
}

func TestAllIsSorted(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "s.ini"), discard())
	require.NoError(t, err)
	require.NoError(t, c.Set(KeyRemotePath, "DCIM"))
	require.NoError(t, c.Set(KeyLocalFolder, "/x"))

	assert.Equal(t, [][2]string{{KeyLocalFolder, "/x"}, {KeyRemotePath, "DCIM"}}, c.All())
}
