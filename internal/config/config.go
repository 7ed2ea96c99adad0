// Package config reads and writes the INI settings file.
//
// Layout:
//
//	[Settings]
//	local_folder  = D:\Photos
//	remote_path   = DCIM
//	icon_path     = icon.png
//	sync_interval = 1.0
//
// remote_path, icon_path and sync_interval are written back to the file the
// first time they are read without a value, so a fresh install ends up with an
// editable file listing them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/ini.v1"
)

const (
	DefaultPath = "fusb_mass_storage_sync.ini"
	Section     = "Settings"

	DefaultRemotePath   = "DCIM"
	DefaultIconPath     = "icon.png"
	DefaultSyncInterval = time.Second
	DefaultSettleDelay  = 2 * time.Second
	DefaultPurge        = PurgeAsk
)

const (
	KeyLocalFolder  = "local_folder"
	KeyRemotePath   = "remote_path"
	KeyIconPath     = "icon_path"
	KeySyncInterval = "sync_interval"
	KeySettleDelay  = "settle_delay"
	KeyPurgeSource  = "purge_source"
	KeyMountRoots   = "mount_roots"
	KeyExclude      = "exclude"
)

// Keys lists every setting understood by Set.
var Keys = []string{
	KeyLocalFolder, KeyRemotePath, KeyIconPath, KeySyncInterval,
	KeySettleDelay, KeyPurgeSource, KeyMountRoots, KeyExclude,
}

// PurgePolicy controls what happens to the source after a sync.
type PurgePolicy string

const (
	PurgeAsk    PurgePolicy = "ask"
	PurgeAlways PurgePolicy = "always"
	PurgeNever  PurgePolicy = "never"
)

func ParsePurgePolicy(s string) (PurgePolicy, error) {
	switch p := PurgePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PurgeAsk, PurgeAlways, PurgeNever:
		return p, nil
	}
	return "", fmt.Errorf("purge policy must be ask|always|never, got %q", s)
}

// ValueError reports a setting that is present but cannot be parsed.
type ValueError struct {
	Key   string
	Value string
	Err   error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("config %s.%s=%q: %v", Section, e.Key, e.Value, e.Err)
}

func (e *ValueError) Unwrap() error { return e.Err }

var ErrUnknownKey = errors.New("unknown setting")

type Config struct {
	mu     sync.Mutex
	path   string
	file   *ini.File
	logger *slog.Logger
}

// Load reads the settings file at path. A missing file is not an error: the
// defaults are used and the file is created on the first write.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Config{path: path, logger: logger}

	var f *ini.File
	_, err := os.Stat(path)
	switch {
	case err == nil:
		f, err = ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
		logger.Info("settings loaded", "path", path)
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("settings file not found, using defaults", "path", path)
		f = ini.Empty()
	default:
		return nil, fmt.Errorf("stat settings %s: %w", path, err)
	}
	if !f.HasSection(Section) {
		if _, err := f.NewSection(Section); err != nil {
			return nil, err
		}
	}
	c.file = f
	return c, nil
}

// Path returns the settings file location.
func (c *Config) Path() string { return c.path }

func (c *Config) LocalFolder() string {
	return c.get(KeyLocalFolder)
}

func (c *Config) SetLocalFolder(dir string) error {
	return c.Set(KeyLocalFolder, dir)
}

func (c *Config) RemotePath() string {
	return c.getOrInit(KeyRemotePath, DefaultRemotePath)
}

func (c *Config) IconPath() string {
	return c.getOrInit(KeyIconPath, DefaultIconPath)
}

// SyncInterval is the drive scan period. The file stores seconds as a float.
func (c *Config) SyncInterval() (time.Duration, error) {
	v := c.getOrInit(KeySyncInterval, formatSeconds(DefaultSyncInterval))
	return parseSeconds(KeySyncInterval, v)
}

// SettleDelay is how long to wait after a drive appears before prompting.
func (c *Config) SettleDelay() (time.Duration, error) {
	v := c.get(KeySettleDelay)
	if v == "" {
		return DefaultSettleDelay, nil
	}
	return parseSeconds(KeySettleDelay, v)
}

func (c *Config) PurgeSource() (PurgePolicy, error) {
	v := c.get(KeyPurgeSource)
	if v == "" {
		return DefaultPurge, nil
	}
	p, err := ParsePurgePolicy(v)
	if err != nil {
		return "", &ValueError{Key: KeyPurgeSource, Value: v, Err: err}
	}
	return p, nil
}

// MountRoots lists the directories scanned for volumes on unix systems.
func (c *Config) MountRoots() []string {
	return splitList(c.get(KeyMountRoots))
}

// Exclude lists glob patterns skipped during sync.
func (c *Config) Exclude() []string {
	return splitList(c.get(KeyExclude))
}

// Set validates and stores one setting, then saves the file.
func (c *Config) Set(key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	c.mu.Lock()
	c.file.Section(Section).Key(key).SetValue(value)
	c.mu.Unlock()
	return c.Save()
}

// All returns the current settings sorted by key.
func (c *Config) All() [][2]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][2]string
	for _, k := range c.file.Section(Section).Keys() {
		out = append(out, [2]string{k.Name(), k.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Save writes the settings file, creating its directory if needed.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	if err := c.file.SaveTo(c.path); err != nil {
		return fmt.Errorf("write settings %s: %w", c.path, err)
	}
	c.logger.Info("settings saved", "path", c.path)
	return nil
}

func (c *Config) get(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	sec := c.file.Section(Section)
	if !sec.HasKey(key) {
		return ""
	}
	return strings.TrimSpace(sec.Key(key).String())
}

func (c *Config) getOrInit(key, def string) string {
	if v := c.get(key); v != "" {
		return v
	}
	if err := c.Set(key, def); err != nil {
		c.logger.Warn("could not persist default setting", "key", key, "error", err)
	}
	return def
}

func validate(key, value string) error {
	switch key {
	case KeyLocalFolder, KeyRemotePath, KeyIconPath, KeyMountRoots, KeyExclude:
		return nil
	case KeySyncInterval, KeySettleDelay:
		d, err := parseSeconds(key, value)
		if err != nil {
			return err
		}
		if key == KeySyncInterval && d <= 0 {
			return &ValueError{Key: key, Value: value, Err: errors.New("must be positive")}
		}
		return nil
	case KeyPurgeSource:
		if _, err := ParsePurgePolicy(value); err != nil {
			return &ValueError{Key: key, Value: value, Err: err}
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

func parseSeconds(key, v string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, &ValueError{Key: key, Value: v, Err: err}
	}
	if f < 0 {
		return 0, &ValueError{Key: key, Value: v, Err: errors.New("must not be negative")}
	}
	return time.Duration(f * float64(time.Second)), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
