package properties

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/josephspurrier/goversioninfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusbsync/assets"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want goversioninfo.FileVersion
	}{
		{"1.2.3", goversioninfo.FileVersion{Major: 1, Minor: 2, Patch: 3}},
		{"v1.2.3.4", goversioninfo.FileVersion{Major: 1, Minor: 2, Patch: 3, Build: 4}},
		{"2.0.1-rc1", goversioninfo.FileVersion{Major: 2, Minor: 0, Patch: 1}},
		{"3.4", goversioninfo.FileVersion{Major: 3, Minor: 4}},
		{"3.4-dev", goversioninfo.FileVersion{Major: 3, Minor: 4}},
		{"dev", goversioninfo.FileVersion{}},
		{"", goversioninfo.FileVersion{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVersion(tt.in))
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "fusb_sync", p.ProductName)
	assert.Equal(t, "fusb_sync.exe", p.OriginalFilename)
	assert.Equal(t, filepath.Join("assets", "icon.ico"), p.IconPath)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "properties.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
product_name: camsync
company_name: Example Co
version: 1.5.0
`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "camsync", p.ProductName)
	assert.Equal(t, "camsync.exe", p.OriginalFilename)
	assert.Equal(t, "1.5.0", p.Version)
	assert.Contains(t, p.Copyright, "Example Co")

	require.NoError(t, os.WriteFile(path, []byte("product_name: [oops"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "yaml parse")
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	icon := filepath.Join(dir, "icon.ico")
	require.NoError(t, os.WriteFile(icon, assets.IconICO(), 0o644))
	props := filepath.Join(dir, "properties.yaml")
	require.NoError(t, os.WriteFile(props, []byte("icon_path: "+icon+"\ncompany_name: FUSB\n"), 0o644))

	res, err := Generate(context.Background(), Options{
		PropsPath: props,
		Version:   "v1.4.2",
		JSONPath:  filepath.Join(dir, "versioninfo.json"),
		SysoPath:  filepath.Join(dir, "cmd", "resource_windows_amd64.syso"),
	})
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", res.Version)
	assert.Equal(t, goversioninfo.FileVersion{Major: 1, Minor: 4, Patch: 2}, res.Parsed)

	b, err := os.ReadFile(res.JSON)
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "fusb_sync", doc["StringFileInfo"]["ProductName"])
	assert.Equal(t, "1.4.2", doc["StringFileInfo"]["ProductVersion"])
	assert.Equal(t, "FUSB", doc["StringFileInfo"]["CompanyName"])
	assert.Equal(t, map[string]any{"LangID": "0409", "CharsetID": "04B0"}, doc["VarFileInfo"]["Translation"])

	fi, err := os.Stat(res.Syso)
	require.NoError(t, err)
	assert.Positive(t, fi.Size())
}

func TestGenerateRejects(t *testing.T) {
	dir := t.TempDir()
	_, err := Generate(context.Background(), Options{
		PropsPath: filepath.Join(dir, "none.yaml"),
		Version:   "1.0.0",
		Arch:      "mips",
	})
	assert.ErrorContains(t, err, "unsupported")

	props := filepath.Join(dir, "properties.yaml")
	require.NoError(t, os.WriteFile(props, []byte("icon_path: "+filepath.Join(dir, "missing.ico")+"\n"), 0o644))
	_, err = Generate(context.Background(), Options{
		PropsPath: props,
		Version:   "1.0.0",
		JSONPath:  filepath.Join(dir, "versioninfo.json"),
		SysoPath:  filepath.Join(dir, "out.syso"),
	})
	assert.ErrorContains(t, err, "icon")
}

func TestGenerateFallsBackToBundledIcon(t *testing.T) {
	dir := t.TempDir()
	// the package dir has no assets/icon.ico, so the default icon is missing
	res, err := Generate(context.Background(), Options{
		PropsPath: filepath.Join(dir, "none.yaml"),
		Version:   "2.0.0",
		JSONPath:  filepath.Join(dir, "versioninfo.json"),
		SysoPath:  filepath.Join(dir, "out.syso"),
	})
	require.NoError(t, err)
	fi, err := os.Stat(res.Syso)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(len(assets.IconICO())))
}
