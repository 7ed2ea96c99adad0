// Package properties generates the Windows version resource embedded in
// fusb_sync.exe: product metadata comes from a YAML file, the version from git
// tags, and goversioninfo writes versioninfo.json and the .syso object that
// the Go linker picks up automatically.
package properties

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/josephspurrier/goversioninfo"
	"gopkg.in/yaml.v3"

	"fusbsync/assets"
)

const DefaultPath = "properties.yaml"

var defaultIconPath = filepath.Join("assets", "icon.ico")

type Properties struct {
	ProductName      string `yaml:"product_name"`
	CompanyName      string `yaml:"company_name"`
	FileDescription  string `yaml:"file_description"`
	Copyright        string `yaml:"copyright"`
	Comments         string `yaml:"comments"`
	InternalName     string `yaml:"internal_name"`
	OriginalFilename string `yaml:"original_filename"`
	IconPath         string `yaml:"icon_path"`
	ManifestPath     string `yaml:"manifest_path"`
	// Version overrides git detection when set.
	Version string `yaml:"version"`
}

// Load reads a properties YAML file and fills in defaults. A missing file
// yields the defaults alone.
func Load(path string) (Properties, error) {
	var p Properties
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &p); err != nil {
			return p, fmt.Errorf("yaml parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return p, err
	}
	p.applyDefaults()
	return p, nil
}

func (p *Properties) applyDefaults() {
	if p.ProductName == "" {
		p.ProductName = "fusb_sync"
	}
	if p.InternalName == "" {
		p.InternalName = p.ProductName
	}
	if p.OriginalFilename == "" {
		p.OriginalFilename = p.ProductName + ".exe"
	}
	if p.FileDescription == "" {
		p.FileDescription = "USB mass storage synchronisation"
	}
	if p.IconPath == "" {
		p.IconPath = defaultIconPath
	}
	if p.Copyright == "" && p.CompanyName != "" {
		p.Copyright = fmt.Sprintf("Copyright (c) %d %s", time.Now().Year(), p.CompanyName)
	}
}

// DetectVersion asks git for the closest tag, then for a tag on HEAD, and
// falls back to 0.0.0.0.
func DetectVersion(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "git", "describe", "--tags", "--abbrev=0").Output()
	if err == nil {
		if v := strings.TrimSpace(string(out)); v != "" {
			return strings.TrimPrefix(v, "v")
		}
	}
	out, err = exec.CommandContext(ctx, "git", "tag", "--points-at", "HEAD").Output()
	if err == nil {
		if tags := strings.Fields(string(out)); len(tags) > 0 {
			return strings.TrimPrefix(tags[0], "v")
		}
	}
	return "0.0.0.0"
}

var (
	fullVersion  = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:\.(\d+))?(?:-.*)?$`)
	shortVersion = regexp.MustCompile(`^(\d+)\.(\d+)(?:-.*)?$`)
)

// ParseVersion splits a version string into its four numeric parts.
// Unrecognised strings give all zeros.
func ParseVersion(version string) goversioninfo.FileVersion {
	var fv goversioninfo.FileVersion
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if m := fullVersion.FindStringSubmatch(version); m != nil {
		fv.Major, fv.Minor, fv.Patch = atoi(m[1]), atoi(m[2]), atoi(m[3])
		if m[4] != "" {
			fv.Build = atoi(m[4])
		}
		return fv
	}
	if m := shortVersion.FindStringSubmatch(version); m != nil {
		fv.Major, fv.Minor = atoi(m[1]), atoi(m[2])
	}
	return fv
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// VersionInfo builds the goversioninfo description for version.
func (p Properties) VersionInfo(version string) *goversioninfo.VersionInfo {
	fv := ParseVersion(version)

	vi := &goversioninfo.VersionInfo{}
	vi.FixedFileInfo.FileVersion = fv
	vi.FixedFileInfo.ProductVersion = fv
	vi.FixedFileInfo.FileFlagsMask = "3f"
	vi.FixedFileInfo.FileFlags = "00"
	vi.FixedFileInfo.FileOS = "040004"
	vi.FixedFileInfo.FileType = "01"
	vi.FixedFileInfo.FileSubType = "00"

	vi.StringFileInfo.Comments = p.Comments
	vi.StringFileInfo.CompanyName = p.CompanyName
	vi.StringFileInfo.FileDescription = p.FileDescription
	vi.StringFileInfo.FileVersion = version
	vi.StringFileInfo.InternalName = p.InternalName
	vi.StringFileInfo.LegalCopyright = p.Copyright
	vi.StringFileInfo.OriginalFilename = p.OriginalFilename
	vi.StringFileInfo.ProductName = p.ProductName
	vi.StringFileInfo.ProductVersion = version

	vi.VarFileInfo.Translation.LangID = goversioninfo.LangID(0x0409)
	vi.VarFileInfo.Translation.CharsetID = goversioninfo.CharsetID(0x04B0)

	vi.IconPath = p.IconPath
	vi.ManifestPath = p.ManifestPath
	return vi
}

type Options struct {
	PropsPath string
	// Version skips git detection when set.
	Version  string
	JSONPath string
	// SysoPath is where the COFF resource goes; empty skips it.
	SysoPath string
	Arch     string
}

type Result struct {
	Version string
	Parsed  goversioninfo.FileVersion
	JSON    string
	Syso    string
}

// versionInfoFile mirrors the versioninfo.json layout read by the
// goversioninfo command; translation ids are hex strings there.
type versionInfoFile struct {
	FixedFileInfo  goversioninfo.FixedFileInfo  `json:"FixedFileInfo"`
	StringFileInfo goversioninfo.StringFileInfo `json:"StringFileInfo"`
	VarFileInfo    struct {
		Translation struct {
			LangID    string `json:"LangID"`
			CharsetID string `json:"CharsetID"`
		} `json:"Translation"`
	} `json:"VarFileInfo"`
	IconPath     string `json:"IconPath"`
	ManifestPath string `json:"ManifestPath"`
}

// Generate writes versioninfo.json and, if requested, the .syso resource.
func Generate(ctx context.Context, opts Options) (Result, error) {
	if opts.PropsPath == "" {
		opts.PropsPath = DefaultPath
	}
	if opts.JSONPath == "" {
		opts.JSONPath = "versioninfo.json"
	}
	if opts.Arch == "" {
		opts.Arch = "amd64"
	}
	switch opts.Arch {
	case "amd64", "386", "arm", "arm64":
	default:
		return Result{}, fmt.Errorf("unsupported resource arch %q", opts.Arch)
	}

	props, err := Load(opts.PropsPath)
	if err != nil {
		return Result{}, err
	}
	version := opts.Version
	if version == "" {
		version = props.Version
	}
	if version == "" {
		version = DetectVersion(ctx)
	}
	version = strings.TrimPrefix(version, "v")

	vi := props.VersionInfo(version)
	res := Result{Version: version, Parsed: vi.FixedFileInfo.FileVersion, JSON: opts.JSONPath}

	file := versionInfoFile{
		FixedFileInfo:  vi.FixedFileInfo,
		StringFileInfo: vi.StringFileInfo,
		IconPath:       vi.IconPath,
		ManifestPath:   vi.ManifestPath,
	}
	file.VarFileInfo.Translation.LangID = fmt.Sprintf("%04X", uint16(vi.VarFileInfo.Translation.LangID))
	file.VarFileInfo.Translation.CharsetID = fmt.Sprintf("%04X", uint16(vi.VarFileInfo.Translation.CharsetID))
	b, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return res, err
	}
	if err := os.WriteFile(opts.JSONPath, append(b, '\n'), 0o644); err != nil {
		return res, fmt.Errorf("write %s: %w", opts.JSONPath, err)
	}

	if opts.SysoPath != "" {
		icon, cleanup, err := resolveIcon(vi.IconPath)
		if err != nil {
			return res, err
		}
		defer cleanup()
		vi.IconPath = icon
		vi.Build()
		vi.Walk()
		if err := os.MkdirAll(filepath.Dir(opts.SysoPath), 0o755); err != nil {
			return res, err
		}
		if err := vi.WriteSyso(opts.SysoPath, opts.Arch); err != nil {
			return res, fmt.Errorf("write %s: %w", opts.SysoPath, err)
		}
		res.Syso = opts.SysoPath
	}
	return res, nil
}

// resolveIcon checks the icon file exists. When the default icon is missing
// (outside a checkout) the bundled one is written to a temp file instead.
func resolveIcon(path string) (string, func(), error) {
	nop := func() {}
	if path == "" {
		return "", nop, nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return path, nop, nil
	case !errors.Is(err, fs.ErrNotExist) || path != defaultIconPath:
		return "", nop, fmt.Errorf("icon: %w", err)
	}
	f, err := os.CreateTemp("", "fusb_sync-*.ico")
	if err != nil {
		return "", nop, fmt.Errorf("icon: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(assets.IconICO()); err != nil {
		_ = f.Close()
		cleanup()
		return "", nop, fmt.Errorf("icon: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nop, fmt.Errorf("icon: %w", err)
	}
	return f.Name(), cleanup, nil
}
