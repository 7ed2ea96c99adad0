// Package dirsync copies a directory tree one way, from a source volume into a
// local folder. Files already present and up to date in the target are left
// alone and nothing is ever removed from the target.
package dirsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSourceMissing = errors.New("dirsync: source directory does not exist")
	ErrTargetNotDir  = errors.New("dirsync: target is not a directory")
)

const DefaultWorkers = 4

type Options struct {
	// Exclude holds path.Match patterns tested against the slash-separated
	// relative path and against the base name.
	Exclude  []string
	Workers  int
	Checksum bool
	DryRun   bool
}

type File struct {
	RelativePath string    `json:"path"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"mod_time"`
	SHA256       string    `json:"sha256,omitempty"`
}

type Result struct {
	Copied  []File `json:"copied"`
	Skipped int    `json:"skipped"`
	Dirs    int    `json:"dirs"`
	Bytes   int64  `json:"bytes"`
}

// Sync copies src into dst. A file is copied when dst lacks it, when the sizes
// differ or when the source is newer. Copied files keep the source mtime.
func Sync(ctx context.Context, src, dst string, opts Options) (Result, error) {
	var res Result

	si, err := os.Stat(src)
	if err != nil || !si.IsDir() {
		return res, fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}
	if di, err := os.Stat(dst); err == nil && !di.IsDir() {
		return res, fmt.Errorf("%w: %s", ErrTargetNotDir, dst)
	}
	for _, p := range opts.Exclude {
		if _, err := path.Match(p, ""); err != nil {
			return res, fmt.Errorf("dirsync: bad exclude pattern %q: %w", p, err)
		}
	}

	var jobs []File
	var dirs []string
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		slashRel := filepath.ToSlash(rel)
		if excluded(opts.Exclude, slashRel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
				dirs = append(dirs, target)
				res.Dirs++
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if upToDate(info, target) {
			res.Skipped++
			return nil
		}
		jobs = append(jobs, File{RelativePath: slashRel, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return res, err
	}

	if opts.DryRun {
		res.Copied = jobs
		for _, f := range jobs {
			res.Bytes += f.Size
		}
		return res, nil
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return res, fmt.Errorf("create target: %w", err)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return res, fmt.Errorf("create %s: %w", d, err)
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	for _, job := range jobs {
		g.Go(func() error {
			f, err := copyFile(gctx, filepath.Join(src, filepath.FromSlash(job.RelativePath)),
				filepath.Join(dst, filepath.FromSlash(job.RelativePath)), job, opts.Checksum)
			if err != nil {
				return fmt.Errorf("copy %s: %w", job.RelativePath, err)
			}
			mu.Lock()
			res.Copied = append(res.Copied, f)
			res.Bytes += f.Size
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	sort.Slice(res.Copied, func(i, j int) bool { return res.Copied[i].RelativePath < res.Copied[j].RelativePath })
	return res, err
}

func excluded(patterns []string, rel string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

func upToDate(src fs.FileInfo, target string) bool {
	ti, err := os.Stat(target)
	if err != nil || !ti.Mode().IsRegular() {
		return false
	}
	if ti.Size() != src.Size() {
		return false
	}
	// FAT volumes store mtimes with 2s resolution
	return !src.ModTime().After(ti.ModTime().Add(2 * time.Second))
}

// copyFile writes through a temp file in the target directory and renames it
// into place, so an interrupted copy never leaves a truncated file behind.
func copyFile(ctx context.Context, src, dst string, f File, checksum bool) (File, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return f, err
	}
	in, err := os.Open(src)
	if err != nil {
		return f, err
	}
	defer in.Close()

	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()+".part")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return f, err
	}
	cleanup := func() {
		_ = out.Close()
		_ = os.Remove(tmp)
	}

	var w io.Writer = out
	var h hash.Hash
	if checksum {
		h = sha256.New()
		w = io.MultiWriter(out, h)
	}
	n, err := io.Copy(w, &ctxReader{ctx: ctx, r: in})
	if err != nil {
		cleanup()
		return f, err
	}
	if err := out.Sync(); err != nil {
		cleanup()
		return f, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return f, err
	}
	if err := os.Chtimes(tmp, f.ModTime, f.ModTime); err != nil {
		_ = os.Remove(tmp)
		return f, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return f, err
	}
	f.Size = n
	if h != nil {
		f.SHA256 = hex.EncodeToString(h.Sum(nil))
	}
	return f, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// EmptyTree deletes every file below root and every subdirectory, keeping
// root itself. It returns the number of files deleted, including those removed
// before an error stopped it.
func EmptyTree(root string) (int, error) {
	return emptyTree(root, 0)
}

func emptyTree(dir string, level int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() {
			c, err := emptyTree(p, level+1)
			n += c
			if err != nil {
				return n, err
			}
			continue
		}
		if err := os.Remove(p); err != nil {
			return n, err
		}
		n++
	}
	if level > 0 {
		if err := os.Remove(dir); err != nil {
			return n, err
		}
	}
	return n, nil
}
