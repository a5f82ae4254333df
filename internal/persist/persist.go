// Copyright 2025 Sandlot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package persist mirrors a host directory into a sandbox VFS and back.
//
// The VFS itself never touches disk; persistence is a decorator the CLI
// uses so `sandlot --dir ./project build` operates on real files. Watch
// keeps the VFS current while an editor changes the directory.
package persist

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/blindmansion/sandlot/pkg/vfs"
)

// alwaysIgnored are never mirrored in either direction. The sandbox
// writes its own /node_modules type trees; mirroring them back out
// would dump fetched .d.ts files into the user's project.
var alwaysIgnored = []string{"node_modules/**", ".git/**", ".sandlot-cache/**"}

// Options configure a Persistor.
type Options struct {
	// Dir is the host directory to mirror. Required.
	Dir string

	// FS is the sandbox filesystem. Required.
	FS *vfs.MemFS

	// Ignore holds doublestar patterns excluded from mirroring, on top
	// of the built-in exclusions.
	Ignore []string

	// Logger receives sync events.
	Logger *slog.Logger
}

// Persistor mirrors one directory.
type Persistor struct {
	dir     string
	fs      *vfs.MemFS
	ignores []string
	logger  *slog.Logger
}

// New validates the directory and builds a Persistor.
func New(opts Options) (*Persistor, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("persist directory is required")
	}
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("persist directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("persist path %s is not a directory", opts.Dir)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Persistor{
		dir:     filepath.Clean(opts.Dir),
		fs:      opts.FS,
		ignores: append(append([]string{}, alwaysIgnored...), opts.Ignore...),
		logger:  logger.With("component", "persist"),
	}, nil
}

// LoadAll reads every non-ignored file under the directory into the
// VFS, keyed by "/"-rooted relative path.
func (p *Persistor) LoadAll() error {
	count := 0
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(p.dir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && p.ignored(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if p.ignored(rel) {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		count++
		return p.fs.WriteFile("/"+rel, string(data))
	})
	if err != nil {
		return err
	}
	p.logger.Debug("directory loaded", "dir", p.dir, "files", count)
	return nil
}

// Flush writes every non-ignored VFS file back to disk.
func (p *Persistor) Flush() error {
	for _, vp := range p.fs.Paths() {
		rel := strings.TrimPrefix(vp, "/")
		if p.ignored(rel) {
			continue
		}
		content, err := p.fs.ReadFile(vp)
		if err != nil {
			continue
		}
		target := filepath.Join(p.dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Watch mirrors host edits into the VFS until ctx is done. New
// subdirectories are added to the watch as they appear.
func (p *Persistor) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := p.watchTree(watcher); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			p.handleEvent(watcher, event)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("watch error", "error", watchErr)
		}
	}
}

func (p *Persistor) watchTree(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(p.dir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && p.ignored(rel+"/") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func (p *Persistor) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	rel, err := filepath.Rel(p.dir, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if p.ignored(rel) {
		return
	}
	vp := "/" + rel

	switch {
	case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
		info, statErr := os.Stat(event.Name)
		if statErr != nil {
			return
		}
		if info.IsDir() {
			if event.Op.Has(fsnotify.Create) {
				_ = watcher.Add(event.Name)
			}
			return
		}
		data, readErr := os.ReadFile(event.Name)
		if readErr != nil {
			return
		}
		if err := p.fs.WriteFile(vp, string(data)); err == nil {
			p.logger.Debug("synced into vfs", "path", vp)
		}
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		if p.fs.Exists(vp) {
			if err := p.fs.Remove(vp); err == nil {
				p.logger.Debug("removed from vfs", "path", vp)
			}
		}
	}
}

// ignored reports whether rel matches any exclusion pattern. A
// directory (trailing slash) is ignored when a hypothetical child of it
// would match, so whole subtrees are skipped at the directory level.
func (p *Persistor) ignored(rel string) bool {
	probe := rel
	if strings.HasSuffix(rel, "/") {
		probe = rel + "_"
	}
	for _, pattern := range p.ignores {
		if ok, _ := doublestar.Match(pattern, probe); ok {
			return true
		}
	}
	return false
}
