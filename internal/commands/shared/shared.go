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

// Package shared wires the pieces every CLI command needs: config,
// logging, the sandlot, one sandbox, and the optional directory mirror.
package shared

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/blindmansion/sandlot/internal/config"
	"github.com/blindmansion/sandlot/internal/history"
	"github.com/blindmansion/sandlot/internal/log"
	"github.com/blindmansion/sandlot/internal/persist"
	"github.com/blindmansion/sandlot/pkg/sandbox"
	"github.com/blindmansion/sandlot/pkg/sandlot"
	"golang.org/x/time/rate"
)

// Options are the persistent CLI flags.
type Options struct {
	ConfigPath string
	Dir        string
	LogLevel   string
}

// Context is one command invocation's wired environment.
type Context struct {
	Cfg       *config.Config
	Lot       *sandlot.Sandlot
	Sandbox   *sandbox.Sandbox
	Persistor *persist.Persistor
	Logger    *slog.Logger

	history *history.Store
}

// Setup builds a Context from the flags. When opts.Dir is set the
// directory is mirrored into the sandbox before the command runs.
func Setup(opts *Options) (*Context, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := log.FromEnv()
	if cfg.Log.Level != "" {
		logCfg.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		logCfg.Format = log.Format(cfg.Log.Format)
	}
	if opts.LogLevel != "" {
		logCfg.Level = opts.LogLevel
	}
	logger := log.New(logCfg)

	lotOpts := []sandlot.Option{sandlot.WithLogger(logger)}
	if cfg.CDN != "" {
		lotOpts = append(lotOpts, sandlot.WithCDNBase(cfg.CDN))
	}
	if cfg.LibURL != "" {
		lotOpts = append(lotOpts, sandlot.WithLibURLTemplate(cfg.LibURL))
	}
	if cfg.TSVersion != "" {
		lotOpts = append(lotOpts, sandlot.WithTSVersion(cfg.TSVersion))
	}
	if cfg.RateLimit > 0 {
		lotOpts = append(lotOpts, sandlot.WithRateLimit(rate.Limit(cfg.RateLimit)))
	}
	if cfg.CacheDir != "" {
		switch cfg.CacheBackend {
		case "bolt":
			lotOpts = append(lotOpts, sandlot.WithBoltCache(filepath.Join(cfg.CacheDir, "types.db")))
		default:
			lotOpts = append(lotOpts, sandlot.WithDiskCache(cfg.CacheDir))
		}
	}

	ctx := &Context{Cfg: cfg, Logger: logger}

	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB, logger)
		if err != nil {
			return nil, err
		}
		ctx.history = store
		lotOpts = append(lotOpts, sandlot.WithHistory(store))
	}

	lot, err := sandlot.New(lotOpts...)
	if err != nil {
		if ctx.history != nil {
			ctx.history.Close()
		}
		return nil, err
	}
	ctx.Lot = lot
	ctx.Sandbox = lot.NewSandbox()

	if opts.Dir != "" {
		p, err := persist.New(persist.Options{
			Dir:    opts.Dir,
			FS:     ctx.Sandbox.FS(),
			Ignore: cfg.Ignore,
			Logger: logger,
		})
		if err != nil {
			ctx.Close()
			return nil, err
		}
		if err := p.LoadAll(); err != nil {
			ctx.Close()
			return nil, fmt.Errorf("loading %s: %w", opts.Dir, err)
		}
		ctx.Persistor = p
	}

	return ctx, nil
}

// Close flushes the mirror (manifest pins written by install land back
// on disk) and releases every owned resource.
func (c *Context) Close() {
	if c.Persistor != nil {
		if err := c.Persistor.Flush(); err != nil {
			c.Logger.Warn("flushing project directory failed", "error", err)
		}
	}
	if c.Sandbox != nil {
		c.Sandbox.Dispose()
	}
	if c.Lot != nil {
		if err := c.Lot.Close(); err != nil {
			c.Logger.Warn("closing sandlot failed", "error", err)
		}
	}
	if c.history != nil {
		c.history.Close()
	}
}
