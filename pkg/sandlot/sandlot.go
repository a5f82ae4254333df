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

// Package sandlot constructs sandboxes and owns the services shared
// across them: the type caches, the resolver, the bundler, the loader,
// and the shared-module registry.
package sandlot

import (
	"fmt"
	"log/slog"

	"github.com/blindmansion/sandlot/pkg/bundler"
	"github.com/blindmansion/sandlot/pkg/httpclient"
	"github.com/blindmansion/sandlot/pkg/loader"
	"github.com/blindmansion/sandlot/pkg/sandbox"
	"github.com/blindmansion/sandlot/pkg/sharedmod"
	"github.com/blindmansion/sandlot/pkg/typecache"
	"github.com/blindmansion/sandlot/pkg/typefetch"
	"golang.org/x/time/rate"
)

// Sandlot is the sandbox factory. Construct with New, create project
// sandboxes with NewSandbox, release shared resources with Close.
type Sandlot struct {
	cfg      config
	registry *sharedmod.Registry
	bundler  bundler.Bundler
	resolver *typefetch.Resolver
	libs     *typefetch.LibFetcher
	loader   *loader.Loader
	bolt     *typecache.BoltStore
	logger   *slog.Logger

	closers []func() error
}

// New builds a sandlot from the given options.
func New(opts ...Option) (*Sandlot, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sandlot{cfg: cfg, logger: logger}

	httpClient := cfg.httpClient
	if httpClient == nil {
		client, err := httpclient.New(cfg.httpConfig)
		if err != nil {
			return nil, fmt.Errorf("building http client: %w", err)
		}
		httpClient = client
	}

	packageStore := cfg.packageStore
	libStore := cfg.libStore

	switch {
	case cfg.boltPath != "":
		bolt, err := typecache.NewBoltStore(cfg.boltPath)
		if err != nil {
			return nil, err
		}
		s.bolt = bolt
		s.closers = append(s.closers, bolt.Close)
		if packageStore == nil {
			packageStore = bolt.Packages()
		}
		if libStore == nil {
			libStore = bolt.Libs()
		}
	case cfg.cacheDir != "":
		dir, err := typecache.NewDirStore(cfg.cacheDir)
		if err != nil {
			return nil, err
		}
		if packageStore == nil {
			packageStore = dir.Packages()
		}
		if libStore == nil {
			libStore = dir.Libs()
		}
	}

	s.registry = sharedmod.New(cfg.sharedModules)

	s.resolver = typefetch.NewResolver(typefetch.Options{
		CDNBase:    cfg.cdnBase,
		HTTPClient: httpClient,
		RateLimit:  cfg.rateLimit,
		Packages:   packageStore,
		Logger:     logger,
	})
	s.libs = typefetch.NewLibFetcher(typefetch.LibOptions{
		URLTemplate: cfg.libURLTemplate,
		TSVersion:   cfg.tsVersion,
		HTTPClient:  httpClient,
		Store:       libStore,
		Logger:      logger,
	})

	s.bundler = cfg.bundler
	if s.bundler == nil {
		s.bundler = bundler.NewESBuild(cfg.cdnBase, logger)
	}
	s.loader = cfg.loader
	if s.loader == nil {
		s.loader = loader.New(httpClient, logger)
	}

	return s, nil
}

// NewSandbox creates a sandbox wired to the sandlot's shared services.
func (s *Sandlot) NewSandbox() *sandbox.Sandbox {
	return sandbox.New(sandbox.Services{
		Bundler:    s.bundler,
		Resolver:   s.resolver,
		Libs:       s.libs,
		Loader:     s.loader,
		Registry:   s.registry,
		NewChecker: s.cfg.newChecker,
		Validator:  s.cfg.validator,
		History:    s.cfg.history,
		Logger:     s.logger,
	})
}

// Registry exposes the shared-module registry.
func (s *Sandlot) Registry() *sharedmod.Registry { return s.registry }

// Resolver exposes the types resolver, for hosts that prefetch.
func (s *Sandlot) Resolver() *typefetch.Resolver { return s.resolver }

// Close releases the registry binding and any owned stores. Persistent
// caches survive Close; clearing them is an explicit, separate call on
// the store.
func (s *Sandlot) Close() error {
	s.registry.Close()
	var firstErr error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// config is assembled by Options.
type config struct {
	cdnBase        string
	libURLTemplate string
	tsVersion      string
	rateLimit      rate.Limit

	httpConfig httpclient.Config
	httpClient httpClientIface

	cacheDir string
	boltPath string

	packageStore typecache.PackageStore
	libStore     typecache.LibStore

	sharedModules map[string]sharedmod.Module
	validator     sandbox.Validator
	history       sandbox.BuildRecorder

	bundler    bundler.Bundler
	loader     *loader.Loader
	newChecker newCheckerFunc

	logger *slog.Logger
}

func defaultConfig() config {
	return config{
		cdnBase:        typefetch.DefaultCDNBase,
		libURLTemplate: typefetch.DefaultLibURLTemplate,
		tsVersion:      typefetch.DefaultTSVersion,
		httpConfig:     httpclient.DefaultConfig(),
		sharedModules:  map[string]sharedmod.Module{},
	}
}
