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

// Package cdntest provides an in-process module-graph CDN for tests: it
// speaks the same protocol as the production CDN (name@version paths,
// the X-TypeScript-Types header, .d.ts trees, executable JS modules) so
// no test touches the network.
package cdntest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Package describes one hosted package version.
type Package struct {
	Name    string
	Version string

	// TypesEntry is the path of the type entry advertised via the types
	// header, e.g. "index.d.ts". Empty means the package ships no types.
	TypesEntry string

	// TypeFiles maps relative paths to .d.ts content.
	TypeFiles map[string]string

	// JS is the executable module body served for runtime loads of the
	// package root.
	JS string

	// JSFiles maps subpaths to executable module bodies.
	JSFiles map[string]string
}

// Server is a fake module-graph CDN.
type Server struct {
	*httptest.Server
	packages map[string]map[string]*Package // name -> version -> pkg

	mu sync.Mutex
	// Requests records every path served, in order.
	Requests []string
}

// New starts a fake CDN hosting the given packages.
func New(packages ...*Package) *Server {
	s := &Server{packages: make(map[string]map[string]*Package)}
	for _, pkg := range packages {
		s.Add(pkg)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Add hosts another package. Safe to call before any request is made.
func (s *Server) Add(pkg *Package) {
	versions, ok := s.packages[pkg.Name]
	if !ok {
		versions = make(map[string]*Package)
		s.packages[pkg.Name] = versions
	}
	versions[pkg.Version] = pkg
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.Requests = append(s.Requests, r.URL.Path)
	s.mu.Unlock()

	name, version, subpath, ok := splitPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	pkg := s.lookup(name, version)
	if pkg == nil {
		http.NotFound(w, r)
		return
	}

	if subpath == "" {
		if pkg.TypesEntry != "" {
			w.Header().Set("X-TypeScript-Types",
				s.URL+"/"+pkg.Name+"@"+pkg.Version+"/"+pkg.TypesEntry)
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte(pkg.JS))
		return
	}

	if strings.HasSuffix(subpath, ".d.ts") {
		if content, ok := pkg.TypeFiles[subpath]; ok {
			w.Header().Set("Content-Type", "application/typescript")
			w.Write([]byte(content))
			return
		}
		http.NotFound(w, r)
		return
	}

	if content, ok := pkg.JSFiles[subpath]; ok {
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte(content))
		return
	}
	http.NotFound(w, r)
}

// lookup resolves a version request: exact match first, otherwise the
// highest hosted version satisfying the range (the highest hosted
// version for "" or "latest"). An unparsable range matches nothing.
func (s *Server) lookup(name, version string) *Package {
	versions, ok := s.packages[name]
	if !ok {
		return nil
	}
	if pkg, ok := versions[version]; ok {
		return pkg
	}

	var constraint *semver.Constraints
	if version != "" && version != "latest" {
		constraint, _ = semver.NewConstraint(version)
		if constraint == nil {
			return nil
		}
	}

	var hosted []string
	for v := range versions {
		hosted = append(hosted, v)
	}
	sort.Strings(hosted)

	var best *Package
	var bestVer *semver.Version
	for _, v := range hosted {
		parsed, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		if constraint != nil && !constraint.Check(parsed) {
			continue
		}
		if bestVer == nil || parsed.GreaterThan(bestVer) {
			best, bestVer = versions[v], parsed
		}
	}
	return best
}

// splitPath decomposes "/name@version/subpath", handling scoped names.
func splitPath(p string) (name, version, subpath string, ok bool) {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", "", "", false
	}

	var nameVer string
	if strings.HasPrefix(segments[0], "@") {
		if len(segments) < 2 {
			return "", "", "", false
		}
		nameVer = segments[0] + "/" + segments[1]
		subpath = strings.Join(segments[2:], "/")
	} else {
		nameVer = segments[0]
		subpath = strings.Join(segments[1:], "/")
	}

	if i := strings.LastIndexByte(nameVer, '@'); i > 0 {
		return nameVer[:i], nameVer[i+1:], subpath, true
	}
	return nameVer, "", subpath, true
}
