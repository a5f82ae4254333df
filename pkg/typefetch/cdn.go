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

package typefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/time/rate"
)

// TypesHeader is the response header a module-graph CDN uses to
// advertise the URL of a package's type entry.
const TypesHeader = "X-TypeScript-Types"

// client wraps CDN access with rate limiting. All pipeline fetches go
// through it.
type client struct {
	base    string // CDN origin, no trailing slash
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(base string, httpClient *http.Client, limiter *rate.Limiter) *client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &client{base: strings.TrimSuffix(base, "/"), http: httpClient, limiter: limiter}
}

// packageURL builds the probe URL for name at versionSpec (versionSpec
// may be empty).
func (c *client) packageURL(name, versionSpec string) string {
	if versionSpec == "" {
		return c.base + "/" + name
	}
	return c.base + "/" + name + "@" + versionSpec
}

// probe requests u and returns the advertised types entry URL (empty if
// the CDN sent no types header) along with the final request URL after
// redirects.
func (c *client) probe(ctx context.Context, u string) (typesURL, finalURL string, err error) {
	resp, err := c.do(ctx, u)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.Header.Get(TypesHeader), resp.Request.URL.String(), nil
}

// fetch requests u and returns the response body as text.
func (c *client) fetch(ctx context.Context, u string) (string, error) {
	resp, err := c.do(ctx, u)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: u, Cause: err}
	}
	return string(body), nil
}

func (c *client) do(ctx context.Context, u string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{URL: u, Cause: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u, Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &FetchError{URL: u, Status: resp.StatusCode}
	}
	return resp, nil
}

// packageRef is a package location parsed out of a CDN URL.
type packageRef struct {
	// Name is the bare package name ("react", "@tanstack/react-query").
	// For @types packages this is the target package name, not the
	// @types one.
	Name string
	// RawName is the package name as hosted ("@types/react").
	RawName string
	// Version is the version embedded in the URL, possibly empty.
	Version string
	// Subpath is the path below the package root, possibly empty.
	Subpath string
}

// buildPrefixPattern matches CDN build-pipeline path segments such as
// "v135" or "stable" that precede the package name.
var buildPrefixPattern = regexp.MustCompile(`^(v\d+|stable)$`)

// parsePackageURL decomposes an absolute CDN URL into a packageRef.
// Returns false when raw is not under origin or has no package segment.
func parsePackageURL(raw, origin string) (packageRef, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return packageRef{}, false
	}
	o, err := url.Parse(origin)
	if err != nil || u.Host != o.Host {
		return packageRef{}, false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 && buildPrefixPattern.MatchString(segments[0]) {
		segments = segments[1:]
	}
	if len(segments) == 0 || segments[0] == "" {
		return packageRef{}, false
	}

	var nameVer string
	if strings.HasPrefix(segments[0], "@") {
		if len(segments) < 2 {
			return packageRef{}, false
		}
		nameVer = segments[0] + "/" + segments[1]
		segments = segments[2:]
	} else {
		nameVer = segments[0]
		segments = segments[1:]
	}

	ref := packageRef{Subpath: strings.Join(segments, "/")}
	ref.RawName, ref.Version = splitNameVersion(nameVer)
	ref.Name = unaliasTypesName(ref.RawName)
	return ref, true
}

// splitNameVersion splits "name@version" on the last "@" that is not the
// scope marker.
func splitNameVersion(nameVer string) (name, version string) {
	if i := strings.LastIndexByte(nameVer, '@'); i > 0 {
		return nameVer[:i], nameVer[i+1:]
	}
	return nameVer, ""
}

// unaliasTypesName maps a DefinitelyTyped package name back to the
// package it types: "@types/react" to "react", "@types/scope__name" to
// "@scope/name".
func unaliasTypesName(name string) string {
	rest, ok := strings.CutPrefix(name, "@types/")
	if !ok {
		return name
	}
	if scope, pkg, found := strings.Cut(rest, "__"); found {
		return "@" + scope + "/" + pkg
	}
	return rest
}

// typesAlias maps a package name to its DefinitelyTyped package:
// "react" to "@types/react", "@scope/name" to "@types/scope__name".
func typesAlias(name string) string {
	if strings.HasPrefix(name, "@") {
		return "@types/" + strings.ReplaceAll(strings.TrimPrefix(name, "@"), "/", "__")
	}
	return "@types/" + name
}

// bareSpecifier renders a packageRef as the bare import specifier the
// persisted type files use: the subpath is kept, minus declaration-file
// suffixes and trailing index files.
func bareSpecifier(ref packageRef) string {
	sub := ref.Subpath
	sub = strings.TrimSuffix(sub, "~.d.ts")
	sub = strings.TrimSuffix(sub, ".d.ts")
	sub = strings.TrimSuffix(sub, "index")
	sub = strings.Trim(sub, "/")
	if sub == "" {
		return ref.Name
	}
	return ref.Name + "/" + sub
}

// resolveRelativeURL resolves a relative import path against the URL of
// the file that imports it, forcing a .d.ts suffix when absent.
func resolveRelativeURL(fileURL, relPath string) (string, error) {
	base, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("bad file url %s: %w", fileURL, err)
	}
	target, err := url.Parse(relPath)
	if err != nil {
		return "", fmt.Errorf("bad relative path %s: %w", relPath, err)
	}
	resolved := base.ResolveReference(target).String()
	if !strings.HasSuffix(resolved, ".d.ts") && !strings.HasSuffix(resolved, ".ts") {
		resolved += ".d.ts"
	}
	return resolved, nil
}
