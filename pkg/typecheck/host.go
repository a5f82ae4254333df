package typecheck

import (
	"strings"

	"github.com/blindmansion/sandlot/pkg/vfs"
)

// LibRoot is the virtual directory the cached standard-library files
// are served under.
const LibRoot = "/typescript-libs"

// FileExists is the host facade's existence check: lib files answer
// from the cached lib set, everything else routes to the VFS.
func (s *Service) FileExists(p string) bool {
	if name, ok := libName(p); ok {
		_, found := s.libs[name]
		return found
	}
	return s.fs.Exists(p)
}

// ReadFileHost is the host facade's read: lib files come from the
// cached lib set, everything else from the VFS.
func (s *Service) ReadFileHost(p string) (string, error) {
	if name, ok := libName(p); ok {
		if content, found := s.libs[name]; found {
			return content, nil
		}
		return "", &vfs.FileNotFoundError{Path: p}
	}
	return s.fs.ReadFile(p)
}

// DirectoryExists reports whether p names a directory in the facade.
func (s *Service) DirectoryExists(p string) bool {
	if vfs.Normalize(p) == LibRoot {
		return len(s.libs) > 0
	}
	info, err := s.fs.Stat(p)
	return err == nil && info.IsDir
}

// libName extracts the lib name from a lib-root path:
// "/typescript-libs/lib.es2020.d.ts" yields "es2020".
func libName(p string) (string, bool) {
	rest, ok := strings.CutPrefix(vfs.Normalize(p), LibRoot+"/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutPrefix(rest, "lib.")
	if !ok {
		return "", false
	}
	name, ok = strings.CutSuffix(name, ".d.ts")
	if !ok {
		return "", false
	}
	return name, true
}
