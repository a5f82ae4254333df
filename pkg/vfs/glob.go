package vfs

import "github.com/bmatcuk/doublestar/v4"

// Glob returns every file path in fs matching the doublestar pattern.
// Patterns are matched against absolute paths with the leading "/"
// stripped, so "src/**/*.ts" matches "/src/app/main.ts".
func Glob(fs *MemFS, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, &InvalidPathError{Path: pattern, Reason: "invalid glob pattern"}
	}

	var matches []string
	for _, p := range fs.Paths() {
		ok, err := doublestar.Match(pattern, p[1:])
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, p)
		}
	}
	return matches, nil
}
