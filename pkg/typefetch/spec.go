package typefetch

import "strings"

// ParseSpec splits an install specifier into package name and optional
// version. Scoped names are handled explicitly: the "@" that starts a
// scope is not a version separator.
//
//	"nanoid"                  -> ("nanoid", "")
//	"nanoid@5.1.6"            -> ("nanoid", "5.1.6")
//	"@tanstack/react-query@5.x" -> ("@tanstack/react-query", "5.x")
func ParseSpec(spec string) (name, version string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", &InvalidSpecError{Spec: spec, Reason: "empty specifier"}
	}

	rest := spec
	scope := ""
	if strings.HasPrefix(rest, "@") {
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return "", "", &InvalidSpecError{Spec: spec, Reason: "scoped name is missing its package segment"}
		}
		scope = rest[:i+1]
		rest = rest[i+1:]
	}

	if i := strings.IndexByte(rest, '@'); i >= 0 {
		name, version = scope+rest[:i], rest[i+1:]
	} else {
		name = scope + rest
	}

	if name == scope || strings.ContainsAny(name, " \t") {
		return "", "", &InvalidSpecError{Spec: spec, Reason: "malformed package name"}
	}
	return name, version, nil
}
