// Package fileid derives an identity key for a file from the filesystem's
// own identifiers, so two paths naming the same file (hard links, different
// spellings) compare equal.
//
// Keys are opaque and only meaningful for equality on one machine. An empty
// key means the identity could not be determined.
package fileid

// Key returns the identity key of the file at path, or "" when it cannot
// be determined.
func Key(path string) string {
	if path == "" {
		return ""
	}
	return key(path)
}

// Same reports whether a and b resolve to the same file. Paths whose
// identity is unavailable are never the same.
func Same(a, b string) bool {
	ka := Key(a)
	return ka != "" && ka == Key(b)
}

// Unique drops every path whose file was already named by an earlier path.
// Paths without an identity are kept.
func Unique(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		k := Key(p)
		if k != "" {
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, p)
	}
	return out
}
