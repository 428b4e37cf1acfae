package archivefs

import "strings"

// SplitPath splits name into its non-empty segments, from the root to the
// leaf. Forward and backward slashes are both separators, so archive-native
// names such as `data\sub\a.bin` and query paths such as "/data/sub/a.bin"
// normalize to the same sequence. The root is the empty sequence.
func SplitPath(name string) []string {
	return strings.FieldsFunc(name, isSeparator)
}

// JoinPath is the inverse of SplitPath for query paths: it returns the
// absolute, slash-separated form of segments.
func JoinPath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

func isSeparator(r rune) bool { return r == '/' || r == '\\' }
