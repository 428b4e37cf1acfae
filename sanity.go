package archivefs

import "strings"

// checkSegments rejects entry names that would place nodes named "." or
// ".." in the tree. Such names are only produced by malformed or hostile
// archives (the classic zip-slip shape) and cannot be represented in a
// filesystem namespace.
func checkSegments(entryName string, segments []string) error {
	if len(segments) == 0 {
		return &StructureError{Entry: entryName, Reason: "empty path"}
	}
	for _, seg := range segments {
		if seg == "." || seg == ".." {
			return &StructureError{Entry: entryName, Segment: seg, Reason: "relative path element"}
		}
		if strings.IndexByte(seg, 0) >= 0 {
			return &StructureError{Entry: entryName, Segment: seg, Reason: "NUL in path element"}
		}
	}
	return nil
}
