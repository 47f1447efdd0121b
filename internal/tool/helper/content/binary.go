// Package content holds text helpers shared by the file and search tools.
package content

// binarySampleSize is how many leading bytes are checked for NUL, the same
// heuristic git uses.
const binarySampleSize = 8000

// IsBinaryContent reports whether content looks binary: a NUL byte within the
// sample. UTF-16 and UTF-32 byte order marks are treated as text.
func IsBinaryContent(content []byte) bool {
	if hasWideBOM(content) {
		return false
	}
	sample := content[:min(len(content), binarySampleSize)]
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}

func hasWideBOM(b []byte) bool {
	if len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		return true // UTF-16 (and UTF-32LE, which starts the same way)
	}
	return len(b) >= 4 && b[0] == 0x00 && b[1] == 0x00 && b[2] == 0xFE && b[3] == 0xFF
}
