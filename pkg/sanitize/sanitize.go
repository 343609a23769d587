package sanitize

import (
	"strings"
	"unicode"
)

// maxNameLength caps sanitized names so they stay usable in archive entries
// and HTTP headers.
const maxNameLength = 200

// EntryName sanitizes an untrusted client filename for use as an archive
// entry. Directory components are stripped so a crafted name can never
// traverse outside the archive root, and anything outside a conservative
// character set is replaced with an underscore.
func EntryName(filename string) string {
	// Strip null bytes first so they can't hide a path separator
	filename = strings.ReplaceAll(filename, "\x00", "")

	// Keep only the last path segment, whichever separator style was used
	if idx := strings.LastIndexAny(filename, "/\\"); idx >= 0 {
		filename = filename[idx+1:]
	}

	result := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-' || r == '(' || r == ')' || r == ' ':
			return r
		default:
			return '_'
		}
	}, filename)

	// Trim spaces and dots from ends; ".." and friends collapse to nothing
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")

	if result == "" {
		return "file"
	}

	if len(result) > maxNameLength {
		result = result[:maxNameLength]
	}

	return result
}

// ForHeader sanitizes a filename for use in HTTP headers such as
// Content-Disposition. Control characters, quotes and separators are removed
// to prevent header injection, and non-ASCII is replaced with underscores
// for maximum client compatibility.
func ForHeader(filename string) string {
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.ReplaceAll(filename, "\n", "")
	filename = strings.ReplaceAll(filename, "\r", "")
	filename = strings.ReplaceAll(filename, `"`, "")
	filename = strings.ReplaceAll(filename, `'`, "")
	filename = strings.ReplaceAll(filename, `\`, "")
	filename = strings.ReplaceAll(filename, "/", "")

	result := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r > 127 {
			return '_'
		}
		return r
	}, filename)

	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")

	if result == "" {
		return "download"
	}

	if len(result) > maxNameLength {
		result = result[:maxNameLength]
	}

	return result
}
