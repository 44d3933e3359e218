package domain

import "strings"

// =============================================================================
// Slug Generation
// =============================================================================

// Slugify converts a site name to the slug form the host uses.
//
// The transformation rules are:
//   - Letters are lowercased, digits are kept
//   - Spaces, underscores and hyphens become a single hyphen
//   - All other characters are removed
//   - Leading and trailing hyphens are trimmed
//
// Example:
//
//	Slugify("DC East 1")       // returns "dc-east-1"
//	Slugify("Branch_Office #2") // returns "branch-office-2"
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
			r += 'a' - 'A'
		case r == ' ' || r == '_' || r == '-':
			pendingHyphen = b.Len() > 0
			continue
		default:
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
