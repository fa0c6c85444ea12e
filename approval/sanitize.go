package approval

import "strings"

// sanitizeName restricts a server name to the alphanumeric/underscore/
// hyphen set, used both as a directory name and as the stable slug in a
// record's id. A name with no allowed character at all sanitizes to
// "server".
func sanitizeName(name string) string {
	var b strings.Builder
	kept := 0
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
			kept++
		default:
			b.WriteRune('_')
		}
	}
	if kept == 0 {
		return "server"
	}
	return b.String()
}
