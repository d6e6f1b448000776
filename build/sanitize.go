package build

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const upperhex = "0123456789ABCDEF"

// SanitizeID makes id safe to use as the last path segment of an IRI. The id
// is NFC normalized; characters outside the unreserved set (ASCII letters,
// digits, "-", ".", "_", "~" plus non-ASCII letters and digits) are percent
// encoded. "/" is always encoded. If id contains a path traversal sequence,
// in plain or percent-encoded form, every byte is encoded.
func SanitizeID(id string) string {
	id = norm.NFC.String(id)
	if hasTraversal(id) {
		return encodeAll(id)
	}
	if strings.IndexFunc(id, func(r rune) bool { return !safe(r) }) < 0 {
		return id
	}
	var sb strings.Builder
	sb.Grow(len(id) * 3)
	for _, r := range id {
		if safe(r) {
			sb.WriteRune(r)
			continue
		}
		var buf [utf8.UTFMax]byte
		n := utf8.EncodeRune(buf[:], r)
		for _, c := range buf[:n] {
			writeEscaped(&sb, c)
		}
	}
	return sb.String()
}

func safe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '.', r == '_', r == '~':
		return true
	case r >= utf8.RuneSelf && r != utf8.RuneError:
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}
	return false
}

// hasTraversal looks for ".." next to a path separator, or on its own, after
// undoing up to three rounds of percent encoding of ".", "/", "\" and "%".
func hasTraversal(id string) bool {
	s := strings.ToLower(id)
	for i := 0; i < 4; i++ {
		if s == ".." || strings.Contains(s, "../") || strings.Contains(s, `..\`) ||
			strings.HasSuffix(s, "/..") || strings.HasSuffix(s, `\..`) {
			return true
		}
		if !strings.Contains(s, "%") {
			return false
		}
		s = decoder.Replace(s)
	}
	return false
}

var decoder = strings.NewReplacer("%2e", ".", "%2f", "/", "%5c", `\`, "%25", "%")

func encodeAll(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		writeEscaped(&sb, s[i])
	}
	return sb.String()
}

func writeEscaped(sb *strings.Builder, c byte) {
	sb.WriteByte('%')
	sb.WriteByte(upperhex[c>>4])
	sb.WriteByte(upperhex[c&15])
}
