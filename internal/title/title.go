// Package title canonicalizes Wikipedia article references into the stable
// key shared by the page cache, the link registry and the graph store.
package title

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf16"
)

// Normalize returns the canonical form of a raw article reference: percent
// escapes are decoded, underscores become spaces, surrounding whitespace is
// trimmed and internal whitespace runs collapse to a single space.
//
// Malformed escapes are left as they are. Decoding repeats until the string
// stops changing, so Normalize(Normalize(x)) == Normalize(x). Every pass that
// changes the string shortens it, so the loop ends.
func Normalize(raw string) string {
	s := raw
	for {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == s {
			break
		}
		s = decoded
	}
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Equal reports whether two raw references name the same article.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// ValidID turns s into a string usable as an HTML element id: spaces become
// underscores, any other rune outside [A-Za-z0-9_] is replaced by the hex
// digits of its UTF-16 code units, and a leading digit gets an "id" prefix.
// Runes outside the BMP therefore encode as a surrogate pair ("d83dde00").
func ValidID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ' || r == '_':
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			for _, u := range utf16.Encode([]rune{r}) {
				fmt.Fprintf(&b, "%x", u)
			}
		}
	}
	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "id" + out
	}
	return out
}

// LinkID derives the anchor id of the link from source to target.
func LinkID(source, target string) string {
	return ValidID(source + "_" + target)
}

// ArticleURL returns the canonical article URL of t under base
// (e.g. "https://en.wikipedia.org").
func ArticleURL(base, t string) string {
	return strings.TrimRight(base, "/") + "/wiki/" + url.PathEscape(strings.ReplaceAll(t, " ", "_"))
}
