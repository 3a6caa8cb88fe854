package ml_parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// DecodeEntity decodes a single "&name;", "&#123;" or "&#x7b;" reference. The second
// result is false when the reference is unknown, in which case the input is returned.
func DecodeEntity(encoded string) (string, bool) {
	if !strings.HasPrefix(encoded, "&") || !strings.HasSuffix(encoded, ";") || len(encoded) < 3 {
		return encoded, false
	}
	decoded := html.UnescapeString(encoded)
	if decoded == encoded {
		return encoded, false
	}
	// UnescapeString also decodes legacy names as prefixes, so "&notanentity;" becomes
	// "¬anentity;". Only "&semi;" decodes to something ending in ';'.
	if strings.HasSuffix(decoded, ";") && decoded != ";" {
		return encoded, false
	}
	return decoded, true
}

var entityInInterpolation = regexp.MustCompile(`&([^;&\s]+);`)

// decodeEntitiesInInterpolation decodes references that appear verbatim inside an
// interpolation expression. Unknown names are kept as written.
func decodeEntitiesInInterpolation(expr string) string {
	if !strings.Contains(expr, "&") {
		return expr
	}
	return entityInInterpolation.ReplaceAllStringFunc(expr, func(match string) string {
		decoded, _ := DecodeEntity(match)
		return decoded
	})
}
