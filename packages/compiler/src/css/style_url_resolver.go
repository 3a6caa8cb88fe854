package css

import (
	"regexp"
)

var urlWithSchemaRegexp = regexp.MustCompile(`^([^:/?#]+):`)

// IsStyleUrlResolvable reports whether a stylesheet href is relative to the template,
// or uses one of the package: and asset: schemes.
func IsStyleUrlResolvable(url string) bool {
	if url == "" || url[0] == '/' {
		return false
	}
	m := urlWithSchemaRegexp.FindStringSubmatch(url)
	return m == nil || m[1] == "package" || m[1] == "asset"
}
