// Package header classifies header names into forwardable and
// hop-by-hop sets for both proxy legs.
package header

import "strings"

// forbidden lists the headers that must never cross the proxy, in
// either direction. These are the hop-by-hop headers of RFC 2616
// section 13.5.1 plus the non-standard Proxy-Connection still sent by
// some clients. Lower-cased; never mutated after init.
var forbidden = map[string]bool{
	"proxy-connection":    true,
	"connection":          true,
	"keep-alive":          true,
	"transfer-encoding":   true,
	"te":                  true,
	"trailer":             true,
	"proxy-authorization": true,
	"proxy-authenticate":  true,
	"upgrade":             true,
}

// TokenSet is a request-scoped set of additional header names to
// exclude from forwarding, derived from the inbound Connection header.
// Keys are lower-cased. A nil TokenSet excludes nothing.
type TokenSet map[string]bool

// Has reports whether name is in the set, case-insensitively.
func (ts TokenSet) Has(name string) bool {
	if ts == nil {
		return false
	}
	return ts[strings.ToLower(name)]
}

// Forwardable reports whether a header with the given name may be
// copied across the proxy. The fixed forbidden set always applies;
// excl carries any per-request exclusions (nil on the response leg).
func Forwardable(name string, excl TokenSet) bool {
	lower := strings.ToLower(name)
	if forbidden[lower] {
		return false
	}
	return excl == nil || !excl[lower]
}

// ConnectionTokens parses an inbound Connection header value into the
// per-request exclusion set. The value is only meaningful when it
// lists keep-alive or close; anything else is treated as absent and
// yields nil. Otherwise every comma-separated token name in the value
// becomes an exclusion for this request.
func ConnectionTokens(value string) TokenSet {
	if value == "" {
		return nil
	}
	lower := strings.ToLower(value)
	if !strings.Contains(lower, "keep-alive") && !strings.Contains(lower, "close") {
		return nil
	}
	ts := make(TokenSet)
	for _, tok := range strings.Split(lower, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			ts[tok] = true
		}
	}
	return ts
}
