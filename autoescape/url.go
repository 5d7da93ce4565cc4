package autoescape

import "strings"

// dangerousSchemes are schemes that can execute script or navigate in ways
// that make them unsafe destinations for untrusted data, per spec §6.3.
var dangerousSchemes = map[string]bool{
	"javascript": true,
	"vbscript":   true,
	"blob":       true,
	"filesystem": true,
}

func isSchemeStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isSchemeCont(b byte) bool {
	return isSchemeStart(b) || (b >= '0' && b <= '9') || b == '+' || b == '-' || b == '.'
}

// dataSchemeDangerous reports whether a literal "data:" scheme is unsafe in
// the given attribute context. Non-trusted, non-media sinks (e.g. a href,
// form action) must not accept arbitrary data URIs; img/video/audio src and
// explicitly trusted-resource-uri sinks may.
func dataSchemeDangerous(c context) bool {
	return c.attr != attrURITrusted && c.element != elementMedia
}

func tURI(c context, s []byte) (context, int) {
	phase := c.urlPart
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch phase {
		case urlPartStart:
			if isSchemeStart(b) {
				phase = urlPartMaybeScheme
				continue
			}
			// Nothing has been consumed yet: lex this byte as path so the
			// call still makes progress (see transitionFunc).
			c2 := c
			c2.urlPart = urlPartAuthorityOrPath
			return tURI(c2, s)

		case urlPartMaybeScheme, urlPartMaybeVarScheme:
			if isSchemeCont(b) {
				continue
			}
			if b == ':' {
				scheme := strings.ToLower(string(s[:i]))
				c2 := c
				if dangerousSchemes[scheme] || (scheme == "data" && dataSchemeDangerous(c)) {
					c2.urlPart = urlPartDangerousScheme
				} else {
					c2.urlPart = urlPartAuthorityOrPath
				}
				return c2, i + 1
			}
			c2 := c
			c2.urlPart = urlPartAuthorityOrPath
			if i == 0 {
				return tURI(c2, s)
			}
			return c2, i

		case urlPartAuthorityOrPath:
			if b == '?' {
				c2 := c
				c2.urlPart = urlPartQuery
				return c2, i + 1
			}
			if b == '#' {
				c2 := c
				c2.urlPart = urlPartFragment
				return c2, i + 1
			}

		case urlPartQuery:
			if b == '#' {
				c2 := c
				c2.urlPart = urlPartFragment
				return c2, i + 1
			}

		case urlPartFragment, urlPartDangerousScheme, urlPartUnknown, urlPartUnknownPreFragment:
			// Terminal phases for lexing purposes: once a URL is known
			// dangerous, or its phase has been widened by a branch union,
			// further literal text doesn't need finer-grained tracking.
		}
	}
	c2 := c
	c2.urlPart = phase
	return c2, len(s)
}
