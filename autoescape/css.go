package autoescape

import (
	"bytes"
	"strings"
)

func tCSS(c context, s []byte) (context, int) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			c2 := c
			c2.state = stateCSSDqStr
			return c2, i + 1
		case '\'':
			c2 := c
			c2.state = stateCSSSqStr
			return c2, i + 1
		case '/':
			if i+1 < len(s) && s[i+1] == '*' {
				c2 := c
				c2.state = stateCSSComment
				return c2, i + 2
			}
		default:
			if isCSSURLStart(s[i:]) {
				n := len("url(")
				c2 := c
				c2.state, c2.urlPart = stateCSSURI, urlPartStart
				return c2, i + n
			}
		}
	}
	return c, len(s)
}

// isCSSURLStart reports whether s begins the CSS url( function token,
// case-insensitively, per spec §6.3.
func isCSSURLStart(s []byte) bool {
	const tok = "url("
	if len(s) < len(tok) {
		return false
	}
	return strings.EqualFold(string(s[:len(tok)]), tok)
}

func tCSSComment(c context, s []byte) (context, int) {
	i := bytes.Index(s, []byte("*/"))
	if i < 0 {
		return c, len(s)
	}
	c2 := c
	c2.state = stateCSS
	return c2, i + 2
}

func tCSSDqStr(c context, s []byte) (context, int) {
	return tCSSString(c, s, '"', stateCSS)
}

func tCSSSqStr(c context, s []byte) (context, int) {
	return tCSSString(c, s, '\'', stateCSS)
}

func tCSSString(c context, s []byte, quote byte, next state) (context, int) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			c2 := c
			c2.state = next
			return c2, i + 1
		}
	}
	return c, len(s)
}

// tCSSURI handles the unquoted form of url(...), e.g. url(/foo?x={{$x}}).
func tCSSURI(c context, s []byte) (context, int) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ')':
			c2 := c
			c2.state, c2.urlPart = stateCSS, urlPartNone
			return c2, i + 1
		case '"':
			c2 := c
			c2.state = stateCSSDqURI
			return c2, i + 1
		case '\'':
			c2 := c
			c2.state = stateCSSSqURI
			return c2, i + 1
		}
	}
	return c, len(s)
}

func tCSSDqURI(c context, s []byte) (context, int) {
	return tCSSURIString(c, s, '"')
}

func tCSSSqURI(c context, s []byte) (context, int) {
	return tCSSURIString(c, s, '\'')
}

func tCSSURIString(c context, s []byte, quote byte) (context, int) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			c2 := c
			c2.state = stateCSSURI
			return c2, i + 1
		}
	}
	return c, len(s)
}
