package directive

import (
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/soyesc/soyesc/data"
)

// filterFailsafe is emitted in place of a value a filter directive rejects
// outright (a disallowed URI scheme, an invalid HTML element name). It is
// not a keyword in any programming language and is distinctive enough that
// a developer hitting it can find the cause via a search engine.
const filterFailsafe = data.String("zSoyz")

var builtinEntries = map[string]Entry{
	"escapeHtml":                   {Apply: escapeHTML, ValidArgLengths: []int{0}, ProducesKind: "html"},
	"escapeHtmlRcdata":             {Apply: escapeHTML, ValidArgLengths: []int{0}, ProducesKind: "html"},
	"escapeHtmlAttribute":          {Apply: escapeHTMLAttribute, ValidArgLengths: []int{0}},
	"escapeHtmlAttributeNospace":   {Apply: escapeHTMLAttributeNospace, ValidArgLengths: []int{0}},
	"filterHtmlElementName":        {Apply: filterHTMLElementName, ValidArgLengths: []int{0}},
	"filterHtmlAttributes":         {Apply: filterHTMLAttributes, ValidArgLengths: []int{0}},
	"whitespaceHtmlAttributes":     {Apply: whitespaceHTMLAttributes, ValidArgLengths: []int{0}},
	"escapeJsValue":                {Apply: escapeJSValue, ValidArgLengths: []int{0}},
	"filterHtmlScriptPhrasingData": {Apply: filterHTMLScriptPhrasingData, ValidArgLengths: []int{0}},
	"escapeJsString":               {Apply: escapeJSString, ValidArgLengths: []int{0}},
	"escapeJsRegex":                {Apply: escapeJSRegex, ValidArgLengths: []int{0}},
	"filterCssValue":               {Apply: filterCSSValue, ValidArgLengths: []int{0}},
	"escapeCssString":              {Apply: escapeCSSString, ValidArgLengths: []int{0}},
	"escapeUri":                    {Apply: escapeURI, ValidArgLengths: []int{0}, ProducesKind: "uri"},
	"normalizeUri":                 {Apply: normalizeURI, ValidArgLengths: []int{0}, ProducesKind: "uri"},
	"filterNormalizeUri":           {Apply: filterNormalizeURI, ValidArgLengths: []int{0}, ProducesKind: "uri"},
	"filterNormalizeMediaUri":      {Apply: filterNormalizeMediaURI, ValidArgLengths: []int{0}, ProducesKind: "uri"},
	"filterTrustedResourceUri":     {Apply: filterTrustedResourceURI, ValidArgLengths: []int{0}, ProducesKind: "trusted_resource_uri"},
	"noAutoescape":                 {Apply: func(v data.Value, _ []data.Value) data.Value { return v }, ValidArgLengths: []int{0}, CancelAutoescape: true},
}

func escapeHTML(value data.Value, _ []data.Value) data.Value {
	return data.String(html.EscapeString(value.String()))
}

func escapeHTMLAttribute(value data.Value, _ []data.Value) data.Value {
	return data.String(html.EscapeString(value.String()))
}

// escapeHTMLAttributeNospace escapes a value for an attribute value that
// isn't quoted, additionally neutralizing characters HTML5's unquoted
// attribute-value state treats as error characters (spec §6.2).
func escapeHTMLAttributeNospace(value data.Value, _ []data.Value) data.Value {
	s := html.EscapeString(value.String())
	r := strings.NewReplacer(
		" ", "&#32;", "\t", "&#9;", "\n", "&#10;", "\r", "&#13;",
		"\f", "&#12;", "=", "&#61;", "`", "&#96;",
	)
	return data.String(r.Replace(s))
}

var htmlElementNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9:-]*$`)

func filterHTMLElementName(value data.Value, _ []data.Value) data.Value {
	s := value.String()
	if !htmlElementNamePattern.MatchString(s) {
		return filterFailsafe
	}
	return data.String(s)
}

// htmlAttributesPattern permits the characters a run of `name` or
// `name="value"` pairs is built from; a literal '<' or '>' that would
// otherwise close the tag or open a new one is rejected outright.
var htmlAttributesPattern = regexp.MustCompile(`^(?:[a-zA-Z][a-zA-Z0-9:-]*(=(?:"[^"<>]*"|'[^'<>]*'))?\s*)*$`)

// filterHTMLAttributes guards a value printed directly into a tag as a run
// of attributes (a kind="attributes" sink), rejecting anything that isn't
// shaped like attribute name/value pairs.
func filterHTMLAttributes(value data.Value, _ []data.Value) data.Value {
	s := value.String()
	if !htmlAttributesPattern.MatchString(s) {
		return filterFailsafe
	}
	return data.String(s)
}

// whitespaceHTMLAttributes guarantees the printed attribute run is padded
// with whitespace on both sides, so it can't fuse with the tag name or an
// adjacent attribute when printed unquoted (space-or-tag-end delimited)
// directly inside a tag.
func whitespaceHTMLAttributes(value data.Value, _ []data.Value) data.Value {
	s := value.String()
	if s == "" {
		return data.String(" ")
	}
	if !strings.HasPrefix(s, " ") {
		s = " " + s
	}
	if !strings.HasSuffix(s, " ") {
		s += " "
	}
	return data.String(s)
}

// escapeJSValue renders an arbitrary value as a JS expression: strings
// become JS string literals, everything else is marshaled as JSON (which is
// a subset of JS expression syntax for objects/arrays/numbers/booleans).
func escapeJSValue(value data.Value, args []data.Value) data.Value {
	if s, ok := value.(data.String); ok {
		return data.String(jsStringLiteral(string(s)))
	}
	j, err := json.Marshal(value)
	if err != nil {
		return filterFailsafe
	}
	return data.String(j)
}

func escapeJSString(value data.Value, _ []data.Value) data.Value {
	s := jsStringLiteral(value.String())
	// Strip the quotes this directive's callers add their own delimiters.
	return data.String(s[1 : len(s)-1])
}

func jsStringLiteral(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '<':
			b.WriteString(`\u003c`)
		case '>':
			b.WriteString(`\u003e`)
		case ' ':
			b.WriteString(`\u2028`)
		case ' ':
			b.WriteString(`\u2029`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// scriptPhrasingDataPattern matches the substrings that would let a JS
// value embedded in a <script> element body escape the JS parser: a
// literal "</script" closes the tag early, and "<!--" opens an HTML
// comment that some browsers honor even inside <script>.
var scriptPhrasingDataPattern = regexp.MustCompile(`(?i)<(/?script|!--)`)

// filterHTMLScriptPhrasingData neutralizes those substrings by escaping the
// leading '<', without touching the rest of the already-JS-escaped value.
func filterHTMLScriptPhrasingData(value data.Value, _ []data.Value) data.Value {
	s := value.String()
	return data.String(scriptPhrasingDataPattern.ReplaceAllStringFunc(s, func(m string) string {
		return `\x3c` + m[1:]
	}))
}

var jsRegexSpecial = regexp.MustCompile(`[\\^$.*+?()\[\]{}|/\n\r  ]`)

func escapeJSRegex(value data.Value, _ []data.Value) data.Value {
	return data.String(jsRegexSpecial.ReplaceAllStringFunc(value.String(), func(s string) string {
		switch s {
		case "\n":
			return `\n`
		case "\r":
			return `\r`
		default:
			return `\` + s
		}
	}))
}

var cssValuePattern = regexp.MustCompile(`^[ \t\r\n\f#.%0-9a-zA-Z,()\-!"']*$`)

func filterCSSValue(value data.Value, _ []data.Value) data.Value {
	s := value.String()
	if !cssValuePattern.MatchString(s) {
		return filterFailsafe
	}
	return data.String(s)
}

var cssStringSpecial = regexp.MustCompile(`["'\\\n\r\f]`)

func escapeCSSString(value data.Value, _ []data.Value) data.Value {
	return data.String(cssStringSpecial.ReplaceAllStringFunc(value.String(), func(s string) string {
		return fmt.Sprintf(`\%x `, s[0])
	}))
}

func escapeURI(value data.Value, _ []data.Value) data.Value {
	return data.String(url.QueryEscape(value.String()))
}

// normalizeURI escapes but does not filter; it is used for the portion of a
// literal URI prefix where a scheme has already been statically verified
// safe (spec §4.4).
func normalizeURI(value data.Value, _ []data.Value) data.Value {
	s := value.String()
	var b strings.Builder
	for _, r := range s {
		if r <= 0x20 || r >= 0x7f || strings.ContainsRune("\"'<>`", r) {
			fmt.Fprintf(&b, "%%%02X", r)
			continue
		}
		b.WriteRune(r)
	}
	return data.String(b.String())
}

func filterNormalizeURI(value data.Value, args []data.Value) data.Value {
	s := value.String()
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "mailto", "ftp", "tel":
		default:
			return filterFailsafe
		}
	}
	return normalizeURI(value, args)
}

func filterNormalizeMediaURI(value data.Value, args []data.Value) data.Value {
	s := value.String()
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "data":
		default:
			return filterFailsafe
		}
	}
	return normalizeURI(value, args)
}

func filterTrustedResourceURI(value data.Value, _ []data.Value) data.Value {
	// A TrustedResourceUri sink only accepts values the template author
	// marked as such (a kindTrustedResourceURL typed block); the print
	// directive itself cannot verify provenance, so it only normalizes.
	s := value.String()
	var b strings.Builder
	for _, r := range s {
		if r <= 0x20 || r >= 0x7f {
			fmt.Fprintf(&b, "%%%02X", r)
			continue
		}
		b.WriteRune(r)
	}
	return data.String(b.String())
}
