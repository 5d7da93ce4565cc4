package autoescape

import (
	"bytes"
	"strings"
)

// specialElements maps a lower-cased tag name to the elementType it puts
// the tag into, per spec §3.1/§6.2. Tag names not present default to
// elementNormal.
var specialElements = map[string]elementType{
	"script":   elementScript,
	"style":    elementStyle,
	"textarea": elementTextarea,
	"title":    elementTitle,
	"xmp":      elementXMP,
	"link":     elementLinkExecutable, // optimistic; downgraded on a literal non-executable rel=, see maybeDowngradeLink
	"template": elementNormal,

	// These elements don't need their own body context (they're void or
	// ordinary PCDATA-bodied), but their identity has to survive past tag-
	// name scanning so the attribute scanner below can classify their
	// URI-bearing attribute correctly; elementType is the only thing that
	// does survive (see classifyAttr).
	"img": elementMedia, "source": elementMedia, "audio": elementMedia, "video": elementMedia,
	"iframe": elementURITrustedHost, "base": elementURITrustedHost,
	"object": elementURITrustedHost, "embed": elementURITrustedHost,
}

// executableRelValues are the <link rel=...> values that make the link
// fetch and execute content (spec §6.1, §9).
var executableRelValues = map[string]bool{
	"stylesheet": true,
	"import":     true,
	"preload":    true,
	"prefetch":   true,
}

// uriAttrs classifies (elementType, attrName) pairs into a URI attrType, per
// the bit-exact table in spec §6.1. Keying by elementType rather than the
// literal tag name string means the classification is exact and
// deterministic: by the time an attribute name is scanned, the tag name
// string itself is gone (tHTMLTag only has c.element), but every element
// sharing a URI-bearing attribute name here also shares the same attrType
// for it, so the elementType is all the precision this table needs.
type uriAttrKey struct {
	element elementType
	attr    string
}

var uriAttrs = map[uriAttrKey]attrType{
	{elementScript, "src"}:           attrURITrusted,
	{elementURITrustedHost, "src"}:   attrURITrusted, // iframe, embed
	{elementURITrustedHost, "href"}:  attrURITrusted, // base
	{elementURITrustedHost, "data"}:  attrURITrusted, // object
	{elementLinkExecutable, "href"}:  attrURITrusted, // rel is a stylesheet-like value
	{elementLink, "href"}:            attrURI,        // downgraded, rel known non-executable
	{elementMedia, "src"}:            attrURI,
	{elementMedia, "poster"}:         attrURI, // video
	{elementNormal, "href"}:          attrURI, // a, area
	{elementNormal, "formaction"}:    attrURI, // button
	{elementNormal, "action"}:        attrURI, // form
	{elementNormal, "src"}:           attrURI, // input
}

// anyElementURIAttrs are URI-bearing regardless of the element they appear
// on (spec §6.1's last row).
var anyElementURIAttrs = map[string]bool{
	"xmlns": true, "xml:base": true, "itemid": true, "itemtype": true,
}

func classifyElement(name string) elementType {
	if et, ok := specialElements[strings.ToLower(name)]; ok {
		return et
	}
	return elementNormal
}

// classifyAttr determines the attrType for attrName on an element already
// classified to e, per spec §3.1/§6.1.
func classifyAttr(e elementType, attrName string) attrType {
	attrName = strings.ToLower(attrName)

	if strings.HasPrefix(attrName, "on") {
		return attrScript
	}
	if attrName == "style" {
		return attrStyle
	}
	if strings.HasPrefix(attrName, "xmlns") || anyElementURIAttrs[attrName] {
		return attrURI
	}
	if t, ok := uriAttrs[uriAttrKey{e, attrName}]; ok {
		return t
	}
	if attrName == "xlink:href" {
		return attrURI
	}
	return attrPlainText
}

// isNameStart / isNameCont classify ASCII bytes valid at the start / in the
// continuation of an HTML tag or attribute name.
func isNameStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isNameCont(b byte) bool {
	return isNameStart(b) || (b >= '0' && b <= '9') || b == '-' || b == ':' || b == '@' || b == '_'
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}

func scanName(s []byte) int {
	i := 0
	for i < len(s) && isNameCont(s[i]) {
		i++
	}
	return i
}

// bodyContextForElement returns the context a tag's '>' transitions into,
// per spec §4.2.
func bodyContextForElement(e elementType, depth int) context {
	switch e {
	case elementScript:
		return context{state: stateJS, element: e, jsCtx: jsCtxRegex, templateNestDepth: depth}
	case elementStyle:
		return context{state: stateCSS, templateNestDepth: depth}
	case elementTextarea, elementTitle, elementXMP:
		return context{state: stateHTMLRCDATA, element: e, templateNestDepth: depth}
	default:
		return context{state: stateHTMLPCDATA, templateNestDepth: depth}
	}
}

// --- HTML transition functions ---

func tHTMLPCDATA(c context, s []byte) (context, int) {
	i := bytes.IndexByte(s, '<')
	if i < 0 {
		return c, len(s)
	}
	if i > 0 {
		return c, i
	}
	if bytes.HasPrefix(s, []byte("<!--")) {
		return context{state: stateHTMLComment, templateNestDepth: c.templateNestDepth}, 4
	}
	return context{state: stateHTMLBeforeOpenTagName, templateNestDepth: c.templateNestDepth}, 1
}

func tHTMLComment(c context, s []byte) (context, int) {
	i := bytes.Index(s, []byte("-->"))
	if i < 0 {
		return c, len(s)
	}
	if i > 0 {
		return c, i
	}
	return context{state: stateHTMLPCDATA, templateNestDepth: c.templateNestDepth}, 3
}

func tHTMLRCDATA(c context, s []byte) (context, int) {
	closeTag := "</" + elementRCDATAName(c.element)
	i := indexCaseInsensitive(s, closeTag)
	if i < 0 {
		return c, len(s)
	}
	if i > 0 {
		return c, i
	}
	// Consume the close tag through '>' if present on this chunk;
	// otherwise fall back to HtmlTag to eat the rest of it generically.
	j := bytes.IndexByte(s, '>')
	if j < 0 {
		return context{state: stateHTMLTag, element: elementNone, templateNestDepth: c.templateNestDepth}, len(closeTag)
	}
	return context{state: stateHTMLPCDATA, templateNestDepth: c.templateNestDepth}, j + 1
}

func elementRCDATAName(e elementType) string {
	switch e {
	case elementTextarea:
		return "textarea"
	case elementTitle:
		return "title"
	case elementXMP:
		return "xmp"
	}
	return ""
}

func indexCaseInsensitive(s []byte, sub string) int {
	return bytes.Index(bytes.ToLower(s), []byte(strings.ToLower(sub)))
}

func tHTMLBeforeOpenTagName(c context, s []byte) (context, int) {
	if len(s) == 0 {
		return c, 0
	}
	if s[0] == '/' {
		return context{state: stateHTMLBeforeCloseTagName, templateNestDepth: c.templateNestDepth}, 1
	}
	if !isNameStart(s[0]) {
		return context{state: stateHTMLPCDATA, templateNestDepth: c.templateNestDepth}, 0
	}
	n := scanName(s)
	name := string(s[:n])
	element := classifyElement(name)
	depth := c.templateNestDepth
	if strings.EqualFold(name, "template") {
		depth++
	}
	return context{state: stateHTMLTagName, element: element, templateNestDepth: depth}, n
}

func tHTMLBeforeCloseTagName(c context, s []byte) (context, int) {
	if len(s) == 0 {
		return c, 0
	}
	if !isNameStart(s[0]) {
		return context{state: stateHTMLPCDATA, templateNestDepth: c.templateNestDepth}, 0
	}
	n := scanName(s)
	name := string(s[:n])
	depth := c.templateNestDepth
	if strings.EqualFold(name, "template") {
		if depth == 0 {
			return lexErrorf(ErrUnmatchedCloseTag, "</template> seen with no matching open <template>"), n
		}
		depth--
	}
	return context{state: stateHTMLTag, element: elementNone, templateNestDepth: depth}, n
}

func lexErrorf(code ErrorCode, format string, args ...interface{}) context {
	return context{state: stateError, err: errorf(code, "", 0, 0, format, args...)}
}

func tHTMLTagName(c context, s []byte) (context, int) {
	return context{state: stateHTMLTag, element: c.element, templateNestDepth: c.templateNestDepth}, 0
}

func tHTMLTag(c context, s []byte) (context, int) {
	if len(s) == 0 {
		return c, 0
	}
	if isSpace(s[0]) {
		return c, 1
	}
	switch s[0] {
	case '>':
		return bodyContextForElement(c.element, c.templateNestDepth), 1
	case '/':
		if len(s) >= 2 && s[1] == '>' {
			return bodyContextForElement(c.element, c.templateNestDepth), 2
		}
		return c, 1
	}
	if isNameStart(s[0]) {
		n := scanName(s)
		name := string(s[:n])
		element := maybeDowngradeLink(c.element, name, s[n:])
		return context{state: stateHTMLAttrName, element: element, attr: classifyAttr(element, name), templateNestDepth: c.templateNestDepth}, n
	}
	return c, 1
}

func tHTMLAttrName(c context, s []byte) (context, int) {
	if len(s) == 0 {
		return c, 0
	}
	if isNameCont(s[0]) {
		return c, 1
	}
	if s[0] == '=' {
		return context{state: stateHTMLBeforeAttrValue, element: c.element, attr: c.attr, templateNestDepth: c.templateNestDepth}, 1
	}
	// Boolean attribute: no '=' follows. Go back to tag context.
	return context{state: stateHTMLTag, element: c.element, templateNestDepth: c.templateNestDepth}, 0
}

func tHTMLBeforeAttrValue(c context, s []byte) (context, int) {
	if len(s) == 0 {
		return c, 0
	}
	if isSpace(s[0]) {
		return c, 1
	}
	var d delim
	n := 0
	switch s[0] {
	case '"':
		d, n = delimDoubleQuote, 1
	case '\'':
		d, n = delimSingleQuote, 1
	default:
		d, n = delimSpaceOrTagEnd, 0
	}
	return attrStartContext(c.attr, c.element, d, c.templateNestDepth), n
}

// attrStartContext returns the sub-context entered upon seeing the first
// character (or open quote) of an attribute value, keyed off the
// attribute's classified type per spec §4.3.
func attrStartContext(a attrType, e elementType, d delim, depth int) context {
	switch a {
	case attrScript:
		return context{state: stateJS, element: e, attr: a, delim: d, jsCtx: jsCtxRegex, templateNestDepth: depth}
	case attrStyle:
		return context{state: stateCSS, element: e, attr: a, delim: d, templateNestDepth: depth}
	case attrURI, attrURITrusted:
		return context{state: stateURI, element: e, attr: a, delim: d, urlPart: urlPartStart, templateNestDepth: depth}
	default:
		return context{state: stateHTMLNormalAttrValue, element: e, attr: a, delim: d, templateNestDepth: depth}
	}
}

func tHTMLNormalAttrValue(c context, s []byte) (context, int) {
	end := attrValueEnd(c.delim, s)
	if end < 0 {
		return c, len(s)
	}
	return context{state: stateHTMLTag, element: c.element, templateNestDepth: c.templateNestDepth}, end
}

// attrValueEnd returns the number of bytes of s still inside an attribute
// value delimited by d, or -1 if the whole chunk remains inside the value.
func attrValueEnd(d delim, s []byte) int {
	switch d {
	case delimDoubleQuote:
		if i := bytes.IndexByte(s, '"'); i >= 0 {
			return i + 1
		}
	case delimSingleQuote:
		if i := bytes.IndexByte(s, '\''); i >= 0 {
			return i + 1
		}
	default: // delimSpaceOrTagEnd
		for i, b := range s {
			if isSpace(b) || b == '>' {
				return i
			}
		}
	}
	return -1
}

// maybeDowngradeLink implements spec §9's "default LinkExecutable,
// retroactive downgrade": if this is the rel= attribute of a <link> and the
// whole value is available as a literal in the same raw-text run, downgrade
// now instead of after the fact.
func maybeDowngradeLink(e elementType, attrName string, rest []byte) elementType {
	if e != elementLinkExecutable || !strings.EqualFold(attrName, "rel") {
		return e
	}
	i := 0
	for i < len(rest) && isSpace(rest[i]) {
		i++
	}
	if i >= len(rest) || rest[i] != '=' {
		return e
	}
	i++
	for i < len(rest) && isSpace(rest[i]) {
		i++
	}
	if i >= len(rest) {
		return e
	}
	var q byte
	if rest[i] == '"' || rest[i] == '\'' {
		q = rest[i]
		i++
	}
	start := i
	for i < len(rest) {
		if (q != 0 && rest[i] == q) || (q == 0 && (isSpace(rest[i]) || rest[i] == '>')) {
			break
		}
		i++
	}
	if i >= len(rest) && q != 0 {
		return e // value not fully present in this run; stay optimistic
	}
	value := strings.ToLower(string(rest[start:i]))
	for _, tok := range strings.Fields(value) {
		if executableRelValues[tok] {
			return e
		}
	}
	return elementLink
}

