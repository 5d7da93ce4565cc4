package autoescape

import "fmt"

// state is a point in the HTML/CSS/JS/URI tokenization state machine.
type state uint8

const (
	stateHTMLPCDATA state = iota
	stateHTMLBeforeOpenTagName
	stateHTMLBeforeCloseTagName
	stateHTMLTagName
	stateHTMLTag
	stateHTMLAttrName
	stateHTMLBeforeAttrValue
	stateHTMLNormalAttrValue
	stateHTMLComment
	stateHTMLRCDATA
	stateCSS
	stateCSSComment
	stateCSSDqStr
	stateCSSSqStr
	stateCSSURI
	stateCSSDqURI
	stateCSSSqURI
	stateJS
	stateJSLineComment
	stateJSBlockComment
	stateJSDqStr
	stateJSSqStr
	stateJSRegexp
	stateJSTemplateLiteral
	stateURI
	stateText
	stateError
)

var stateNames = [...]string{
	stateHTMLPCDATA:            "HTMLPCDATA",
	stateHTMLBeforeOpenTagName: "HTMLBeforeOpenTagName",
	stateHTMLBeforeCloseTagName: "HTMLBeforeCloseTagName",
	stateHTMLTagName:           "HTMLTagName",
	stateHTMLTag:               "HTMLTag",
	stateHTMLAttrName:          "HTMLAttrName",
	stateHTMLBeforeAttrValue:   "HTMLBeforeAttrValue",
	stateHTMLNormalAttrValue:   "HTMLNormalAttrValue",
	stateHTMLComment:           "HTMLComment",
	stateHTMLRCDATA:            "HTMLRCDATA",
	stateCSS:                   "CSS",
	stateCSSComment:            "CSSComment",
	stateCSSDqStr:              "CSSDqStr",
	stateCSSSqStr:              "CSSSqStr",
	stateCSSURI:                "CSSURI",
	stateCSSDqURI:              "CSSDqURI",
	stateCSSSqURI:              "CSSSqURI",
	stateJS:                    "JS",
	stateJSLineComment:         "JSLineComment",
	stateJSBlockComment:        "JSBlockComment",
	stateJSDqStr:               "JSDqStr",
	stateJSSqStr:               "JSSqStr",
	stateJSRegexp:              "JSRegexp",
	stateJSTemplateLiteral:     "JSTemplateLiteral",
	stateURI:                   "URI",
	stateText:                  "Text",
	stateError:                 "Error",
}

func (s state) String() string { return stateNames[s] }

// isComment reports whether s is inside a JS, CSS or HTML comment, where prints
// are never allowed.
func isComment(s state) bool {
	switch s {
	case stateJSLineComment, stateJSBlockComment, stateCSSComment, stateHTMLComment:
		return true
	}
	return false
}

// isInTag reports whether s is nested within an HTML tag (so element/attr
// bookkeeping on the context is meaningful).
func isInTag(s state) bool {
	switch s {
	case stateHTMLTagName, stateHTMLTag, stateHTMLAttrName, stateHTMLBeforeAttrValue,
		stateHTMLNormalAttrValue, stateCSS, stateCSSComment, stateCSSDqStr, stateCSSSqStr,
		stateCSSURI, stateCSSDqURI, stateCSSSqURI, stateJS, stateJSLineComment,
		stateJSBlockComment, stateJSDqStr, stateJSSqStr, stateJSRegexp,
		stateJSTemplateLiteral, stateURI:
		return true
	}
	return false
}

// elementType records which special HTML element, if any, a tag name refers
// to. It governs what body context follows the tag's '>' and what URI
// sub-category an attribute falls in (Media).
type elementType uint8

const (
	elementNone elementType = iota
	elementNormal
	elementScript
	elementStyle
	elementTextarea
	elementTitle
	elementXMP
	elementLink
	elementLinkExecutable
	elementMedia
	elementURITrustedHost
)

// attrType classifies the attribute whose value is currently being
// tokenized.
type attrType uint8

const (
	attrNone attrType = iota
	attrPlainText
	attrScript
	attrStyle
	attrURI
	attrURITrusted
)

// delim is the character (if any) that closes the current attribute value.
type delim uint8

const (
	delimNone delim = iota
	delimDoubleQuote
	delimSingleQuote
	delimSpaceOrTagEnd
)

// jsCtx disambiguates whether a '/' that follows starts a regular
// expression literal or a division operator.
type jsCtx uint8

const (
	jsCtxNone jsCtx = iota
	jsCtxRegex
	jsCtxDivOp
	jsCtxUnknown
)

// urlPart tracks progress through a URL: scheme, authority/path, query,
// fragment.
type urlPart uint8

const (
	urlPartNone urlPart = iota
	urlPartStart
	urlPartMaybeScheme
	urlPartMaybeVarScheme
	urlPartAuthorityOrPath
	urlPartQuery
	urlPartFragment
	urlPartUnknownPreFragment
	urlPartUnknown
	urlPartDangerousScheme
)

// context is an immutable description of a precise point in HTML/JS/CSS/URI
// tokenization. It is a plain value: equality, hashing (via ==) and the zero
// value are all well defined, and union (see union.go) is a pure function
// over the tuple.
type context struct {
	state       state
	element     elementType
	attr        attrType
	delim       delim
	jsCtx       jsCtx
	urlPart     urlPart
	templateNestDepth int

	err *Error
}

func (c context) String() string {
	return fmt.Sprintf("(Context %v element=%v attr=%v delim=%v js=%v url=%v depth=%d)",
		c.state, c.element, c.attr, c.delim, c.jsCtx, c.urlPart, c.templateNestDepth)
}

func (e elementType) String() string {
	switch e {
	case elementNone:
		return "None"
	case elementNormal:
		return "Normal"
	case elementScript:
		return "Script"
	case elementStyle:
		return "Style"
	case elementTextarea:
		return "Textarea"
	case elementTitle:
		return "Title"
	case elementXMP:
		return "Xmp"
	case elementLink:
		return "Link"
	case elementLinkExecutable:
		return "LinkExecutable"
	case elementMedia:
		return "Media"
	case elementURITrustedHost:
		return "URITrustedHost"
	}
	return "?"
}

func (a attrType) String() string {
	switch a {
	case attrNone:
		return "None"
	case attrPlainText:
		return "PlainText"
	case attrScript:
		return "Script"
	case attrStyle:
		return "Style"
	case attrURI:
		return "Uri"
	case attrURITrusted:
		return "TrustedResourceUri"
	}
	return "?"
}

func (d delim) String() string {
	switch d {
	case delimNone:
		return "None"
	case delimDoubleQuote:
		return "DoubleQuote"
	case delimSingleQuote:
		return "SingleQuote"
	case delimSpaceOrTagEnd:
		return "SpaceOrTagEnd"
	}
	return "?"
}

func (j jsCtx) String() string {
	switch j {
	case jsCtxNone:
		return "None"
	case jsCtxRegex:
		return "Regex"
	case jsCtxDivOp:
		return "DivOp"
	case jsCtxUnknown:
		return "Unknown"
	}
	return "?"
}

func (u urlPart) String() string {
	switch u {
	case urlPartNone:
		return "None"
	case urlPartStart:
		return "Start"
	case urlPartMaybeScheme:
		return "MaybeScheme"
	case urlPartMaybeVarScheme:
		return "MaybeVariableScheme"
	case urlPartAuthorityOrPath:
		return "AuthorityOrPath"
	case urlPartQuery:
		return "Query"
	case urlPartFragment:
		return "Fragment"
	case urlPartUnknownPreFragment:
		return "UnknownPreFragment"
	case urlPartUnknown:
		return "Unknown"
	case urlPartDangerousScheme:
		return "DangerousScheme"
	}
	return "?"
}

// startContextForKind returns the canonical starting context for a template
// (or typed block) declared with the given content kind.
func startContextForKind(k kind) context {
	switch k {
	case kindCSS:
		return context{state: stateCSS}
	case kindNone, kindHTML:
		return context{state: stateHTMLPCDATA}
	case kindAttr:
		return context{state: stateHTMLTag, element: elementNormal}
	case kindJS:
		return context{state: stateJS, jsCtx: jsCtxRegex}
	case kindURL, kindTrustedResourceURL:
		return context{state: stateURI, urlPart: urlPartStart}
	case kindText:
		return context{state: stateText}
	}
	panic("unknown kind: " + string(k))
}
