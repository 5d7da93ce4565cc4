package autoescape

import "fmt"

// planDirectives chooses the ordered directive pipeline for a dynamic value
// injected in context c, and returns the context that follows the injected
// value. It never recurses into an AST node; it is a pure function of the
// context tuple, per spec §4.4/§6.4 (the planner only names directives, it
// never invokes one).
func planDirectives(c context) ([]string, context, *Error) {
	if isComment(c.state) {
		return nil, context{}, errorf(ErrPrintInDisallowedContext, "", 0, 0,
			"dynamic value not allowed inside a %v comment", c.state)
	}
	if c.state == stateJSTemplateLiteral {
		return nil, context{}, errorf(ErrPrintInDisallowedContext, "", 0, 0,
			"dynamic value not allowed inside a JS template literal")
	}

	var dirs []string
	after := c

	switch c.state {
	case stateHTMLPCDATA:
		dirs = append(dirs, "escapeHtml")

	case stateHTMLRCDATA:
		dirs = append(dirs, "escapeHtmlRcdata")

	case stateHTMLTagName, stateHTMLBeforeOpenTagName, stateHTMLBeforeCloseTagName:
		dirs = append(dirs, "filterHtmlElementName")

	case stateHTMLAttrName, stateHTMLTag:
		dirs = append(dirs, "filterHtmlAttributes")
		if c.delim == delimSpaceOrTagEnd {
			dirs = append(dirs, "whitespaceHtmlAttributes")
		}
		after.state = stateHTMLAttrName

	case stateHTMLNormalAttrValue:
		dirs = append(dirs, "escapeHtml")

	case stateCSS:
		dirs = append(dirs, "filterCssValue")

	case stateCSSDqStr, stateCSSSqStr:
		dirs = append(dirs, "escapeCssString")

	case stateCSSURI, stateCSSDqURI, stateCSSSqURI:
		uriDirs, err := planURIDirectives(c)
		if err != nil {
			return nil, context{}, err
		}
		dirs = append(dirs, uriDirs...)

	case stateURI:
		uriDirs, err := planURIDirectives(c)
		if err != nil {
			return nil, context{}, err
		}
		dirs = append(dirs, uriDirs...)
		after.urlPart = urlPartAuthorityOrPath

	case stateJS:
		dirs = append(dirs, "escapeJsValue")
		if c.element == elementScript && c.attr == attrNone {
			dirs = append(dirs, "filterHtmlScriptPhrasingData")
		}
		after.jsCtx = jsCtxDivOp

	case stateJSDqStr, stateJSSqStr:
		dirs = append(dirs, "escapeJsString")

	case stateJSRegexp:
		dirs = append(dirs, "escapeJsRegex")

	default:
		return nil, context{}, errorf(ErrPrintInDisallowedContext, "", 0, 0,
			"dynamic value not allowed in %v", c.state)
	}

	// Extra-escaping for attribute-value delimiting, per spec §4.4's
	// call-site rules: quoted values only need the base directive; values
	// in an unquoted (space-or-tag-end delimited) attribute need additional
	// neutralization of characters that would otherwise end the attribute.
	// The attribute-list sink (stateHTMLAttrName/stateHTMLTag) already got
	// its own unquoted handling above (whitespaceHtmlAttributes); running
	// it through escapeHtmlAttributeNospace too would mangle the '='/quote
	// characters an attribute list is made of.
	if (isInTag(c.state) && c.state != stateHTMLAttrName && c.state != stateHTMLTag) || c.state == stateHTMLNormalAttrValue {
		switch c.delim {
		case delimSpaceOrTagEnd:
			dirs = append(dirs, "escapeHtmlAttributeNospace")
		case delimDoubleQuote, delimSingleQuote:
			// the base HTML-escaping directive already neutralizes the quote
			// character in use; nothing further needed.
		}
	}

	return dirs, after, nil
}

// planURIDirectives implements the URI phase -> directive table of spec
// §4.4, keyed by both urlPart and whether the sink is TrustedResourceUri.
func planURIDirectives(c context) ([]string, *Error) {
	switch c.urlPart {
	case urlPartDangerousScheme:
		return nil, errorf(ErrUnsafeScheme, "", 0, 0, "dynamic value in a dangerous URL scheme")

	case urlPartUnknown, urlPartUnknownPreFragment:
		return nil, errorf(ErrAmbiguousScheme, "", 0, 0,
			"dynamic value's URL phase is ambiguous after branch union")

	case urlPartMaybeVarScheme:
		return nil, errorf(ErrAmbiguousScheme, "", 0, 0,
			"dynamic value appears where a URL scheme may or may not be complete")

	case urlPartStart, urlPartMaybeScheme:
		if c.attr == attrURITrusted {
			return []string{"filterTrustedResourceUri"}, nil
		}
		if c.element == elementMedia {
			return []string{"filterNormalizeMediaUri", "escapeUri"}, nil
		}
		return []string{"filterNormalizeUri", "escapeUri"}, nil

	case urlPartAuthorityOrPath:
		return []string{"normalizeUri"}, nil

	case urlPartQuery:
		return []string{"escapeUri"}, nil

	case urlPartFragment:
		return []string{"escapeUri"}, nil

	default:
		panic(fmt.Sprintf("autoescape: unexpected urlPart %v in URI context", c.urlPart))
	}
}

// nudgeContext completes a zero-width transition a print or call would
// trigger that a preceding raw-text run left implicit: `<a href={{$x}}>`
// never lexes a literal character of the attribute value, so the context
// recorded at the print is still "before attr value" or "in tag, about to
// read a name". Adapted from html/template's nudge.
func nudgeContext(c context) context {
	switch c.state {
	case stateHTMLTag:
		c.state = stateHTMLAttrName
	case stateHTMLBeforeAttrValue:
		c = attrStartContext(c.attr, c.element, delimSpaceOrTagEnd, c.templateNestDepth)
	}
	return c
}

// afterOpaqueValue returns the context following a value that is already
// known-safe for the sink (e.g. a call to a template whose declared kind
// exactly matches the call-site context): no directive is attached, but the
// tokenizer state still needs to advance the same way it would for any
// value (e.g. a JS value leaves a div-op position behind it).
func afterOpaqueValue(c context) context {
	switch c.state {
	case stateJS:
		c.jsCtx = jsCtxDivOp
	case stateURI:
		c.urlPart = urlPartAuthorityOrPath
	case stateHTMLTag:
		c.state = stateHTMLAttrName
	}
	return c
}

// calleeKindMatchesSink reports whether a callee's declared content kind
// already produces output safe for context c, letting the planner skip
// attaching any directive to the call site (spec §4.4's call-site
// optimization).
func calleeKindMatchesSink(k kind, c context) bool {
	start := startContextForKind(k)
	return start.state == c.state
}
