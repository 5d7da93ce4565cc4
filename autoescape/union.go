package autoescape

// union computes the join of two contexts reached by different branches of
// a conditional or switch that must continue as a single context. The
// second return value is false if the two contexts are incompatible, in
// which case the caller should report a branch-merge error.
func union(a, b context) (context, bool) {
	if a == b {
		return a, true
	}
	if a.state == stateError || b.state == stateError {
		return context{state: stateError}, true
	}

	if a.state != b.state {
		// HtmlTag / HtmlTagName / HtmlAttrName with the same element type all
		// join to HtmlTag: this permits constructs like <a{if $x} class=foo{/if}>.
		if isTagLike(a.state) && isTagLike(b.state) && a.element == b.element {
			return context{state: stateHTMLTag, element: a.element}, true
		}
		// HtmlTag joins with HtmlNormalAttrValue iff that value ended in a
		// space-or-tag-end delimited attribute (i.e. it is really back in tag
		// context already).
		if a.state == stateHTMLTag && b.state == stateHTMLNormalAttrValue && b.delim == delimSpaceOrTagEnd {
			return a, true
		}
		if b.state == stateHTMLTag && a.state == stateHTMLNormalAttrValue && a.delim == delimSpaceOrTagEnd {
			return b, true
		}
		return context{}, false
	}

	// Same state, differing substructure.
	switch a.state {
	case stateJS, stateJSRegexp:
		if a.element != b.element || a.attr != b.attr || a.delim != b.delim {
			return context{}, false
		}
		if a.jsCtx == b.jsCtx {
			return a, true
		}
		return context{state: a.state, element: a.element, attr: a.attr, delim: a.delim, jsCtx: jsCtxUnknown}, true

	case stateURI, stateCSSURI, stateCSSDqURI, stateCSSSqURI:
		if a.element != b.element || a.attr != b.attr || a.delim != b.delim {
			return context{}, false
		}
		up, ok := unionURLPart(a.urlPart, b.urlPart)
		if !ok {
			return context{}, false
		}
		return context{state: a.state, element: a.element, attr: a.attr, delim: a.delim, urlPart: up}, true

	case stateHTMLNormalAttrValue:
		if a.delim != b.delim {
			return context{}, false
		}
		return a, true
	}

	// Any other field mismatch for an otherwise-identical state is
	// incompatible; contexts with no extra substructure that reach here
	// would already have been caught by the a == b check above.
	return context{}, false
}

func isTagLike(s state) bool {
	switch s {
	case stateHTMLTag, stateHTMLTagName, stateHTMLAttrName:
		return true
	}
	return false
}

// unionURLPart implements the URI phase lattice of spec §4.1:
//   - {Start, MaybeScheme, AuthorityOrPath, Query} join to UnknownPreFragment
//   - any of those joined with Fragment goes to Unknown
//   - MaybeVariableScheme absorbs its four pre-colon peers
//   - DangerousScheme is sticky
//   - MaybeVariableScheme joined with a post-colon phase fails
func unionURLPart(a, b urlPart) (urlPart, bool) {
	if a == b {
		return a, true
	}
	if a == urlPartDangerousScheme || b == urlPartDangerousScheme {
		return urlPartDangerousScheme, true
	}
	preColon := func(p urlPart) bool {
		switch p {
		case urlPartStart, urlPartMaybeScheme, urlPartAuthorityOrPath, urlPartQuery:
			return true
		}
		return false
	}
	if a == urlPartMaybeVarScheme || b == urlPartMaybeVarScheme {
		other := a
		if a == urlPartMaybeVarScheme {
			other = b
		}
		if preColon(other) {
			return urlPartMaybeVarScheme, true
		}
		return urlPartNone, false
	}
	if preColon(a) && preColon(b) {
		return urlPartUnknownPreFragment, true
	}
	if (preColon(a) || a == urlPartUnknownPreFragment) && b == urlPartFragment {
		return urlPartUnknown, true
	}
	if (preColon(b) || b == urlPartUnknownPreFragment) && a == urlPartFragment {
		return urlPartUnknown, true
	}
	if a == urlPartUnknownPreFragment || b == urlPartUnknownPreFragment {
		return urlPartUnknownPreFragment, true
	}
	if a == urlPartUnknown || b == urlPartUnknown {
		return urlPartUnknown, true
	}
	return urlPartNone, false
}
