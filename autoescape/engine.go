package autoescape

import (
	"fmt"

	"github.com/soyesc/soyesc/ast"
	"github.com/soyesc/soyesc/directive"
	"github.com/soyesc/soyesc/template"
)

// escaper carries all the state accumulated over one run of the inference
// engine: which (template, entry context) pairs have been resolved, what
// edits need applying to print and call nodes, and the errors discovered
// along the way. It is owned by a single call to Rewrite and never shared
// across runs, matching the teacher's original escaper type.
type escaper struct {
	reg             *template.Registry
	catalog         *directive.Catalog
	templatesByName map[string]*template.Template
	clones          *cloneTable

	inProgress map[cloneKey]bool
	guessed    map[cloneKey]bool // keys whose exit was guessed for a recursive call
	endCtx     map[cloneKey]context

	printEdits map[*ast.PrintNode][]string
	errs       []*Error

	currentTemplateName string
}

func newEscaper(reg *template.Registry, catalog *directive.Catalog) *escaper {
	byName := make(map[string]*template.Template, len(reg.Templates))
	for i := range reg.Templates {
		byName[reg.Templates[i].Name] = &reg.Templates[i]
	}
	return &escaper{
		reg:             reg,
		catalog:         catalog,
		templatesByName: byName,
		clones:          newCloneTable(reg),
		inProgress:      make(map[cloneKey]bool),
		guessed:         make(map[cloneKey]bool),
		endCtx:          make(map[cloneKey]context),
		printEdits:      make(map[*ast.PrintNode][]string),
	}
}

func (e *escaper) errorAt(code ErrorCode, node ast.Node, format string, args ...interface{}) context {
	var line, col int
	var file string
	if e.currentTemplateName != "" {
		line = e.reg.LineNumber(e.currentTemplateName, node)
		col = e.reg.ColNumber(e.currentTemplateName, node)
		file = e.reg.Filename(e.currentTemplateName)
	}
	err := errorf(code, file, line, col, format, args...)
	err.Name = e.currentTemplateName
	e.errs = append(e.errs, err)
	return context{state: stateError, err: err}
}

// escapeByKey is the fixed-point worklist step: it resolves (and, if
// needed, clones and memoizes) the template for key, walks its body, and
// records the exit context. Direct or mutual recursion is handled by
// seeding the guess that the callee exits in the same context it was
// entered in, then verifying that guess once the body has actually been
// walked (spec §4.2: "the engine seeds a guess ... and verifies by
// fixed-point re-analysis; divergence becomes an error").
func (e *escaper) escapeByKey(key cloneKey) context {
	if end, ok := e.endCtx[key]; ok {
		return end
	}
	if e.inProgress[key] {
		e.guessed[key] = true
		return key.entry
	}

	node, _, _ := e.clones.resolve(key.name, key.entry)
	// Only templates with an explicit content kind are pinned to a single
	// entry context; a contextual (kindNone) template is re-contextualized
	// freely, which is the entire point of cloning it per call-site context.
	if kind(node.Kind) != kindNone && !isValidStartContextForKind(kind(node.Kind), key.entry) {
		return e.errorAt(ErrKindExitMismatch, node,
			"template %s declared kind %q but is called in context %v", key.name, node.Kind, key.entry.state)
	}

	e.inProgress[key] = true
	prevName := e.currentTemplateName
	e.currentTemplateName = key.name
	end := e.escapeNode(key.entry, node.Body)
	e.currentTemplateName = prevName
	delete(e.inProgress, key)

	if end.state != stateError {
		if e.guessed[key] && end != key.entry {
			end = e.errorAt(ErrReentry, node,
				"Error while re-contextualizing template %s in context %v: a recursive call assumed it exits in its entry context, but it exits in %v",
				key.name, key.entry, end)
		} else if kind(node.Kind) != kindNone && !isValidEndContextForKind(kind(node.Kind), end) {
			end = e.errorAt(ErrKindExitMismatch, node,
				"template %s of kind %q cannot end in %v: %s",
				key.name, node.Kind, end.state, likelyEndContextMismatchCause(kind(node.Kind), end))
		} else if end.templateNestDepth != 0 {
			end = e.errorAt(ErrUnmatchedCloseTag, node,
				"template %s ends with %d unclosed <template> tag(s)", key.name, end.templateNestDepth)
		}
	}

	e.endCtx[key] = end
	return end
}

func (e *escaper) escapeNode(c context, n ast.Node) context {
	if c.state == stateError {
		return c
	}
	switch n := n.(type) {
	case *ast.ListNode:
		for _, child := range n.Nodes {
			c = e.escapeNode(c, child)
			if c.state == stateError {
				return c
			}
		}
		return c

	case *ast.RawTextNode:
		end, _ := escapeRawText(c, n)
		if end.state == stateError {
			if end.err != nil {
				return e.errorAt(end.err.Code, n, "%s", end.err.message)
			}
			return e.errorAt(ErrBadHTML, n, "could not compute context after raw text")
		}
		return end

	case *ast.PrintNode:
		return e.escapePrint(c, n)

	case *ast.IfNode:
		return e.escapeIf(c, n)

	case *ast.SwitchNode:
		return e.escapeSwitch(c, n)

	case *ast.ForNode:
		return e.escapeFor(c, n)

	case *ast.LetValueNode:
		return c

	case *ast.LetContentNode:
		e.escapeTypedOrInheritedBlock(c, kind(n.Kind), n.Body, n)
		return c

	case *ast.CallNode:
		return e.escapeCall(c, n)

	case *ast.CallParamValueNode:
		return c

	case *ast.CallParamContentNode:
		e.escapeTypedOrInheritedBlock(c, kind(n.Kind), n.Content, n)
		return c

	case *ast.MsgNode:
		return e.escapeMsg(c, n)

	case *ast.LiteralNode, *ast.CssNode, *ast.LogNode, *ast.DebuggerNode:
		return c
	}
	panic(fmt.Sprintf("autoescape: unsupported node type %T", n))
}

// escapeTypedOrInheritedBlock handles {let}/{param} bodies: a kind-typed
// block is analyzed starting from that kind's own context and must end
// compatibly with it; an untyped block is analyzed in the context it's
// written in purely to catch lexer errors, per spec §4.2 ("Untyped
// Let/Param: analyze body in the enclosing context; no kind check").
// Neither kind affects the surrounding traversal's context.
func (e *escaper) escapeTypedOrInheritedBlock(c context, k kind, body ast.Node, errNode ast.Node) {
	if k == kindNone {
		e.escapeNode(c, body)
		return
	}
	start := startContextForKind(k)
	end := e.escapeNode(start, body)
	if end.state == stateError {
		return
	}
	if !isValidEndContextForKind(k, end) {
		e.errorAt(ErrKindExitMismatch, errNode,
			"%s-kinded block cannot end in %v: %s", k, end.state, likelyEndContextMismatchCause(k, end))
	}
}

func (e *escaper) escapePrint(c context, n *ast.PrintNode) context {
	c = nudgeContext(c)
	if c.state == stateError {
		return c
	}

	for _, d := range n.Directives {
		if entry, ok := e.catalog.Lookup(d.Name); ok && entry.CancelAutoescape {
			if c.state != stateText {
				return e.errorAt(ErrDirectiveNotAllowed, n,
					"|%s cancels autoescaping but is only allowed in a kind=\"text\" block, not %v", d.Name, c.state)
			}
			return afterOpaqueValue(c)
		}
	}

	dirs, after, err := planDirectives(c)
	if err != nil {
		err.Name = e.currentTemplateName
		e.errs = append(e.errs, err)
		return context{state: stateError, err: err}
	}
	for _, d := range dirs {
		if _, ok := e.catalog.Lookup(d); !ok {
			panic("autoescape: planner chose unknown directive " + d)
		}
	}
	e.printEdits[n] = dirs
	return after
}

func (e *escaper) escapeIf(c context, n *ast.IfNode) context {
	var end context
	first := true
	hasElse := false
	for _, cond := range n.Conds {
		branchEnd := e.escapeNode(c, cond.Body)
		if branchEnd.state == stateError {
			return branchEnd
		}
		if cond.Cond == nil {
			hasElse = true
		}
		if first {
			end, first = branchEnd, false
			continue
		}
		merged, ok := union(end, branchEnd)
		if !ok {
			return e.errorAt(ErrBranchMerge, n, "if-branches end in incompatible contexts: %v vs %v", end, branchEnd)
		}
		end = merged
	}
	if !hasElse {
		merged, ok := union(end, c)
		if !ok {
			return e.errorAt(ErrBranchMerge, n, "implicit empty {if} else-branch is incompatible with %v", end)
		}
		end = merged
	}
	return end
}

func (e *escaper) escapeSwitch(c context, n *ast.SwitchNode) context {
	var end context
	first := true
	hasDefault := false
	for _, cs := range n.Cases {
		branchEnd := e.escapeNode(c, cs.Body)
		if branchEnd.state == stateError {
			return branchEnd
		}
		if len(cs.Values) == 0 {
			hasDefault = true
		}
		if first {
			end, first = branchEnd, false
			continue
		}
		merged, ok := union(end, branchEnd)
		if !ok {
			return e.errorAt(ErrBranchMerge, n, "switch-cases end in incompatible contexts: %v vs %v", end, branchEnd)
		}
		end = merged
	}
	if first {
		return c
	}
	if !hasDefault {
		merged, ok := union(end, c)
		if !ok {
			return e.errorAt(ErrBranchMerge, n, "implicit empty {switch} default is incompatible with %v", end)
		}
		end = merged
	}
	return end
}

func (e *escaper) escapeFor(c context, n *ast.ForNode) context {
	bodyEnd := e.escapeNode(c, n.Body)
	if bodyEnd.state == stateError {
		return bodyEnd
	}
	if bodyEnd != c {
		return e.errorAt(ErrReentry, n,
			"{for} body does not end in the same context after repeated entries: entered %v, exits %v", c, bodyEnd)
	}
	if n.IfEmpty == nil {
		return bodyEnd
	}
	emptyEnd := e.escapeNode(c, n.IfEmpty)
	if emptyEnd.state == stateError {
		return emptyEnd
	}
	merged, ok := union(bodyEnd, emptyEnd)
	if !ok {
		return e.errorAt(ErrBranchMerge, n, "{for} body and {ifempty} end in incompatible contexts")
	}
	return merged
}

// messageSafeStates are the tokenizer states a {msg} block may open in:
// ordinary text and HTML attribute values, where a translator supplies
// natural-language content. Anywhere else (JS, CSS, URI, tag/attribute
// name position, comments) would mean asking a translator to author code.
func messageSafeStates(s state) bool {
	switch s {
	case stateHTMLPCDATA, stateHTMLRCDATA, stateHTMLNormalAttrValue:
		return true
	}
	return false
}

func (e *escaper) escapeMsg(c context, n *ast.MsgNode) context {
	if !messageSafeStates(c.state) {
		return e.errorAt(ErrMessageInDisallowedContext, n, "{msg} not allowed in %v", c.state)
	}
	return e.escapeNode(c, n.Body)
}

func (e *escaper) escapeCall(c context, n *ast.CallNode) context {
	c = nudgeContext(c)
	if c.state == stateError {
		return c
	}

	callee, ok := e.templatesByName[n.Name]
	if !ok {
		// Unresolvable call targets are a parse/link-time concern, not this
		// pass's; leave the context unchanged so the rest of the template
		// can still be analyzed.
		return c
	}

	if callee.Autoescape == "false" && !messageSafeStates(c.state) && c.state != stateHTMLAttrName {
		return e.errorAt(ErrStrictCallOfNonStrict, n,
			"strict template calls legacy non-autoescaped template %s in %v", n.Name, c.state)
	}

	calleeKind := kind(callee.Kind)
	if calleeKind != kindNone {
		return e.escapeTypedCall(c, n, calleeKind)
	}

	key := cloneKey{n.Name, c}
	end := e.escapeByKey(key)
	if end.state == stateError {
		return end
	}
	if chosen, ok := e.clones.chosen[key]; ok && chosen != n.Name {
		n.Name = chosen
	}
	return end
}

// escapeTypedCall plans the call site like a typed print, per spec §4.2:
// "If callee has declared content kind, the result is a value of that
// kind; planning treats the call site like a typed print."
func (e *escaper) escapeTypedCall(c context, n *ast.CallNode, calleeKind kind) context {
	if calleeKindMatchesSink(calleeKind, c) {
		return afterOpaqueValue(c)
	}
	dirs, after, err := planDirectives(c)
	if err != nil {
		err.Name = e.currentTemplateName
		e.errs = append(e.errs, err)
		return context{state: stateError, err: err}
	}
	for _, d := range dirs {
		n.Directives = append(n.Directives, &ast.PrintDirectiveNode{Pos: n.Pos, Name: d})
	}
	return after
}

func isValidStartContextForKind(k kind, c context) bool {
	start := startContextForKind(k)
	if k == kindAttr {
		return c.state == stateHTMLTag || c.state == stateHTMLAttrName
	}
	return c.state == start.state
}

func isValidEndContextForKind(k kind, c context) bool {
	switch k {
	case kindNone, kindHTML:
		return c.state == stateHTMLPCDATA
	case kindCSS:
		return c.state == stateCSS
	case kindURL, kindTrustedResourceURL:
		return c.state == stateURI && c.urlPart != urlPartStart && c.urlPart != urlPartNone
	case kindAttr:
		return c.state == stateHTMLTag || c.state == stateHTMLAttrName
	case kindJS:
		return c.state == stateJS
	case kindText:
		return true
	default:
		panic("autoescape: content kind has no associated end context: " + string(k))
	}
}

func likelyEndContextMismatchCause(k kind, c context) string {
	if k == kindAttr {
		return "an unterminated attribute value, or ending with an unquoted attribute"
	}
	switch c.state {
	case stateHTMLTag, stateHTMLAttrName, stateHTMLBeforeAttrValue, stateHTMLTagName:
		return "an unterminated HTML tag or attribute"
	case stateCSS:
		return "an unclosed style block or attribute"
	case stateJS:
		return "an unclosed script block or attribute"
	case stateCSSComment, stateJSBlockComment, stateJSLineComment, stateHTMLComment:
		return "an unterminated comment"
	case stateCSSDqStr, stateCSSSqStr, stateJSDqStr, stateJSSqStr:
		return "an unterminated string literal"
	case stateURI, stateCSSURI, stateCSSDqURI, stateCSSSqURI:
		return "an unterminated or empty URI"
	case stateJSRegexp:
		return "an unterminated regular expression"
	default:
		return "unknown cause"
	}
}
