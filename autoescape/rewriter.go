// Package autoescape rewrites a template.Registry to add contextually
// appropriate escaping directives to every dynamic {print} and {call},
// given the HTML/CSS/JS/URI context each one is reached in. Instead of
// naming an escaping routine explicitly, templates only need to declare
// the "kind" of content they produce (html, css, js, uri, attributes,
// text); the right sequence of escaping directives for the kind of data
// and the context it ends up in is chosen automatically.
//
// Unlike the legacy per-template autoescape mode, this package requires
// every template reachable from a root to be internally consistent: a
// template called from two distinct contexts gets re-contextualized
// (cloned) and each copy verified independently, and apparent errors
// (branches that leave a print in incompatible contexts, dynamic values
// inside a URL scheme that can't be classified, a {msg} inside a <script>
// block) are reported rather than silently worked around.
package autoescape

import (
	"strings"

	"github.com/soyesc/soyesc/ast"
	"github.com/soyesc/soyesc/directive"
	"github.com/soyesc/soyesc/template"
)

// commit applies every edit the engine recorded during analysis: directive
// names chosen for print nodes, and any synthesized clone templates, which
// are registered into reg under their mangled names so later {call}s to
// them resolve. Edits are applied only after the whole registry has been
// walked and found error-free, since a template visited from two call
// sites isn't safe to mutate in place until both contextualizations are
// known (the first one reuses the original node; see clone.go).
func (e *escaper) commit() {
	for node, dirs := range e.printEdits {
		for _, d := range dirs {
			node.Directives = append(node.Directives, &ast.PrintDirectiveNode{Pos: node.Pos, Name: d})
		}
	}

	for _, name := range e.clones.synthesizedNames() {
		clone := e.clones.nodes[name]
		orig := e.templatesByName[origNameOf(name)]
		if orig == nil {
			continue
		}
		e.reg.AddTemplate(orig.SoyDocNode, clone, orig.Namespace)
	}
}

// origNameOf strips a clone's synthesized suffix to recover the template
// name it was cloned from, so the rewriter can inherit its soydoc and
// namespace when registering the clone.
func origNameOf(cloneName string) string {
	if i := strings.Index(cloneName, cloneMarker); i >= 0 {
		return cloneName[:i]
	}
	return cloneName
}

// Rewrite walks every template reachable from a root (one never itself
// called, per the call graph), plus every template that declares a content
// kind, and adds the escaping directives contextual
// analysis determines are needed at each dynamic print and call, cloning
// and re-contextualizing templates called from more than one distinct
// context along the way. Templates are assumed to render into HTML
// PCDATA unless they declare a content kind, per §4.1.
//
// All templates are walked before anything is mutated: if any error is
// found, reg is left untouched and the full error list is returned so a
// caller can report every problem in one pass, not just the first.
func Rewrite(reg *template.Registry, catalog *directive.Catalog) []*Error {
	e := newEscaper(reg, catalog)
	graph := newCallGraph(reg)
	for _, root := range graph.roots() {
		entry := startContextForKind(kind(root.Kind))
		e.escapeByKey(cloneKey{root.Name, entry})
	}
	// escapeTypedCall plans a call to a kind-declared template without
	// walking its body, so each such template is analyzed here in its own
	// kind's start context.
	for _, t := range reg.Templates {
		if k := kind(t.Kind); k != kindNone {
			e.escapeByKey(cloneKey{t.Name, startContextForKind(k)})
		}
	}
	if len(e.errs) > 0 {
		return e.errs
	}
	e.commit()
	return nil
}
