package autoescape

import (
	"fmt"
	"hash/fnv"

	"github.com/soyesc/soyesc/ast"
	"github.com/soyesc/soyesc/template"
)

// cloneMarker separates a clone's original template name from its context
// hash, e.g. "greet__C4a1f03e2". Chosen to match spec's documented clone
// naming scheme and to never collide with a dotted Soy template name.
const cloneMarker = "__C"

// cloneKey identifies one (template, entry context) pair the engine has
// been asked to contextualize.
type cloneKey struct {
	name  string
	entry context
}

// cloneTable memoizes which template serves each cloneKey. A template
// called from two distinct contexts needs two independently-escaped copies
// (spec §5.2: re-
// contextualization); the first entry context a template is ever
// requested in reuses its original AST nodes in place, later ones get a
// freshly synthesized clone under a mangled name.
type cloneTable struct {
	chosen    map[cloneKey]string          // (orig name, entry) -> name to call
	canonical map[string]context           // orig name -> first entry context seen
	nodes     map[string]*ast.TemplateNode // every name (orig or clone) -> its node
}

func newCloneTable(reg *template.Registry) *cloneTable {
	nodes := make(map[string]*ast.TemplateNode, len(reg.Templates))
	for _, t := range reg.Templates {
		nodes[t.Name] = t.TemplateNode
	}
	return &cloneTable{
		chosen:    make(map[cloneKey]string),
		canonical: make(map[string]context),
		nodes:     nodes,
	}
}

// resolve returns the ast.TemplateNode to escape for (origName, entry), the
// name it should be called by, and whether this call is new work (false if
// this exact (origName, entry) pair was already resolved).
func (ct *cloneTable) resolve(origName string, entry context) (node *ast.TemplateNode, name string, isNew bool) {
	key := cloneKey{origName, entry}
	if name, ok := ct.chosen[key]; ok {
		return ct.nodes[name], name, false
	}
	if canon, used := ct.canonical[origName]; !used || canon == entry {
		ct.canonical[origName] = entry
		ct.chosen[key] = origName
		return ct.nodes[origName], origName, true
	}

	newName := origName + cloneMarker + hashContext(entry)
	if _, exists := ct.nodes[newName]; !exists {
		orig := ct.nodes[origName]
		clone := cloneTemplateNode(orig, newName)
		ct.nodes[newName] = clone
	}
	ct.chosen[key] = newName
	return ct.nodes[newName], newName, true
}

// hashContext deterministically encodes an entry context as a short hex
// string, so two calls into the same template from equivalent contexts
// collapse onto the same clone instead of minting a fresh one each time.
func hashContext(c context) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s", c.String())
	return fmt.Sprintf("%x", h.Sum32())
}

// synthesizedNames lists every clone name minted (for reporting and for the
// rewriter to register into the registry).
func (ct *cloneTable) synthesizedNames() []string {
	var names []string
	for _, name := range ct.chosen {
		if _, ok := ct.canonical[name]; !ok {
			names = append(names, name)
		}
	}
	return dedupStrings(names)
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func cloneTemplateNode(n *ast.TemplateNode, newName string) *ast.TemplateNode {
	return &ast.TemplateNode{
		Pos:        n.Pos,
		Name:       newName,
		Body:       cloneNode(n.Body).(*ast.ListNode),
		Autoescape: n.Autoescape,
		Kind:       n.Kind,
	}
}

// cloneNode deep-copies the structural nodes the rewriter may need to edit
// independently per escaping context (print directives, call targets).
// Expression subtrees (conditions, call data, print arguments) are never
// mutated by autoescaping and are shared by reference with the original.
func cloneNode(n ast.Node) ast.Node {
	switch n := n.(type) {
	case nil:
		return nil
	case *ast.ListNode:
		nodes := make([]ast.Node, len(n.Nodes))
		for i, c := range n.Nodes {
			nodes[i] = cloneNode(c)
		}
		return &ast.ListNode{Pos: n.Pos, Nodes: nodes}
	case *ast.RawTextNode:
		return n // immutable; safe to share
	case *ast.PrintNode:
		return &ast.PrintNode{Pos: n.Pos, Arg: n.Arg, Directives: nil}
	case *ast.LiteralNode:
		cp := *n
		return &cp
	case *ast.CssNode:
		cp := *n
		return &cp
	case *ast.LogNode:
		return &ast.LogNode{Pos: n.Pos, Body: cloneNode(n.Body)}
	case *ast.DebuggerNode:
		cp := *n
		return &cp
	case *ast.LetValueNode:
		cp := *n
		return &cp
	case *ast.LetContentNode:
		return &ast.LetContentNode{Pos: n.Pos, Name: n.Name, Kind: n.Kind, Body: cloneNode(n.Body)}
	case *ast.MsgNode:
		return &ast.MsgNode{Pos: n.Pos, Desc: n.Desc, Meaning: n.Meaning, Body: cloneNode(n.Body)}
	case *ast.CallNode:
		params := make([]ast.Node, len(n.Params))
		for i, p := range n.Params {
			params[i] = cloneNode(p)
		}
		return &ast.CallNode{Pos: n.Pos, Name: n.Name, AllData: n.AllData, Data: n.Data, Params: params}
	case *ast.CallParamValueNode:
		cp := *n
		return &cp
	case *ast.CallParamContentNode:
		return &ast.CallParamContentNode{Pos: n.Pos, Key: n.Key, Kind: n.Kind, Content: cloneNode(n.Content)}
	case *ast.IfNode:
		conds := make([]*ast.IfCondNode, len(n.Conds))
		for i, c := range n.Conds {
			conds[i] = cloneNode(c).(*ast.IfCondNode)
		}
		return &ast.IfNode{Pos: n.Pos, Conds: conds}
	case *ast.IfCondNode:
		return &ast.IfCondNode{Pos: n.Pos, Cond: n.Cond, Body: cloneNode(n.Body)}
	case *ast.SwitchNode:
		cases := make([]*ast.SwitchCaseNode, len(n.Cases))
		for i, c := range n.Cases {
			cases[i] = cloneNode(c).(*ast.SwitchCaseNode)
		}
		return &ast.SwitchNode{Pos: n.Pos, Value: n.Value, Cases: cases}
	case *ast.SwitchCaseNode:
		return &ast.SwitchCaseNode{Pos: n.Pos, Values: n.Values, Body: cloneNode(n.Body)}
	case *ast.ForNode:
		return &ast.ForNode{Pos: n.Pos, Var: n.Var, List: n.List, Body: cloneNode(n.Body), IfEmpty: cloneNode(n.IfEmpty)}
	default:
		// Expression and leaf nodes reach here when referenced directly as a
		// child (e.g. *ast.TemplateNode.Body, which callers clone via the
		// typed path above); anything else is immutable value syntax shared
		// safely with the original.
		return n
	}
}
