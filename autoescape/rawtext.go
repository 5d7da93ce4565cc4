package autoescape

import "github.com/soyesc/soyesc/ast"

// escapeRawText runs the tokenizer over a template's literal text, starting
// in context c, and returns the context after the node along with the
// slices the run passed through. Adapted from html/template's
// context-after-text pass, generalized to the six-enum context tuple and to
// recording slices instead of rewriting the text in place (spec §3.3: the
// lexer only classifies raw text, it never rewrites it).
func escapeRawText(c context, n *ast.RawTextNode) (context, []Slice) {
	return Advance(c, n.Text)
}
