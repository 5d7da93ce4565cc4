package autoescape

import "fmt"

// transitionFunc consumes a prefix of s starting in context c and returns
// the context after that prefix along with how many bytes were consumed.
// Implementations must consume at least one byte unless they also change
// state (Advance enforces this as an invariant, see the panic below).
type transitionFunc func(c context, s []byte) (context, int)

var transitionFuncs = [...]transitionFunc{
	stateHTMLPCDATA:             tHTMLPCDATA,
	stateHTMLBeforeOpenTagName:  tHTMLBeforeOpenTagName,
	stateHTMLBeforeCloseTagName: tHTMLBeforeCloseTagName,
	stateHTMLTagName:            tHTMLTagName,
	stateHTMLTag:                tHTMLTag,
	stateHTMLAttrName:           tHTMLAttrName,
	stateHTMLBeforeAttrValue:    tHTMLBeforeAttrValue,
	stateHTMLNormalAttrValue:    tHTMLNormalAttrValue,
	stateHTMLComment:            tHTMLComment,
	stateHTMLRCDATA:             tHTMLRCDATA,
	stateCSS:                    tCSS,
	stateCSSComment:             tCSSComment,
	stateCSSDqStr:               tCSSDqStr,
	stateCSSSqStr:               tCSSSqStr,
	stateCSSURI:                 tCSSURI,
	stateCSSDqURI:               tCSSDqURI,
	stateCSSSqURI:               tCSSSqURI,
	stateJS:                     tJS,
	stateJSLineComment:          tJSLineComment,
	stateJSBlockComment:         tJSBlockComment,
	stateJSDqStr:                tJSDqStr,
	stateJSSqStr:                tJSSqStr,
	stateJSRegexp:                tJSRegexp,
	stateJSTemplateLiteral:      tJSTemplateLiteral,
	stateURI:                    tURI,
	stateText:                   tText,
	stateError:                  tError,
}

func tText(c context, s []byte) (context, int) { return c, len(s) }

func tError(c context, s []byte) (context, int) { return c, len(s) }

// Advance runs the raw-text tokenizer over text starting in context c,
// producing the context after the whole run plus the list of (offset,
// length, context) slices it passed through. Concatenating slices[i].Length
// bytes from each slices[i].Offset reproduces text exactly (spec §3.3).
func Advance(c context, text []byte) (context, []Slice) {
	var slices []Slice
	offset := 0
	for offset < len(text) {
		if c.state == stateError {
			break
		}
		fn := transitionFuncs[c.state]
		next, n := fn(c, text[offset:])
		if n == 0 && next.state == c.state {
			panic(fmt.Sprintf("autoescape: transitionFunc for %v made no progress on %q", c.state, text[offset:]))
		}
		slices = appendSlice(slices, offset, n, c)
		offset += n
		c = next
	}
	return c, slices
}
