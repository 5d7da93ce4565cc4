package autoescape

// kind is the declared content type of a template, {let}, or {param} block.
type kind string

const (
	kindNone               kind = ""
	kindText               kind = "text"
	kindHTML               kind = "html"
	kindCSS                kind = "css"
	kindURL                kind = "uri"
	kindTrustedResourceURL kind = "trusted_resource_uri"
	kindAttr               kind = "attributes"
	kindJS                 kind = "js"
)
