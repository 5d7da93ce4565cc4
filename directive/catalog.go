// Package directive holds the catalog of contextual escaping and filtering
// directives the autoescaper attaches to print commands. The planner only
// consults it for names, arity, and cancellation behavior; at render time
// soyhtml.Tofu.AddDirectives bridges the same Entry.Apply functions into
// soyhtml.PrintDirectives (see Bundle.CompileToTofu) so the directives the
// planner chose are the ones that actually run.
package directive

import "github.com/soyesc/soyesc/data"

// Entry describes one print directive available to the autoescaper's
// planner.
type Entry struct {
	Name  string
	Apply func(value data.Value, args []data.Value) data.Value

	// ValidArgLengths lists the argument counts this directive accepts.
	ValidArgLengths []int

	// CancelAutoescape marks directives (like |noAutoescape) that opt a
	// print command out of contextual escaping entirely. The planner adds
	// no directives to a print that carries one, and accepts it only in a
	// kind="text" context; in any other context it is an error.
	CancelAutoescape bool

	// ProducesKind is the content kind the directive's output is safe to be
	// used as, or kindNone if its output is plain text with no special
	// safety guarantee. The planner does not read it: it chooses directives
	// from the context alone.
	ProducesKind string
}

// Catalog is a named lookup of directive Entries.
type Catalog struct {
	entries map[string]Entry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// Builtins returns a catalog pre-populated with every directive name the
// contextual autoescaper's planner can select.
func Builtins() *Catalog {
	c := NewCatalog()
	for name, e := range builtinEntries {
		e.Name = name
		c.entries[name] = e
	}
	return c
}

// Add registers or overrides a directive entry.
func (c *Catalog) Add(name string, e Entry) {
	e.Name = name
	c.entries[name] = e
}

// Lookup returns the entry for name, if the catalog knows it.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// All returns a copy of every entry the catalog holds, keyed by name. Used to
// bridge the planner's catalog into the render-time directive table (see
// soyhtml.Tofu.AddDirectives).
func (c *Catalog) All() map[string]Entry {
	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
