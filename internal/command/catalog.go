// ABOUTME: Catalog of commands the control endpoint is known to accept
// ABOUTME: Renders a deterministic prompt listing and checks commands against it

package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Catalog errors
var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrUnknownParameter = errors.New("unknown parameter")
)

// Param describes one named parameter of a command.
type Param struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Spec describes a command the engine understands.
type Spec struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	Example     string  `json:"example,omitempty"`
}

// Signature renders the spec as name(param, ...).
func (s Spec) Signature() string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return s.Name + "(" + strings.Join(names, ", ") + ")"
}

func (s Spec) hasParam(name string) bool {
	for _, p := range s.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Catalog is an immutable set of command specs keyed by name.
type Catalog struct {
	specs map[string]Spec
	names []string
}

// NewCatalog builds a catalog. Later specs with the same name replace earlier ones.
func NewCatalog(specs []Spec) *Catalog {
	c := &Catalog{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if s.Category == "" {
			s.Category = "General"
		}
		c.specs[s.Name] = s
	}
	c.names = make([]string, 0, len(c.specs))
	for name := range c.specs {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}

// Len returns the number of commands in the catalog.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Lookup returns the spec for a command name.
func (c *Catalog) Lookup(name string) (Spec, bool) {
	s, ok := c.specs[name]
	return s, ok
}

// Names returns all command names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Specs returns all specs ordered by category, then name.
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.specs[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Category < out[j].Category
	})
	return out
}

// Check validates a command against the catalog: the name must be known and
// every parameter key must be declared by that command.
func (c *Catalog) Check(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	spec, ok := c.specs[cmd.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
	}
	keys := make([]string, 0, len(cmd.Parameters))
	for key := range cmd.Parameters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !spec.hasParam(key) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownParameter, cmd.Name, key)
		}
	}
	return nil
}

// Render produces the catalog as markdown for inclusion in an LLM prompt.
// The output depends only on the catalog contents.
func (c *Catalog) Render() string {
	var b strings.Builder
	category := ""
	for _, s := range c.Specs() {
		if s.Category != category {
			if category != "" {
				b.WriteString("\n")
			}
			category = s.Category
			b.WriteString("## " + category + "\n")
		}
		b.WriteString("- `" + s.Signature() + "`")
		if s.Description != "" {
			b.WriteString(" - " + s.Description)
		}
		b.WriteString("\n")
		if s.Example != "" {
			b.WriteString("  Example: " + s.Example + "\n")
		}
	}
	return b.String()
}
