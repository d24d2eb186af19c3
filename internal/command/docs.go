// ABOUTME: Loads command specs from markdown tool documentation using goldmark
// ABOUTME: Understands per-command headings and `name(args) - description` list items

package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrNoDocs is returned when a docs directory contains no recognisable commands.
var ErrNoDocs = errors.New("no command documentation found")

var (
	identRe     = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	signatureRe = regexp.MustCompile(`^([a-z][a-z0-9_]*)\(([^)]*)\)\s*(?:-\s*)?(.*)$`)
)

// Load returns the built-in catalog extended with specs parsed from the
// markdown files in dir. Documented specs replace built-in ones of the same
// name. An empty dir returns the built-in catalog.
func Load(dir string) (*Catalog, error) {
	if dir == "" {
		return Builtin(), nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading docs dir: %w", err)
	}

	var documented []Spec
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		documented = append(documented, ParseDocs(src, categoryFromFile(e.Name()))...)
	}
	if len(documented) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocs, dir)
	}

	specs := make([]Spec, 0, len(builtinSpecs)+len(documented))
	specs = append(specs, builtinSpecs...)
	specs = append(specs, documented...)
	return NewCatalog(specs), nil
}

// categoryFromFile turns "actor_tools.md" into "Actor Tools".
func categoryFromFile(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ParseDocs extracts command specs from one markdown document.
func ParseDocs(src []byte, category string) []Spec {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var (
		out      []Spec
		current  *Spec
		inParams bool
	)
	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
		inParams = false
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := nodeText(node, src)
			flush()
			if identRe.MatchString(title) {
				current = &Spec{Name: title, Category: category}
			} else if node.Level > 1 {
				category = title
			}

		case *ast.Paragraph:
			para := nodeText(node, src)
			lower := strings.ToLower(para)
			switch {
			case strings.HasPrefix(lower, "parameters"):
				inParams = true
			case strings.HasPrefix(lower, "returns"), strings.HasPrefix(lower, "example"):
				inParams = false
			case current != nil && current.Description == "":
				current.Description = para
			}

		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				itemText := nodeText(item, src)
				if m := signatureRe.FindStringSubmatch(itemText); m != nil {
					out = append(out, specFromSignature(m[1], m[2], m[3], category))
					continue
				}
				if current != nil && inParams {
					if param, ok := paramFromItem(item, itemText, src); ok {
						current.Params = append(current.Params, param)
					}
				}
			}
		}
	}
	flush()
	return out
}

func specFromSignature(name, args, desc, category string) Spec {
	s := Spec{Name: name, Category: category, Description: strings.TrimSpace(desc)}
	for _, arg := range strings.Split(args, ",") {
		arg = strings.TrimSpace(arg)
		if i := strings.IndexAny(arg, "=:"); i >= 0 {
			arg = strings.TrimSpace(arg[:i])
		}
		if arg != "" {
			s.Params = append(s.Params, Param{Name: arg})
		}
	}
	return s
}

// paramFromItem reads "`name` (type) - description" list items.
func paramFromItem(item ast.Node, itemText string, src []byte) (Param, bool) {
	var name string
	_ = ast.Walk(item, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindCodeSpan {
			name = nodeText(n, src)
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if name == "" {
		fields := strings.Fields(itemText)
		if len(fields) == 0 {
			return Param{}, false
		}
		name = strings.Trim(fields[0], ":,")
	}
	if !identRe.MatchString(name) {
		return Param{}, false
	}

	desc := ""
	if i := strings.Index(itemText, " - "); i >= 0 {
		desc = strings.TrimSpace(itemText[i+3:])
	}
	return Param{Name: name, Description: desc}, true
}

// nodeText concatenates the literal text below n.
func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
