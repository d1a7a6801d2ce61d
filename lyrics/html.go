package lyrics

import (
	"bytes"
	"fmt"
	"lyrics-bridge-go/utils"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// compound is one whitespace-separated part of a selector: "tag.class#id[attr=val]".
type compound struct {
	tag     string
	id      string
	classes []string
	attrKey string
	attrVal string
	hasVal  bool
}

// selector is a chain of compounds joined by descendant combinators.
type selector []compound

var (
	compoundRe = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*)?((?:[.#][A-Za-z0-9_-]+)*)(?:\[([A-Za-z_:][-A-Za-z0-9_:.]*)(?:=["']?([^"'\]]*)["']?)?\])?$`)
	idOrClass  = regexp.MustCompile(`[.#][^.#]+`)
)

func parseSelector(s string) (selector, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty selector")
	}

	sel := make(selector, 0, len(parts))
	for _, part := range parts {
		m := compoundRe.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("unsupported selector %q", part)
		}
		c := compound{tag: strings.ToLower(m[1]), attrKey: m[3], attrVal: m[4]}
		c.hasVal = strings.Contains(part, "=")

		for _, tok := range idOrClass.FindAllString(m[2], -1) {
			if tok[0] == '#' {
				c.id = tok[1:]
			} else {
				c.classes = append(c.classes, tok[1:])
			}
		}
		if c.tag == "" && c.id == "" && len(c.classes) == 0 && c.attrKey == "" {
			return nil, fmt.Errorf("unsupported selector %q", part)
		}
		sel = append(sel, c)
	}
	return sel, nil
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && n.Data != c.tag {
		return false
	}
	if c.id != "" && attr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range c.classes {
			found := false
			for _, h := range have {
				if h == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	if c.attrKey != "" {
		v, ok := lookupAttr(n, c.attrKey)
		if !ok || (c.hasVal && v != c.attrVal) {
			return false
		}
	}
	return true
}

// matches checks the last compound against n and the rest against its ancestors.
func (s selector) matches(n *html.Node) bool {
	if len(s) == 0 || !s[len(s)-1].matches(n) {
		return false
	}
	i := len(s) - 2
	for p := n.Parent; p != nil && i >= 0; p = p.Parent {
		if s[i].matches(p) {
			i--
		}
	}
	return i < 0
}

// first returns the first node in document order matched by s.
func (s selector) first(root *html.Node) *html.Node {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if s.matches(n) {
			found = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func parseHTML(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}

// firstLink returns the href of the first <a> in document order whose href matches re.
func firstLink(doc *html.Node, re *regexp.Regexp) (string, bool) {
	var href string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if v, ok := lookupAttr(n, "href"); ok && re.MatchString(strings.TrimSpace(v)) {
				href = v
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return href, walk(doc)
}

// extractBody returns the text of the first node matching sel, with <br> and
// block boundaries turned into newlines and blank-line runs collapsed.
func extractBody(doc *html.Node, sel selector) string {
	n := sel.first(doc)
	if n == nil {
		return ""
	}
	return utils.CollapseBlankLines(collectText(n))
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			case atom.Br:
				sb.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			sb.WriteByte('\n')
		}
	}
	walk(n)
	return sb.String()
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Pre, atom.Section, atom.Article, atom.Blockquote,
		atom.Li, atom.Ul, atom.Ol, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Tr, atom.Table:
		return true
	}
	return false
}
