// Package dom has small helpers for building and editing detached HTML
// subtrees on top of golang.org/x/net/html.
package dom

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NewElement returns a detached element with the given classes.
//
//	div := dom.NewElement("div", "marker-content")
func NewElement(tag string, classes ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	AddClass(n, classes...)
	return n
}

// ── Attributes ────────────────────────────────────────────────────────────────

// Attr returns the value of attribute key.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute key, replacing an existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes attribute key.
func RemoveAttr(n *html.Node, key string) {
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == key
	})
}

// SetData sets a data-* attribute. key is given in camel case, as in the
// DOM dataset API: SetData(n, "contentId", "42") sets data-content-id="42".
func SetData(n *html.Node, key, val string) {
	SetAttr(n, dataAttr(key), val)
}

// Data returns the data-* attribute for a camel-case key.
func Data(n *html.Node, key string) (string, bool) {
	return Attr(n, dataAttr(key))
}

func dataAttr(key string) string {
	var b strings.Builder
	b.WriteString("data-")
	for _, r := range key {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ── Classes ───────────────────────────────────────────────────────────────────

// Classes returns the element's class list.
func Classes(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

// HasClass reports whether the element has class c.
func HasClass(n *html.Node, c string) bool {
	return slices.Contains(Classes(n), c)
}

// AddClass appends the classes the element does not have yet.
func AddClass(n *html.Node, classes ...string) {
	if len(classes) == 0 {
		return
	}
	list := Classes(n)
	for _, c := range classes {
		if c != "" && !slices.Contains(list, c) {
			list = append(list, c)
		}
	}
	setClasses(n, list)
}

// RemoveClass removes the given classes.
func RemoveClass(n *html.Node, classes ...string) {
	RemoveClassFunc(n, func(c string) bool { return slices.Contains(classes, c) })
}

// RemoveClassFunc removes every class for which drop returns true.
func RemoveClassFunc(n *html.Node, drop func(string) bool) {
	setClasses(n, slices.DeleteFunc(Classes(n), drop))
}

func setClasses(n *html.Node, list []string) {
	if len(list) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(list, " "))
}

// ── Content ───────────────────────────────────────────────────────────────────

// Append adds children to n in order.
func Append(n *html.Node, children ...*html.Node) {
	for _, c := range children {
		Detach(c)
		n.AppendChild(c)
	}
}

// SetText replaces the children of n with a single text node.
func SetText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// Find returns the first element in the subtree of n (n included) that has
// class c.
func Find(n *html.Node, c string) *html.Node {
	if n.Type == html.ElementNode && HasClass(n, c) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := Find(child, c); found != nil {
			return found
		}
	}
	return nil
}

// ── Tree edits ────────────────────────────────────────────────────────────────

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Replace puts repl where old is in the tree and detaches old. It reports
// false, changing nothing, when old has no parent.
func Replace(old, repl *html.Node) bool {
	parent := old.Parent
	if parent == nil || old == repl {
		return false
	}
	Detach(repl)
	parent.InsertBefore(repl, old)
	parent.RemoveChild(old)
	return true
}

// Render serializes the subtree rooted at n.
func Render(n *html.Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}
