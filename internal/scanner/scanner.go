// Package scanner discovers article links in Wikipedia HTML and rewrites the
// markup so that internal links navigate inside the application.
package scanner

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Tasour/wikipedia-graph/internal/title"
)

// Attributes set on rewritten internal anchors.
const (
	AttrTitle   = "data-wg-title"
	AttrSection = "data-wg-section"
)

// DefaultWikiHost is the host whose absolute /wiki/ URLs count as internal.
const DefaultWikiHost = "en.wikipedia.org"

// Options configures Scan.
type Options struct {
	WikiHost string
}

func (o *Options) applyDefaults() {
	if o.WikiHost == "" {
		o.WikiHost = DefaultWikiHost
	}
}

// Link is an internal link found on a page. Only the first anchor per target
// is reported.
type Link struct {
	Target  string `json:"target"`
	Section string `json:"section,omitempty"`
	LinkID  string `json:"link_id"`
}

// Result holds the output of scanning one page.
type Result struct {
	Content string
	Text    string
	Links   []Link
}

// Scan parses the page HTML of current, rewrites its anchors and returns the
// rewritten body markup, a plain-text rendition and the internal links in
// document order. Self-links are rewritten but not reported.
func Scan(r io.Reader, current string, opts Options) (*Result, error) {
	opts.applyDefaults()

	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("scanner: parse: %w", err)
	}
	body := findBody(doc)
	if body == nil {
		return nil, fmt.Errorf("scanner: document has no body")
	}

	seen := make(map[string]struct{})
	var links []Link
	for a, href := range Anchors(body) {
		if strings.HasPrefix(href, "#") {
			continue
		}
		target, section, ok := InternalTarget(href, opts.WikiHost)
		if !ok {
			setAttr(a, "target", "_blank")
			setAttr(a, "rel", "noopener")
			continue
		}
		setAttr(a, "href", "#")
		setAttr(a, AttrTitle, target)
		if section != "" {
			setAttr(a, AttrSection, section)
		}
		if target == current {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		id := title.LinkID(current, target)
		setAttr(a, "id", id)
		links = append(links, Link{Target: target, Section: section, LinkID: id})
	}

	body.InsertBefore(heading(current), body.FirstChild)

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return nil, fmt.Errorf("scanner: render: %w", err)
		}
	}

	return &Result{
		Content: buf.String(),
		Text:    PlainText(body),
		Links:   links,
	}, nil
}

// Anchors lazily yields every <a> element under root that has an href,
// together with the raw href value.
func Anchors(root *html.Node) iter.Seq2[*html.Node, string] {
	return func(yield func(*html.Node, string) bool) {
		walk(root, func(n *html.Node) bool {
			if n.Type != html.ElementNode || n.DataAtom != atom.A {
				return true
			}
			href, ok := attr(n, "href")
			if !ok || href == "" {
				return true
			}
			return yield(n, href)
		})
	}
}

// InternalTarget reports whether href points at an article on host and, if
// so, returns its normalized title and section. Recognized forms are
// "./T", "/wiki/T" and "http(s)://host/wiki/T". Query strings are dropped.
func InternalTarget(href, host string) (target, section string, ok bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", "", false
	}

	path := u.EscapedPath()
	switch {
	case u.Scheme != "" || u.Host != "":
		if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
			return "", "", false
		}
		if !strings.EqualFold(u.Hostname(), host) || !strings.HasPrefix(path, "/wiki/") {
			return "", "", false
		}
		path = strings.TrimPrefix(path, "/wiki/")
	case strings.HasPrefix(path, "/wiki/"):
		path = strings.TrimPrefix(path, "/wiki/")
	case strings.HasPrefix(path, "./"):
		path = strings.TrimPrefix(path, "./")
	case strings.HasPrefix(path, "/"), strings.HasPrefix(path, "../"):
		return "", "", false
	}

	target = title.Normalize(path)
	if target == "" {
		return "", "", false
	}
	return target, u.Fragment, true
}

// PlainText returns the visible text under n, one block element per line.
func PlainText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		block := isBlock(n)
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	visit(n)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func isBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.P, atom.Div, atom.Section, atom.Li, atom.Br, atom.Tr, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Dt, atom.Dd, atom.Figcaption:
		return true
	}
	return false
}

func heading(t string) *html.Node {
	h := &html.Node{
		Type:     html.ElementNode,
		Data:     "h1",
		DataAtom: atom.H1,
		Attr: []html.Attribute{
			{Key: "id", Val: "firstHeading"},
			{Key: "class", Val: "firstHeading"},
		},
	}
	h.AppendChild(&html.Node{Type: html.TextNode, Data: t})
	return h
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return false
		}
		return true
	})
	return body
}

// walk visits n and its descendants in document order until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
