package generation

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BodyMarkup returns the inner markup of <body> with script, style and
// noscript elements removed. Documents that fail to parse are returned as-is.
func BodyMarkup(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return doc
	}
	body := findElement(root, atom.Body)
	if body == nil {
		return doc
	}
	stripElements(body, atom.Script, atom.Style, atom.Noscript)

	var b strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return doc
		}
	}
	return strings.TrimSpace(b.String())
}

// DocumentTitle returns the trimmed text of the first <title> element.
func DocumentTitle(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	title := findElement(root, atom.Title)
	if title == nil {
		return ""
	}
	var b strings.Builder
	for c := title.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func stripElements(n *html.Node, atoms ...atom.Atom) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		drop := false
		if c.Type == html.ElementNode {
			for _, a := range atoms {
				if c.DataAtom == a {
					drop = true
					break
				}
			}
		}
		if drop {
			n.RemoveChild(c)
		} else {
			stripElements(c, atoms...)
		}
		c = next
	}
}
