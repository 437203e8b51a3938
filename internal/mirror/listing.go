package mirror

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	listID       = "mirrorList"
	autoselectID = "autoselect"
)

type entry struct {
	id    string
	label string
}

// parseListing extracts mirror ids and labels from the <li> elements under
// #mirrorList, in document order, skipping the autoselect entry.
func parseListing(r io.Reader) ([]entry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse mirror listing: %w", err)
	}

	list := findByID(doc, listID)
	if list == nil {
		return nil, nil
	}

	var entries []entry

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Li {
				id := strings.TrimSpace(attr(c, "id"))
				if id != "" && id != autoselectID {
					if label := labelFrom(text(c)); label != "" {
						entries = append(entries, entry{id: id, label: label})
					}
				}
			}

			walk(c)
		}
	}
	walk(list)

	return entries, nil
}

// labelFrom turns "Host (City, Country)" into "City".
func labelFrom(s string) string {
	s = strings.TrimSpace(s)

	open := strings.LastIndexByte(s, '(')
	closing := strings.LastIndexByte(s, ')')

	if open >= 0 && closing > open {
		s = s[open+1 : closing]
	}

	first, _, _ := strings.Cut(s, ",")

	return strings.TrimSpace(first)
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "id") == id {
		return n
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}

	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

// text returns the whitespace-normalised text content of n.
func text(n *html.Node) string {
	var b strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return strings.Join(strings.Fields(b.String()), " ")
}
