package checker

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultLogoHref is the link the logo anchor must point to.
const DefaultLogoHref = "https://www.imdb.com/video/vi59285529"

const (
	logoText  = "PMDb"
	logoClass = "logo"
)

var posterClasses = []string{"affiche", "petite-image"}

// HTMLChecker grades the structure of a submission's index.html.
type HTMLChecker struct {
	logoHref string
}

// NewHTMLChecker builds a checker expecting the logo to link to logoHref.
// An empty logoHref selects DefaultLogoHref.
func NewHTMLChecker(logoHref string) *HTMLChecker {
	if strings.TrimSpace(logoHref) == "" {
		logoHref = DefaultLogoHref
	}
	return &HTMLChecker{logoHref: logoHref}
}

// Check parses the document at path and evaluates the HTML checklist.
func (c *HTMLChecker) Check(path string) (Outcome, error) {
	file, err := openDocument(path)
	if err != nil {
		return Outcome{}, err
	}
	defer file.Close()

	return c.CheckReader(file)
}

// CheckReader evaluates the HTML checklist over an already opened document.
func (c *HTMLChecker) CheckReader(r io.Reader) (Outcome, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	// The parser always synthesises <head> and <body>.
	head := findFirst(doc, atom.Head)
	body := findFirst(doc, atom.Body)

	var outcome Outcome

	group := NewCheckGroup()
	group.Require(findFirstMatch(head, isStylesheetLink) != nil)
	group.Require(findFirst(head, atom.Title) != nil)
	outcome.record("head links a stylesheet and has a title", group)

	anchor := findFirst(body, atom.A)
	group = NewCheckGroup()
	group.Require(anchor != nil)
	if anchor != nil {
		text, ok := stringContent(anchor)
		group.Require(ok && text == logoText)
		href, ok := attr(anchor, "href")
		group.Require(ok && href == c.logoHref)
		group.Require(hasClass(anchor, logoClass))
	}
	outcome.record("first link is the PMDb logo", group)

	img := findFirst(body, atom.Img)
	group = NewCheckGroup()
	group.Require(img != nil && slices.ContainsFunc(posterClasses, func(class string) bool {
		return hasClass(img, class)
	}))
	outcome.record("first image is styled as a poster", group)

	return outcome, nil
}

func findFirst(n *html.Node, tag atom.Atom) *html.Node {
	return findFirstMatch(n, func(node *html.Node) bool {
		return node.DataAtom == tag
	})
}

// findFirstMatch walks the descendants of n in document order.
func findFirstMatch(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findFirstMatch(c, match); found != nil {
			return found
		}
	}
	return nil
}

func isStylesheetLink(n *html.Node) bool {
	if n.DataAtom != atom.Link {
		return false
	}
	rel, _ := attr(n, "rel")
	for _, token := range strings.Fields(rel) {
		if strings.EqualFold(token, "stylesheet") {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	value, ok := attr(n, "class")
	if !ok {
		return false
	}
	return slices.Contains(strings.Fields(value), class)
}

// stringContent returns the text of a node that has exactly one child,
// descending through single-child elements. Mixed content has no string.
func stringContent(n *html.Node) (string, bool) {
	child := n.FirstChild
	if child == nil || child.NextSibling != nil {
		return "", false
	}

	switch child.Type {
	case html.TextNode, html.CommentNode:
		return child.Data, true
	case html.ElementNode:
		return stringContent(child)
	default:
		return "", false
	}
}
