// Package parse turns filing HTML into an ordered tree of classified nodes.
//
// The adapter owns the three ugly sub-problems of EDGAR markup: text
// fragmented across runs of inline styling elements is merged back into
// single logical nodes; heading-like paragraphs are recognized by visual
// salience (bold weight and font size) rather than tag name, because filers
// rarely use semantic h-tags; and tables and tables-of-contents are labeled
// distinctly from body text so extraction can exclude them.
//
// Everything downstream depends only on the Node/Tree types, not on the
// underlying HTML library.
package parse

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Parser converts markup bytes into a Tree. Safe for concurrent use; each
// Parse call builds an independent tree.
type Parser struct {
	ancestorCap int
}

// NewParser returns a Parser with the default ancestor cap.
func NewParser() *Parser {
	return &Parser{ancestorCap: DefaultAncestorCap}
}

// NewParserWithCap overrides the breadcrumb depth cap.
func NewParserWithCap(ancestorCap int) *Parser {
	if ancestorCap <= 0 {
		ancestorCap = DefaultAncestorCap
	}
	return &Parser{ancestorCap: ancestorCap}
}

// Parse builds the classified node tree for one document or document slice.
// Parsing the same bytes twice yields identical trees.
func (p *Parser) Parse(doc []byte) (*Tree, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	tree := &Tree{AncestorCap: p.ancestorCap}
	w := &walker{tree: tree}

	body := gq.Find("body")
	if body.Length() == 0 {
		// Fragment without a body wrapper; html.Parse normally synthesizes
		// one, but fall back to the root selection just in case.
		body = gq.Selection
	}
	for _, n := range body.Nodes {
		w.walk(n, 0)
	}
	return tree, nil
}

// walker carries the heading stack through a single top-down pass.
type walker struct {
	tree *Tree
	// headings is the stack of open heading node indexes with their levels.
	headings []headingFrame
}

type headingFrame struct {
	node  int
	level int
}

func (w *walker) walk(n *html.Node, depth int) {
	if n.Type != html.ElementNode {
		if n.Type == html.TextNode {
			w.looseText(n, depth)
		}
		return
	}

	switch n.Data {
	case "script", "style", "head", "title", "noscript":
		return
	case "hr":
		w.append(Node{Type: PageFurniture, Text: "", Depth: depth})
		return
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := collapseText(n)
		if text != "" {
			w.pushHeading(text, int(n.Data[1]-'0'), depth)
		}
		return
	case "table":
		w.table(n, depth)
		return
	}

	// Anchor targets become explicit landmarks in the node stream, the same
	// [ANCHOR:id] convention the extractor's anchor strategy looks for.
	if id := anchorID(n); id != "" {
		w.append(Node{Type: Text, Text: "[ANCHOR:" + id + "]", Depth: depth})
	}

	if isBlock(n.Data) && !hasBlockChildren(n) {
		w.leafBlock(n, depth)
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, depth+1)
	}
}

// leafBlock handles a block element containing only inline content: the
// common case of a paragraph whose sentence is shredded across styling
// spans. collapseText reassembles it into one logical text.
func (w *walker) leafBlock(n *html.Node, depth int) {
	text := collapseText(n)
	if text == "" {
		return
	}

	if isFurniture(text) {
		w.append(Node{Type: PageFurniture, Text: text, Depth: depth})
		return
	}

	if level, ok := headingSalience(n, text); ok {
		w.pushHeading(text, level, depth)
		return
	}

	w.append(Node{Type: Paragraph, Text: text, Depth: depth})
}

// looseText captures non-empty text runs sitting directly between block
// elements.
func (w *walker) looseText(n *html.Node, depth int) {
	text := normalizeSpace(n.Data)
	if text == "" {
		return
	}
	if isFurniture(text) {
		w.append(Node{Type: PageFurniture, Text: text, Depth: depth})
		return
	}
	w.append(Node{Type: Text, Text: text, Depth: depth})
}

func (w *walker) table(n *html.Node, depth int) {
	raw, err := goquery.OuterHtml(selectionOf(n))
	if err != nil {
		raw = ""
	}

	typ := Table
	if isTOCTable(n) {
		typ = TableOfContents
	}
	w.append(Node{Type: typ, Text: collapseText(n), RawHTML: raw, Depth: depth})
}

// pushHeading appends a heading node and rethreads the heading stack: a new
// heading closes every open heading of equal or lower rank.
func (w *walker) pushHeading(text string, level, depth int) {
	for len(w.headings) > 0 && w.headings[len(w.headings)-1].level >= level {
		w.headings = w.headings[:len(w.headings)-1]
	}

	id := w.append(Node{Type: Heading, Text: text, Level: level, Depth: depth})
	w.headings = append(w.headings, headingFrame{node: id, level: level})
}

func (w *walker) append(n Node) int {
	n.ID = len(w.tree.Nodes)
	n.Parent = -1
	if len(w.headings) > 0 {
		n.Parent = w.headings[len(w.headings)-1].node
	}
	w.tree.Nodes = append(w.tree.Nodes, n)
	return n.ID
}

// ----------------------------------------------------------------------------
// classification helpers

var (
	boldStyleRe = regexp.MustCompile(`(?i)font-weight\s*:\s*(?:bold|[7-9]00)`)
	fontSizeRe  = regexp.MustCompile(`(?i)font-size\s*:\s*(\d+)(?:\.\d+)?\s*pt`)

	// Standalone page numbers and sheet references: "24", "Page 24",
	// "- 24 -", "F-7".
	furnitureRe = regexp.MustCompile(`^(?:Page\s*)?\d{1,4}$|^-\s*\d+\s*-$|^[A-Z]-\d+$`)

	sectionHeaderRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^item\s+\d`),
		regexp.MustCompile(`(?i)^part\s+[IVX]+\b`),
		regexp.MustCompile(`(?i)^note\s+\d`),
	}
)

// headingSalience decides whether a block is a disguised heading and, if so,
// its rank. Rules follow observed EDGAR conventions: bold 14pt+ text reads
// as a top-level heading, bold 12pt+ as a subheading, and short bold text
// matching section naming ("Item 8.", "PART II") is top-level regardless of
// declared size.
func headingSalience(n *html.Node, text string) (int, bool) {
	if len(text) > 200 {
		return 0, false
	}

	bold, size := styleSalience(n)
	if !bold {
		return 0, false
	}

	if looksLikeSectionHeader(text) {
		return 2, true
	}
	switch {
	case size >= 14:
		return 2, true
	case size >= 12:
		return 3, true
	}
	return 0, false
}

// styleSalience inspects the element and its inline descendants for bold
// weight and the largest declared font size.
func styleSalience(n *html.Node) (bold bool, size int) {
	var visit func(*html.Node)
	visit = func(e *html.Node) {
		if e.Type == html.ElementNode {
			if e.Data == "b" || e.Data == "strong" {
				bold = true
			}
			for _, a := range e.Attr {
				if a.Key != "style" {
					continue
				}
				if boldStyleRe.MatchString(a.Val) {
					bold = true
				}
				if m := fontSizeRe.FindStringSubmatch(a.Val); m != nil {
					var pt int
					fmt.Sscanf(m[1], "%d", &pt)
					if pt > size {
						size = pt
					}
				}
			}
		}
		for c := e.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return bold, size
}

func looksLikeSectionHeader(text string) bool {
	for _, re := range sectionHeaderRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func isFurniture(text string) bool {
	return len(text) < 20 && furnitureRe.MatchString(text)
}

// isTOCTable recognizes a table-of-contents: a table dense with internal
// fragment links, or dot-leader rows ending in page numbers.
func isTOCTable(n *html.Node) bool {
	links := 0
	var visit func(*html.Node)
	visit = func(e *html.Node) {
		if e.Type == html.ElementNode && e.Data == "a" {
			for _, a := range e.Attr {
				if a.Key == "href" && strings.HasPrefix(a.Val, "#") {
					links++
				}
			}
		}
		for c := e.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	if links >= 3 {
		return true
	}
	return strings.Contains(collapseText(n), ".....")
}

// ----------------------------------------------------------------------------
// text assembly

// collapseText merges all text content under n into one whitespace-normalized
// string, regardless of how many inline wrappers fragment it.
func collapseText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(e *html.Node) {
		if e.Type == html.TextNode {
			b.WriteString(e.Data)
			return
		}
		if e.Type == html.ElementNode {
			switch e.Data {
			case "script", "style":
				return
			case "br", "tr", "li", "p", "div":
				b.WriteByte(' ')
			}
		}
		for c := e.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return normalizeSpace(b.String())
}

var spaceRe = regexp.MustCompile(`\s+`)

// normalizeSpace collapses runs of whitespace (including non-breaking
// spaces) to single spaces and trims the result.
func normalizeSpace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func anchorID(n *html.Node) string {
	for _, a := range n.Attr {
		if (a.Key == "name" || a.Key == "id") && a.Val != "" && len(a.Val) < 80 {
			return a.Val
		}
	}
	return ""
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "td", "th", "blockquote", "pre", "center", "section", "article":
		return true
	}
	return false
}

func hasBlockChildren(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			switch c.Data {
			case "p", "div", "table", "ul", "ol", "blockquote", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article", "center":
				return true
			}
		}
	}
	return false
}

// selectionOf wraps a bare html node in a goquery selection.
func selectionOf(n *html.Node) *goquery.Selection {
	sel := new(goquery.Selection)
	sel.Nodes = []*html.Node{n}
	return sel
}
