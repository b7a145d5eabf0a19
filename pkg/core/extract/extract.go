// Package extract locates a requested logical section inside a parsed node
// tree and assembles its text.
//
// Section boundaries in filings are heuristic: some documents carry clean
// promoted headings, some only body-text patterns, some nothing but anchor
// landmarks. Boundary detection therefore runs a fallback cascade of
// independent strategies, and a missing section is a normal absent result,
// never an error.
package extract

import (
	"strings"

	"github.com/agext/levenshtein"

	"filing_segmenter/pkg/core/filing"
	"filing_segmenter/pkg/core/parse"
)

// SectionNode is one retained node of an extracted section, tagged with its
// enclosing-heading breadcrumb.
type SectionNode struct {
	Text           string   `json:"text"`
	NearestHeading string   `json:"nearest_heading"`
	Ancestors      []string `json:"ancestors,omitempty"`
}

// Section is one located logical section.
//
// FullText never contains text sourced from Table or TableOfContents nodes.
// That exclusion is a correctness requirement: table cells leaking into the
// aggregate poison every downstream text statistic.
type Section struct {
	ID            filing.SectionID `json:"section_id"`
	FullText      string           `json:"full_text"`
	Nodes         []SectionNode    `json:"nodes"`
	StartEvidence string           `json:"start_boundary_evidence"`
	EndEvidence   string           `json:"end_boundary_evidence"`
}

// Extractor runs boundary detection over parsed trees. Pure with respect to
// its inputs; safe for concurrent use.
type Extractor struct {
	// fuzzyThreshold is the minimum levenshtein similarity for the fuzzy
	// title strategy.
	fuzzyThreshold float64
}

// NewExtractor returns an Extractor with default thresholds.
func NewExtractor() *Extractor {
	return &Extractor{fuzzyThreshold: 0.82}
}

// Extract returns the section's content, or nil when no start boundary
// strategy succeeds. nil is the normal "not present" outcome.
func (e *Extractor) Extract(tree *parse.Tree, id filing.SectionID) *Section {
	def := filing.Lookup(id)
	if def == nil {
		return nil
	}

	start, startEv, ok := e.findStart(tree, *def)
	if !ok {
		return nil
	}

	end, endEv := e.findEnd(tree, *def, start)

	sec := &Section{ID: id, StartEvidence: startEv, EndEvidence: endEv}

	var text strings.Builder
	for i := start + 1; i < end; i++ {
		n := tree.Nodes[i]
		switch n.Type {
		case parse.Table, parse.TableOfContents, parse.PageFurniture:
			continue
		}
		if n.Text == "" || isAnchorMarker(n.Text) {
			continue
		}

		sec.Nodes = append(sec.Nodes, SectionNode{
			Text:           n.Text,
			NearestHeading: tree.NearestHeading(i),
			Ancestors:      tree.Ancestors(i),
		})
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(n.Text)
	}
	sec.FullText = text.String()

	if len(sec.Nodes) == 0 {
		// A boundary with nothing inside it is indistinguishable from a TOC
		// artifact; report the section as absent.
		return nil
	}
	return sec
}

// boundary strategy: returns the index of the node opening the section
// within tree.Nodes[from:], or ok=false.
type strategy struct {
	name string
	find func(e *Extractor, tree *parse.Tree, def filing.SectionDef, from int) (int, bool)
}

// The cascade order mirrors signal reliability: parser-promoted headings
// first, raw text patterns next, fuzzy titles, anchor landmarks, and
// finally position relative to a neighboring known section.
var strategies []strategy

// Populated in init to break the initialization cycle with byProximity,
// which consults the stronger strategies in this slice.
func init() {
	strategies = []strategy{
		{"structural-heading", (*Extractor).byStructuralHeading},
		{"heading-pattern", (*Extractor).byPattern},
		{"fuzzy-title", (*Extractor).byFuzzyTitle},
		{"anchor-marker", (*Extractor).byAnchorMarker},
		{"proximity", (*Extractor).byProximity},
	}
}

func (e *Extractor) findStart(tree *parse.Tree, def filing.SectionDef) (int, string, bool) {
	for _, s := range strategies {
		if idx, ok := s.find(e, tree, def, 0); ok {
			return idx, s.name, true
		}
	}
	return 0, "", false
}

// findEnd locates the start of the nearest following section; the end of the
// document closes the last section.
func (e *Extractor) findEnd(tree *parse.Tree, def filing.SectionDef, start int) (int, string) {
	end := len(tree.Nodes)
	evidence := "document-end"

	for _, next := range filing.Following(def.ID) {
		for _, s := range strategies[:4] { // proximity cannot bound itself
			if idx, ok := s.find(e, tree, next, start+1); ok {
				if idx < end {
					end = idx
					evidence = s.name + ":item-" + string(next.ID)
				}
				break
			}
		}
		if end < len(tree.Nodes) {
			break
		}
	}
	return end, evidence
}

// byStructuralHeading trusts the parser adapter: a node it already promoted
// to a top-level heading whose text opens with the section's item pattern.
func (e *Extractor) byStructuralHeading(tree *parse.Tree, def filing.SectionDef, from int) (int, bool) {
	for i := from; i < len(tree.Nodes); i++ {
		n := tree.Nodes[i]
		if n.Type != parse.Heading || n.Level > 2 {
			continue
		}
		if def.MatchesHeading(n.Text) {
			return i, true
		}
	}
	return 0, false
}

// byPattern accepts the item pattern anywhere in body text, not only in
// promoted headings. Table and TOC nodes are skipped: the pattern appears in
// every table of contents by construction.
func (e *Extractor) byPattern(tree *parse.Tree, def filing.SectionDef, from int) (int, bool) {
	for i := from; i < len(tree.Nodes); i++ {
		n := tree.Nodes[i]
		switch n.Type {
		case parse.Table, parse.TableOfContents, parse.PageFurniture:
			continue
		}
		if def.MatchesHeading(n.Text) {
			return i, true
		}
	}
	return 0, false
}

// byFuzzyTitle matches heading text against the canonical section heading
// with edit-distance similarity, absorbing punctuation drift and typos
// ("Item 1A – Risk Factors.", "ITEM 1A RISK FACTORS").
func (e *Extractor) byFuzzyTitle(tree *parse.Tree, def filing.SectionDef, from int) (int, bool) {
	want := strings.ToLower(def.CanonicalHeading())
	for i := from; i < len(tree.Nodes); i++ {
		n := tree.Nodes[i]
		if n.Type != parse.Heading {
			continue
		}
		got := strings.ToLower(n.Text)
		if len(got) > 2*len(want) {
			continue
		}
		if levenshtein.Match(want, got, nil) >= e.fuzzyThreshold {
			return i, true
		}
	}
	return 0, false
}

// byAnchorMarker finds the [ANCHOR:id] landmark the parser emits for anchor
// targets whose id follows the conventional item naming.
func (e *Extractor) byAnchorMarker(tree *parse.Tree, def filing.SectionDef, from int) (int, bool) {
	hint := def.AnchorHint()
	next := filing.Following(def.ID)
	for i := from; i < len(tree.Nodes); i++ {
		n := tree.Nodes[i]
		if n.Type != parse.Text || !isAnchorMarker(n.Text) {
			continue
		}
		id := filing.NormalizeLabel(n.Text)
		if !strings.Contains(id, hint) {
			continue
		}
		// "item1" must not claim "item1a" anchors.
		clash := false
		for _, d := range next {
			if strings.Contains(id, d.AnchorHint()) {
				clash = true
				break
			}
		}
		if !clash {
			return i, true
		}
	}
	return 0, false
}

// byProximity is the last resort: locate the preceding section with the
// stronger strategies and take the first heading after it that is not that
// section's own.
func (e *Extractor) byProximity(tree *parse.Tree, def filing.SectionDef, from int) (int, bool) {
	prev := filing.Preceding(def.ID)
	if prev == nil {
		return 0, false
	}

	prevStart := -1
	for _, s := range strategies[:4] {
		if idx, ok := s.find(e, tree, *prev, from); ok {
			prevStart = idx
			break
		}
	}
	if prevStart < 0 {
		return 0, false
	}

	for i := prevStart + 1; i < len(tree.Nodes); i++ {
		n := tree.Nodes[i]
		if n.Type == parse.Heading && n.Level <= 2 && !prev.MatchesHeading(n.Text) {
			return i, true
		}
	}
	return 0, false
}

func isAnchorMarker(text string) bool {
	return strings.HasPrefix(text, "[ANCHOR:") && strings.HasSuffix(text, "]")
}
