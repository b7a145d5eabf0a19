package extract_test

import (
	"strings"
	"testing"

	"filing_segmenter/pkg/core/extract"
	"filing_segmenter/pkg/core/filing"
	"filing_segmenter/pkg/core/parse"
)

// buildTree assembles a parse.Tree from literal nodes, assigning arena ids
// by position. Parent must be set explicitly in the literals.
func buildTree(nodes ...parse.Node) *parse.Tree {
	t := &parse.Tree{AncestorCap: parse.DefaultAncestorCap}
	for i := range nodes {
		nodes[i].ID = i
		t.Nodes = append(t.Nodes, nodes[i])
	}
	return t
}

func heading(text string, level, parent int) parse.Node {
	return parse.Node{Type: parse.Heading, Text: text, Level: level, Parent: parent}
}

func para(text string, parent int) parse.Node {
	return parse.Node{Type: parse.Paragraph, Text: text, Parent: parent}
}

func TestExtractByStructuralHeading(t *testing.T) {
	tree := buildTree(
		heading("Item 1A. Risk Factors", 2, -1),            // 0
		para("Competition may reduce our margins.", 0),     // 1
		para("Supply chains concentrate in one region.", 0), // 2
		heading("Item 1B. Unresolved Staff Comments", 2, -1), // 3
		para("None.", 3), // 4
	)

	sec := extract.NewExtractor().Extract(tree, filing.ItemRiskFactors)
	if sec == nil {
		t.Fatal("section not found")
	}
	if sec.StartEvidence != "structural-heading" {
		t.Errorf("StartEvidence = %q", sec.StartEvidence)
	}
	if sec.EndEvidence != "structural-heading:item-1B" {
		t.Errorf("EndEvidence = %q", sec.EndEvidence)
	}

	want := "Competition may reduce our margins.\n\nSupply chains concentrate in one region."
	if sec.FullText != want {
		t.Errorf("FullText = %q", sec.FullText)
	}
	if strings.Contains(sec.FullText, "None.") {
		t.Error("FullText leaked into the following section")
	}
	if len(sec.Nodes) != 2 {
		t.Fatalf("Nodes = %d", len(sec.Nodes))
	}
	if sec.Nodes[0].NearestHeading != "Item 1A. Risk Factors" {
		t.Errorf("NearestHeading = %q", sec.Nodes[0].NearestHeading)
	}
}

func TestExtractExcludesTablesFromFullText(t *testing.T) {
	tree := buildTree(
		heading("Item 8. Financial Statements and Supplementary Data", 2, -1), // 0
		para("The consolidated statements follow.", 0),                        // 1
		parse.Node{Type: parse.Table, Text: "Net sales 391,035 383,285", Parent: 0},
		parse.Node{Type: parse.TableOfContents, Text: "Index to Financial Statements.....45", Parent: 0},
		parse.Node{Type: parse.PageFurniture, Text: "F-2", Parent: 0},
		para("Notes to the statements are an integral part.", 0), // 5
		heading("Item 9. Changes in and Disagreements with Accountants", 2, -1),
	)

	sec := extract.NewExtractor().Extract(tree, filing.ItemFinancials)
	if sec == nil {
		t.Fatal("section not found")
	}
	for _, banned := range []string{"391,035", "Index to Financial", "F-2"} {
		if strings.Contains(sec.FullText, banned) {
			t.Errorf("FullText contains excluded content %q", banned)
		}
	}
	if len(sec.Nodes) != 2 {
		t.Errorf("expected 2 retained nodes, got %d", len(sec.Nodes))
	}
}

func TestExtractAbsentSectionIsNil(t *testing.T) {
	tree := buildTree(
		heading("Item 1. Business", 2, -1),
		para("We design consumer electronics.", 0),
	)
	if sec := extract.NewExtractor().Extract(tree, filing.ItemCompensation); sec != nil {
		t.Errorf("absent section should be nil, got %+v", sec)
	}
	if sec := extract.NewExtractor().Extract(tree, filing.SectionID("bogus")); sec != nil {
		t.Error("unknown section id should be nil")
	}
}

func TestExtractEmptyBoundaryIsNil(t *testing.T) {
	// A start boundary followed immediately by the next section, with only a
	// table in between, is a TOC artifact and must report absent.
	tree := buildTree(
		heading("Item 1A. Risk Factors", 2, -1),
		parse.Node{Type: parse.Table, Text: "cell content", Parent: 0},
		heading("Item 1B. Unresolved Staff Comments", 2, -1),
	)
	if sec := extract.NewExtractor().Extract(tree, filing.ItemRiskFactors); sec != nil {
		t.Errorf("empty section should be nil, got %+v", sec)
	}
}

func TestExtractFuzzyTitleFallback(t *testing.T) {
	// No separator after the item number, so the exact pattern cannot fire;
	// edit distance to the canonical heading is small.
	tree := buildTree(
		heading("ITEM 1A RISK FACTORS", 2, -1),
		para("Macroeconomic conditions could affect demand.", 0),
	)
	sec := extract.NewExtractor().Extract(tree, filing.ItemRiskFactors)
	if sec == nil {
		t.Fatal("fuzzy strategy did not fire")
	}
	if sec.StartEvidence != "fuzzy-title" {
		t.Errorf("StartEvidence = %q", sec.StartEvidence)
	}
}

func TestExtractAnchorMarkerFallback(t *testing.T) {
	tree := buildTree(
		parse.Node{Type: parse.Text, Text: "[ANCHOR:item7a]", Parent: -1},
		para("Interest rate sensitivity is modest.", -1),
	)
	sec := extract.NewExtractor().Extract(tree, filing.ItemMarketRisk)
	if sec == nil {
		t.Fatal("anchor strategy did not fire")
	}
	if sec.StartEvidence != "anchor-marker" {
		t.Errorf("StartEvidence = %q", sec.StartEvidence)
	}
	if strings.Contains(sec.FullText, "ANCHOR") {
		t.Error("anchor marker leaked into FullText")
	}
}

func TestExtractAnchorDoesNotClaimSubItem(t *testing.T) {
	// An "item1a" anchor must not satisfy a lookup for Item 1.
	tree := buildTree(
		parse.Node{Type: parse.Text, Text: "[ANCHOR:item1a]", Parent: -1},
		para("Risk factor body text here.", -1),
	)
	if sec := extract.NewExtractor().Extract(tree, filing.ItemBusiness); sec != nil {
		t.Errorf("Item 1 claimed an item1a anchor: %+v", sec)
	}
}

func TestExtractProximityFallback(t *testing.T) {
	// Item 1B has no recognizable heading of its own; it is found as the
	// first heading after the locatable Item 1A.
	tree := buildTree(
		heading("Item 1A. Risk Factors", 2, -1),      // 0
		para("Risks described above.", 0),            // 1
		heading("Unresolved Staff Comments", 2, -1),  // 2
		para("There are none to report.", 2),         // 3
	)
	sec := extract.NewExtractor().Extract(tree, filing.SectionID("1B"))
	if sec == nil {
		t.Fatal("proximity strategy did not fire")
	}
	if sec.StartEvidence != "proximity" {
		t.Errorf("StartEvidence = %q", sec.StartEvidence)
	}
	if !strings.Contains(sec.FullText, "none to report") {
		t.Errorf("FullText = %q", sec.FullText)
	}
	if strings.Contains(sec.FullText, "Risks described") {
		t.Error("FullText includes the preceding section")
	}
}

func TestExtractLastSectionRunsToDocumentEnd(t *testing.T) {
	tree := buildTree(
		heading("Item 15. Exhibits and Financial Statement Schedules", 2, -1),
		para("The exhibit index follows the signatures.", 0),
	)
	sec := extract.NewExtractor().Extract(tree, filing.SectionID("15"))
	if sec == nil {
		t.Fatal("section not found")
	}
	if sec.EndEvidence != "document-end" {
		t.Errorf("EndEvidence = %q", sec.EndEvidence)
	}
}
