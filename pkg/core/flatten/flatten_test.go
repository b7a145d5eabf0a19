package flatten_test

import (
	"bytes"
	"strings"
	"testing"

	"filing_segmenter/pkg/core/flatten"
)

func TestShouldFlatten(t *testing.T) {
	if flatten.ShouldFlatten(1<<20, flatten.DefaultThreshold) {
		t.Error("1 MB input should not trigger flattening at the default threshold")
	}
	if !flatten.ShouldFlatten(6<<20, flatten.DefaultThreshold) {
		t.Error("6 MB input should trigger flattening at the default threshold")
	}
	if !flatten.ShouldFlatten(100, 100) {
		t.Error("size equal to threshold should trigger flattening")
	}
	// Non-positive threshold falls back to the default.
	if flatten.ShouldFlatten(1<<20, 0) {
		t.Error("zero threshold should behave like the default")
	}
}

func TestFlattenCollapsesSameTagNesting(t *testing.T) {
	in := []byte("<html><body><div><div><div><div>Revenue grew 12%.</div></div></div></div></body></html>")
	out := flatten.Flatten(in)

	if got := bytes.Count(out, []byte("<div")); got != 1 {
		t.Errorf("expected 1 div after collapse, got %d: %s", got, out)
	}
	if got := bytes.Count(out, []byte("</div>")); got != 1 {
		t.Errorf("expected 1 closing div, got %d: %s", got, out)
	}
	if !bytes.Contains(out, []byte("Revenue grew 12%.")) {
		t.Errorf("text content lost: %s", out)
	}
}

func TestFlattenDeepNestingStaysLinear(t *testing.T) {
	// A 200-level wrapper chain, the shape EDGAR authoring tools produce.
	depth := 200
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < depth; i++ {
		b.WriteString("<div>")
	}
	b.WriteString("Net sales were $391 billion.")
	for i := 0; i < depth; i++ {
		b.WriteString("</div>")
	}
	b.WriteString("</body></html>")

	out := flatten.Flatten([]byte(b.String()))
	if got := bytes.Count(out, []byte("<div")); got != 1 {
		t.Errorf("expected 1 div after collapsing %d levels, got %d", depth, got)
	}
	if !bytes.Contains(out, []byte("Net sales were $391 billion.")) {
		t.Error("text content lost")
	}
}

func TestFlattenKeepsMixedTags(t *testing.T) {
	// div-in-span-in-div carries structure: nothing collapses.
	in := []byte("<div><span><div>text</div></span></div>")
	out := flatten.Flatten(in)
	if got := bytes.Count(out, []byte("<div")); got != 2 {
		t.Errorf("mixed-tag nesting should survive, got %d divs: %s", got, out)
	}
	if got := bytes.Count(out, []byte("<span")); got != 1 {
		t.Errorf("span lost: %s", out)
	}
}

func TestFlattenPreservesAnchoredWrappers(t *testing.T) {
	// The inner div is an anchor target; collapsing it would break TOC
	// navigation downstream.
	in := []byte(`<div><div id="item1a"><div>Risk Factors</div></div></div>`)
	out := flatten.Flatten(in)
	if !bytes.Contains(out, []byte(`id="item1a"`)) {
		t.Errorf("anchor target dropped: %s", out)
	}
}

func TestFlattenSiblingsNotCollapsed(t *testing.T) {
	// Sibling divs with content are real structure, not wrapper chains.
	in := []byte("<div>first paragraph</div><div>second paragraph</div>")
	out := flatten.Flatten(in)
	if got := bytes.Count(out, []byte("<div")); got != 2 {
		t.Errorf("sibling divs collapsed: %s", out)
	}
}

func TestFlattenDropsHiddenSubtrees(t *testing.T) {
	in := []byte(`<div><p>visible text</p><div style="DISPLAY: none"><p>xbrl hidden facts</p></div><p>more visible</p></div>`)
	out := flatten.Flatten(in)

	if bytes.Contains(out, []byte("xbrl hidden facts")) {
		t.Errorf("hidden subtree survived: %s", out)
	}
	if !bytes.Contains(out, []byte("visible text")) || !bytes.Contains(out, []byte("more visible")) {
		t.Errorf("visible content lost: %s", out)
	}
}

func TestFlattenDropsComments(t *testing.T) {
	in := []byte("<div>kept<!-- Generated by EDGAR Online --></div>")
	out := flatten.Flatten(in)
	if bytes.Contains(out, []byte("Generated by")) {
		t.Errorf("comment survived: %s", out)
	}
	if !bytes.Contains(out, []byte("kept")) {
		t.Errorf("text lost: %s", out)
	}
}

func TestFlattenIdempotent(t *testing.T) {
	in := []byte("<html><body><div><div><span><span>Quarterly results follow.</span></span></div></div><hr/><p>End.</p></body></html>")
	once := flatten.Flatten(in)
	twice := flatten.Flatten(once)
	if !bytes.Equal(once, twice) {
		t.Errorf("flatten is not idempotent:\nonce:  %s\ntwice: %s", once, twice)
	}
}
