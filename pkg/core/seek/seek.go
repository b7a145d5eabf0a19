// Package seek locates a target section inside a raw HTML sub-document
// before any structural parse happens. Filings routinely run to 100+ MB
// while the requested section is a few hundred KB; pre-seeking trims the
// input to a byte-range slice so the parser never pays for the other 95%.
//
// All scanning is done with Go's RE2 regexp engine and plain byte searches,
// both linear in input length. No HTML tree is built here.
package seek

import (
	"regexp"
	"strings"

	"filing_segmenter/pkg/core/filing"
)

// Result is the outcome of a pre-seek: either a byte-range slice believed to
// contain the section, or a directive to parse the full document.
//
// A Sliced result is probabilistic. If downstream extraction over the slice
// comes back empty, the caller must retry with the full document.
type Result struct {
	Sliced   bool
	Start    int
	End      int
	Evidence string
}

// Evidence labels for the strategies.
const (
	EvidenceTOCAnchor    = "toc-anchor"
	EvidenceHeadingScan  = "heading-scan"
	EvidenceFullDocument = "full-document"
)

// FullDocument is the fallback result: no slice, parse everything.
func FullDocument() Result {
	return Result{Evidence: EvidenceFullDocument}
}

// Slice applies the result to the document bytes.
func (r Result) Slice(doc []byte) []byte {
	if !r.Sliced {
		return doc
	}
	return doc[r.Start:r.End]
}

// Seeker holds the compiled scan patterns. Safe for concurrent use.
type Seeker struct {
	// minSectionBytes rejects candidate slices shorter than this; a pair of
	// item headings only a few hundred bytes apart is a table-of-contents
	// row, not a section body.
	minSectionBytes int
}

// NewSeeker returns a Seeker with default thresholds.
func NewSeeker() *Seeker {
	return &Seeker{minSectionBytes: 2048}
}

var tocLinkRe = regexp.MustCompile(`(?is)<a\s[^>]*href="#([^"]+)"[^>]*>(.{0,200}?)</a>`)

// Seek runs the strategy cascade for target over doc.
//
// Strategy order:
//  1. table-of-contents hyperlink -> anchor target -> slice to the next
//     recognized section anchor,
//  2. lightweight heading-pattern scan over the raw bytes,
//  3. full document.
func (s *Seeker) Seek(doc []byte, target filing.SectionID) Result {
	def := filing.Lookup(target)
	if def == nil {
		return FullDocument()
	}

	if r, ok := s.seekByAnchor(doc, *def); ok {
		return r
	}
	if r, ok := s.seekByHeading(doc, *def); ok {
		return r
	}
	return FullDocument()
}

// seekByAnchor follows the document's own navigation: a TOC link whose
// visible text names the section points at an in-document anchor; the slice
// runs from that anchor to the nearest following anchor of a later section.
func (s *Seeker) seekByAnchor(doc []byte, def filing.SectionDef) (Result, bool) {
	links := tocLinkRe.FindAllSubmatchIndex(doc, -1)
	if len(links) == 0 {
		return Result{}, false
	}

	type tocEntry struct {
		frag string
		id   filing.SectionID
	}
	var entries []tocEntry
	for _, m := range links {
		frag := string(doc[m[2]:m[3]])
		label := stripTags(string(doc[m[4]:m[5]]))
		if id, ok := classifyLabel(label, frag); ok {
			entries = append(entries, tocEntry{frag: frag, id: id})
		}
	}

	start := -1
	for _, e := range entries {
		if e.id != def.ID {
			continue
		}
		if pos := findAnchor(doc, e.frag); pos >= 0 {
			start = pos
			break
		}
	}
	if start < 0 {
		return Result{}, false
	}

	// End: the closest following anchor belonging to a later section.
	end := len(doc)
	later := make(map[filing.SectionID]bool)
	for _, d := range filing.Following(def.ID) {
		later[d.ID] = true
	}
	for _, e := range entries {
		if !later[e.id] {
			continue
		}
		if pos := findAnchor(doc, e.frag); pos > start && pos < end {
			end = pos
		}
	}

	if end-start < s.minSectionBytes {
		return Result{}, false
	}
	return Result{Sliced: true, Start: start, End: end, Evidence: EvidenceTOCAnchor}, true
}

// seekByHeading scans the raw bytes for the section's heading pattern and
// the first subsequent heading of a later section. The first candidate pair
// with a body-sized gap wins; table-of-contents rows pair up too tightly to
// qualify.
func (s *Seeker) seekByHeading(doc []byte, def filing.SectionDef) (Result, bool) {
	startRe := rawHeadingPattern(def)
	starts := startRe.FindAllIndex(doc, -1)
	if len(starts) == 0 {
		return Result{}, false
	}

	var nextRes []*regexp.Regexp
	for _, d := range filing.Following(def.ID) {
		nextRes = append(nextRes, rawHeadingPattern(d))
	}

	for _, sm := range starts {
		start := sm[0]
		end := len(doc)
		for _, re := range nextRes {
			if m := re.FindIndex(doc[start+1:]); m != nil {
				if cand := start + 1 + m[0]; cand < end {
					end = cand
				}
			}
		}
		if end-start >= s.minSectionBytes {
			return Result{Sliced: true, Start: start, End: end, Evidence: EvidenceHeadingScan}, true
		}
	}
	return Result{}, false
}

// rawPatternCache is populated once at init so Seeker stays lock-free.
var rawPatternCache = func() map[filing.SectionID]*regexp.Regexp {
	gap := `(?:\s|&nbsp;|&#160;)*`
	m := make(map[filing.SectionID]*regexp.Regexp, len(filing.Definitions))
	for _, d := range filing.Definitions {
		m[d.ID] = regexp.MustCompile(`(?i)item` + gap + regexp.QuoteMeta(string(d.ID)) + gap + `[.\-:—&]`)
	}
	return m
}()

// rawHeadingPattern matches "Item 1A." style headings in raw HTML, where the
// gap may be regular whitespace or a non-breaking-space entity.
func rawHeadingPattern(def filing.SectionDef) *regexp.Regexp {
	return rawPatternCache[def.ID]
}

// itemLabelRe pulls the item number out of text like "Item 1A. Risk
// Factors" or a fragment like "item7a". The sub-letter must sit directly
// against the digits, otherwise "Item 1 Business" would read as "1B".
var itemLabelRe = regexp.MustCompile(`(?i)item[\s.\-:]*(\d{1,2})([A-Ca-c])?`)

// classifyLabel maps a TOC link's visible text (or its fragment id) to a
// section definition.
func classifyLabel(label, frag string) (filing.SectionID, bool) {
	if id, ok := extractItemID(label); ok {
		return id, true
	}
	normLabel := filing.NormalizeLabel(label)
	for _, d := range filing.Definitions {
		if normLabel == filing.NormalizeLabel(d.Title) {
			return d.ID, true
		}
	}
	return extractItemID(frag)
}

func extractItemID(s string) (filing.SectionID, bool) {
	m := itemLabelRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	id := filing.SectionID(m[1] + strings.ToUpper(m[2]))
	if filing.Lookup(id) == nil {
		return "", false
	}
	return id, true
}

// findAnchor returns the byte offset of the element carrying the fragment as
// a name or id attribute, or -1.
func findAnchor(doc []byte, frag string) int {
	re := regexp.MustCompile(`(?i)(?:name|id)\s*=\s*["']?` + regexp.QuoteMeta(frag) + `["'\s>]`)
	if m := re.FindIndex(doc); m != nil {
		// Back up to the opening '<' so the slice starts on a tag boundary.
		pos := m[0]
		for pos > 0 && doc[pos] != '<' && m[0]-pos < 256 {
			pos--
		}
		return pos
	}
	return -1
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, " "))
}
