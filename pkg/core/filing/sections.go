// Package filing defines the canonical 10-K section catalog shared by the
// pre-seeker, extractor and segmenter. Sections are identified by SEC item
// number ("1", "1A", "7", ...) and located in documents via heuristic
// heading patterns.
package filing

import (
	"regexp"
	"strings"
)

// SectionID identifies a logical 10-K section by its item number.
type SectionID string

// Well-known section IDs.
const (
	ItemBusiness     SectionID = "1"
	ItemRiskFactors  SectionID = "1A"
	ItemProperties   SectionID = "2"
	ItemLegal        SectionID = "3"
	ItemMDA          SectionID = "7"
	ItemMarketRisk   SectionID = "7A"
	ItemFinancials   SectionID = "8"
	ItemControls     SectionID = "9A"
	ItemGovernance   SectionID = "10"
	ItemCompensation SectionID = "11"
)

// SectionDef describes one expected 10-K section.
type SectionDef struct {
	ID    SectionID
	Title string
}

// Definitions lists the expected sections of a Form 10-K in filing order.
var Definitions = []SectionDef{
	{"1", "Business"},
	{"1A", "Risk Factors"},
	{"1B", "Unresolved Staff Comments"},
	{"1C", "Cybersecurity"},
	{"2", "Properties"},
	{"3", "Legal Proceedings"},
	{"4", "Mine Safety Disclosures"},
	{"5", "Market for Common Equity"},
	{"6", "Selected Financial Data"},
	{"7", "Management's Discussion and Analysis"},
	{"7A", "Quantitative and Qualitative Disclosures About Market Risk"},
	{"8", "Financial Statements and Supplementary Data"},
	{"9", "Changes in and Disagreements with Accountants"},
	{"9A", "Controls and Procedures"},
	{"9B", "Other Information"},
	{"10", "Directors, Executive Officers and Corporate Governance"},
	{"11", "Executive Compensation"},
	{"12", "Security Ownership"},
	{"13", "Certain Relationships and Related Transactions"},
	{"14", "Principal Accountant Fees and Services"},
	{"15", "Exhibits and Financial Statement Schedules"},
}

var defIndex = func() map[SectionID]int {
	m := make(map[SectionID]int, len(Definitions))
	for i, d := range Definitions {
		m[d.ID] = i
	}
	return m
}()

// Lookup returns the definition for id, or nil if unknown.
func Lookup(id SectionID) *SectionDef {
	i, ok := defIndex[id]
	if !ok {
		return nil
	}
	return &Definitions[i]
}

// Following returns the definitions that come after id in filing order.
// Used to locate a section's end boundary (the next section's start).
func Following(id SectionID) []SectionDef {
	i, ok := defIndex[id]
	if !ok || i+1 >= len(Definitions) {
		return nil
	}
	return Definitions[i+1:]
}

// Preceding returns the definition immediately before id in filing order.
func Preceding(id SectionID) *SectionDef {
	i, ok := defIndex[id]
	if !ok || i == 0 {
		return nil
	}
	return &Definitions[i-1]
}

var patternCache = func() map[SectionID]*regexp.Regexp {
	m := make(map[SectionID]*regexp.Regexp, len(Definitions))
	for _, d := range Definitions {
		// Matches variations like "ITEM 1A. RISK FACTORS", "Item 1A - Risk
		// Factors", "Item 1A:Risk Factors". The item number must not be
		// followed by another alphanumeric ("Item 1" must not match "Item 1A").
		p := `(?i)item\s*` + regexp.QuoteMeta(string(d.ID)) + `\s*[.\-:—]\s*`
		m[d.ID] = regexp.MustCompile(p + `[A-Za-z]`)
	}
	return m
}()

// HeadingPattern returns the compiled boundary pattern for id, or nil.
func (d SectionDef) HeadingPattern() *regexp.Regexp {
	return patternCache[d.ID]
}

// MatchesHeading reports whether text looks like the opening heading of the
// section ("Item 1A. Risk Factors" and variants).
func (d SectionDef) MatchesHeading(text string) bool {
	re := patternCache[d.ID]
	if re == nil {
		return false
	}
	return re.MatchString(text)
}

// CanonicalHeading returns the conventional heading text for the section,
// used for fuzzy matching against observed headings.
func (d SectionDef) CanonicalHeading() string {
	return "Item " + string(d.ID) + ". " + d.Title
}

// AnchorHint returns the normalized fragment-identifier form of the section
// ("item1a"), the naming convention EDGAR filers overwhelmingly use for
// internal anchors.
func (d SectionDef) AnchorHint() string {
	return "item" + strings.ToLower(string(d.ID))
}

// NormalizeLabel lowercases text and strips non-alphanumeric characters so
// that anchor fragments and TOC labels can be compared loosely.
func NormalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
