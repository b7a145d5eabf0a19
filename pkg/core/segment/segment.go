// Package segment splits cleaned section text into bounded, single-topic
// units ready for machine-learning consumption.
//
// Splitting runs a strategy cascade: embedding-similarity break detection
// when an embedding model is available, heading-boundary splitting, then
// paragraph splitting as the guaranteed terminal fallback. Results that are
// too sparse to trust are rejected in favor of the next strategy. Two
// corrective passes then enforce the word-count floor and ceiling.
package segment

import (
	"fmt"
	"math"
	"strings"
)

// Segment is one training-ready unit of section text. Field names are the
// stable output contract consumed downstream; they do not change regardless
// of which internal strategy produced the segment.
type Segment struct {
	SequenceIndex  int    `json:"sequence_index"`
	Text           string `json:"text"`
	WordCount      int    `json:"word_count"`
	CharCount      int    `json:"char_count"`
	NearestHeading string `json:"nearest_heading"`
	SectionID      string `json:"section_id"`
	ProvenanceID   string `json:"provenance_id"`

	// BelowFloor flags the one permitted under-length segment: the final
	// remainder of a section shorter than the floor.
	BelowFloor bool `json:"below_floor,omitempty"`
}

// Limits are the configurable segmentation thresholds.
type Limits struct {
	// FloorWords is the minimum words per segment; shorter neighbors are
	// merged.
	FloorWords int
	// CeilingWords caps segment length so no segment exceeds the downstream
	// consumer's input budget.
	CeilingWords int
	// MinSegments is the minimum split count a non-terminal strategy must
	// produce to be trusted; fewer means the structural signal was too
	// sparse. Tuned empirically, so configurable rather than constant.
	MinSegments int
}

// DefaultLimits returns the tuned defaults.
func DefaultLimits() Limits {
	return Limits{FloorWords: 20, CeilingWords: 360, MinSegments: 3}
}

// CeilingFromTokenBudget derives a word ceiling from a downstream token
// budget: budget / tokens-per-word, shaved by a safety margin.
func CeilingFromTokenBudget(tokenBudget int, tokensPerWord, safetyMargin float64) int {
	if tokensPerWord <= 0 {
		tokensPerWord = 1.33
	}
	if safetyMargin <= 0 || safetyMargin > 1 {
		safetyMargin = 0.9
	}
	return int(float64(tokenBudget) / tokensPerWord * safetyMargin)
}

// Embedder embeds texts for semantic break detection. A nil Embedder is
// legitimate; the semantic strategy is then skipped. Implementations are
// constructed once at worker-pool initialization and shared read-only.
type Embedder interface {
	Embed(texts []string) ([][]float32, error)
}

// Unit is one pre-segmentation text unit handed to the segmenter: a cleaned
// node text with its nearest enclosing heading.
type Unit struct {
	Text    string
	Heading string
}

// Provenance identifies the source of a segment batch. ProvenanceID values
// derived from it are stable across re-runs.
type Provenance struct {
	Accession string
	SectionID string
}

// ProvenanceID encodes (filing, section, sequence) reversibly.
func (p Provenance) ProvenanceID(sequence int) string {
	return fmt.Sprintf("%s|%s|%d", p.Accession, p.SectionID, sequence)
}

// ParseProvenanceID reconstructs the source of a segment.
func ParseProvenanceID(id string) (accession, sectionID string, sequence int, err error) {
	parts := strings.Split(id, "|")
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("malformed provenance id %q", id)
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &sequence); err != nil {
		return "", "", 0, fmt.Errorf("malformed provenance sequence in %q", id)
	}
	return parts[0], parts[1], sequence, nil
}

// Segmenter applies the strategy cascade and corrective passes. Safe for
// concurrent use; the embedder handle is immutable after construction.
type Segmenter struct {
	limits   Limits
	embedder Embedder
	// simThreshold is the cosine similarity below which adjacent units are
	// considered a topic break.
	simThreshold float64
}

// NewSegmenter builds a Segmenter. emb may be nil.
func NewSegmenter(limits Limits, emb Embedder) *Segmenter {
	if limits.FloorWords <= 0 {
		limits.FloorWords = DefaultLimits().FloorWords
	}
	if limits.CeilingWords <= limits.FloorWords {
		limits.CeilingWords = DefaultLimits().CeilingWords
	}
	if limits.MinSegments <= 0 {
		limits.MinSegments = DefaultLimits().MinSegments
	}
	return &Segmenter{limits: limits, embedder: emb, simThreshold: 0.55}
}

// Split segments the section units. An empty result is a valid, explicit
// outcome for degenerate input; callers must not treat it as success for a
// requested section.
func (s *Segmenter) Split(units []Unit, prov Provenance) []Segment {
	units = dropEmpty(units)
	if len(units) == 0 {
		return nil
	}

	frags, ok := s.bySimilarity(units)
	if !ok {
		frags, ok = s.byHeadings(units)
	}
	if !ok {
		frags = s.byParagraphs(units)
	}

	frags = s.mergePass(frags)
	frags = s.splitPass(frags)

	segs := make([]Segment, 0, len(frags))
	for i, f := range frags {
		wc := wordCount(f.text)
		segs = append(segs, Segment{
			SequenceIndex:  i,
			Text:           f.text,
			WordCount:      wc,
			CharCount:      len(f.text),
			NearestHeading: f.heading,
			SectionID:      prov.SectionID,
			ProvenanceID:   prov.ProvenanceID(i),
			BelowFloor:     wc < s.limits.FloorWords,
		})
	}
	return segs
}

// fragment is a working unit between strategy output and final segments.
type fragment struct {
	text    string
	heading string
}

// bySimilarity groups adjacent units whose embeddings stay similar and
// breaks where cosine similarity dips below the threshold. Skipped when no
// embedder is configured or when it fails; rejected when the split is too
// sparse to trust.
func (s *Segmenter) bySimilarity(units []Unit) ([]fragment, bool) {
	if s.embedder == nil || len(units) < 2 {
		return nil, false
	}

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	vecs, err := s.embedder.Embed(texts)
	if err != nil || len(vecs) != len(units) {
		return nil, false
	}

	var frags []fragment
	cur := fragment{text: units[0].Text, heading: units[0].Heading}
	for i := 1; i < len(units); i++ {
		if cosine(vecs[i-1], vecs[i]) < s.simThreshold {
			frags = append(frags, cur)
			cur = fragment{text: units[i].Text, heading: units[i].Heading}
			continue
		}
		cur.text += "\n\n" + units[i].Text
	}
	frags = append(frags, cur)

	if len(frags) < s.limits.MinSegments {
		return nil, false
	}
	return frags, true
}

// byHeadings breaks wherever the nearest enclosing heading changes.
func (s *Segmenter) byHeadings(units []Unit) ([]fragment, bool) {
	var frags []fragment
	cur := fragment{text: units[0].Text, heading: units[0].Heading}
	for i := 1; i < len(units); i++ {
		if units[i].Heading != cur.heading {
			frags = append(frags, cur)
			cur = fragment{text: units[i].Text, heading: units[i].Heading}
			continue
		}
		cur.text += "\n\n" + units[i].Text
	}
	frags = append(frags, cur)

	if len(frags) < s.limits.MinSegments {
		return nil, false
	}
	return frags, true
}

// byParagraphs is the terminal fallback: every unit stands alone and the
// corrective passes do the shaping.
func (s *Segmenter) byParagraphs(units []Unit) []fragment {
	frags := make([]fragment, len(units))
	for i, u := range units {
		frags[i] = fragment{text: u.Text, heading: u.Heading}
	}
	return frags
}

// mergePass forward-scans fragments, accumulating neighbors until the floor
// is crossed. Under-floor fragments merge unconditionally, even past the
// ceiling: splitPass re-divides oversized results, whereas a flushed short
// fragment would surface as an under-length segment mid-sequence. A trailing
// under-floor remainder folds into its predecessor.
func (s *Segmenter) mergePass(frags []fragment) []fragment {
	if len(frags) == 0 {
		return frags
	}

	var out []fragment
	cur := frags[0]
	curWords := wordCount(cur.text)

	for _, f := range frags[1:] {
		w := wordCount(f.text)
		if curWords < s.limits.FloorWords {
			cur.text += "\n\n" + f.text
			curWords += w
			continue
		}
		out = append(out, cur)
		cur, curWords = f, w
	}

	if curWords < s.limits.FloorWords && len(out) > 0 {
		last := &out[len(out)-1]
		last.text += "\n\n" + cur.text
		return out
	}
	return append(out, cur)
}

// splitPass divides over-ceiling fragments at sentence boundaries. Only the
// final piece of each divided fragment may come out short, and rebalanceTail
// folds or re-splits it so no under-floor piece lands mid-sequence.
func (s *Segmenter) splitPass(frags []fragment) []fragment {
	var out []fragment
	for _, f := range frags {
		if wordCount(f.text) <= s.limits.CeilingWords {
			out = append(out, f)
			continue
		}
		out = append(out, s.splitFragment(f)...)
	}
	return out
}

// splitFragment greedily fills pieces up to the ceiling at sentence
// boundaries. A single runaway sentence is hard-split at the ceiling word
// count.
func (s *Segmenter) splitFragment(f fragment) []fragment {
	var pieces []fragment

	var cur strings.Builder
	curWords := 0
	flush := func() {
		if curWords > 0 {
			pieces = append(pieces, fragment{text: strings.TrimSpace(cur.String()), heading: f.heading})
			cur.Reset()
			curWords = 0
		}
	}

	for _, sent := range SplitSentences(f.text) {
		w := wordCount(sent)
		if w > s.limits.CeilingWords {
			flush()
			for _, piece := range hardSplit(sent, s.limits.CeilingWords) {
				pieces = append(pieces, fragment{text: piece, heading: f.heading})
			}
			continue
		}
		if curWords+w > s.limits.CeilingWords {
			flush()
		}
		if curWords > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sent)
		curWords += w
	}
	flush()

	return s.rebalanceTail(pieces)
}

// rebalanceTail absorbs an under-floor final piece into its predecessor. When
// the combined text exceeds the ceiling it is re-split near the midpoint so
// both halves clear the floor.
func (s *Segmenter) rebalanceTail(pieces []fragment) []fragment {
	n := len(pieces)
	if n < 2 || wordCount(pieces[n-1].text) >= s.limits.FloorWords {
		return pieces
	}

	merged := pieces[n-2].text + " " + pieces[n-1].text
	if wordCount(merged) <= s.limits.CeilingWords {
		pieces[n-2].text = merged
		return pieces[:n-1]
	}

	head, tail := splitNearMidpoint(merged)
	pieces[n-2].text = head
	pieces[n-1].text = tail
	return pieces
}

// splitNearMidpoint divides text into two halves of roughly equal word count,
// preferring a sentence boundary and falling back to a word boundary.
func splitNearMidpoint(text string) (string, string) {
	target := wordCount(text) / 2

	sents := SplitSentences(text)
	if len(sents) > 1 {
		headWords := 0
		for i, sent := range sents {
			w := wordCount(sent)
			if headWords > 0 && headWords+w > target {
				return strings.Join(sents[:i], " "), strings.Join(sents[i:], " ")
			}
			headWords += w
		}
	}

	fields := strings.Fields(text)
	return strings.Join(fields[:target], " "), strings.Join(fields[target:], " ")
}

// hardSplit chops text at word boundaries into ceiling-sized pieces. Last
// resort for sentences longer than the entire budget.
func hardSplit(text string, ceiling int) []string {
	words := strings.Fields(text)
	var out []string
	for len(words) > 0 {
		n := ceiling
		if n > len(words) {
			n = len(words)
		}
		out = append(out, strings.Join(words[:n], " "))
		words = words[n:]
	}
	return out
}

func dropEmpty(units []Unit) []Unit {
	out := units[:0:0]
	for _, u := range units {
		if strings.TrimSpace(u.Text) != "" {
			out = append(out, u)
		}
	}
	return out
}

// cosine computes cosine similarity between two vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
