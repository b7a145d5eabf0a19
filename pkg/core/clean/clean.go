// Package clean strips residual artifacts from extracted section text:
// standalone page numbers, dot-leader contents remnants, raw markup
// leftovers and decorative whitespace. Legitimate content is preserved:
// enumerated list markers, dollar amounts, percentages and dates all pass
// through untouched.
//
// Clean is idempotent and never turns non-empty input into empty output.
package clean

import (
	"html"
	"regexp"
	"strings"
)

var (
	// Whole lines that are page furniture: "24", "Page 24", "- 24 -",
	// "F-7". Anchored to the full line so "1. Overview" and "$24" survive.
	pageNumberLineRe = regexp.MustCompile(`(?m)^[ \t]*(?:(?:Page[ \t]*)?\d{1,4}|-[ \t]*\d+[ \t]*-|[A-Z]-\d+)[ \t]*$`)

	// Dot-leader contents remnants: "Risk Factors.......12". The trailing
	// page reference goes with the leader.
	dotLeaderRe = regexp.MustCompile(`\.{4,}[ \t]*\d*`)

	// Residual markup: stray tags and leftover anchor landmarks.
	tagRemnantRe    = regexp.MustCompile(`</?[a-zA-Z][^>\n]{0,120}>`)
	anchorMarkerRe  = regexp.MustCompile(`\[ANCHOR:[^\]]{0,80}\]`)
	entityRemnantRe = regexp.MustCompile(`&#?[a-zA-Z0-9]{2,8};`)

	spaceRunRe = regexp.MustCompile(`[ \t]+`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// Clean returns text with extraction artifacts removed. Applying Clean to
// its own output is a no-op.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	out := strings.ReplaceAll(text, " ", " ")

	// Entities unescape before remnant stripping so escaped markup like
	// &lt;b&gt; is stripped as markup instead of surviving as literal tags.
	// Looped to a fixed point: double-escaped input unescapes in stages.
	for entityRemnantRe.MatchString(out) {
		next := strings.ReplaceAll(html.UnescapeString(out), " ", " ")
		if next == out {
			break
		}
		out = next
	}

	out = anchorMarkerRe.ReplaceAllString(out, " ")
	out = tagRemnantRe.ReplaceAllString(out, " ")
	out = dotLeaderRe.ReplaceAllString(out, " ")
	out = pageNumberLineRe.ReplaceAllString(out, "")

	out = spaceRunRe.ReplaceAllString(out, " ")
	out = trimLineEdges(out)
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)

	// Cleaning must never erase a document: if everything matched an
	// artifact pattern, keep the whitespace-normalized original.
	if out == "" {
		return strings.TrimSpace(spaceRunRe.ReplaceAllString(strings.ReplaceAll(text, " ", " "), " "))
	}
	return out
}

// trimLineEdges removes leading/trailing spaces on each line so that page
// number removal leaves no indented blank shells behind.
func trimLineEdges(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}
