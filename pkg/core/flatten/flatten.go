// Package flatten normalizes pathologically nested filing markup before
// structural parsing. EDGAR authoring tools emit div-in-div-in-div chains
// dozens of levels deep; collapsing redundant single-child nesting keeps the
// downstream parser's tree shallow and fast.
//
// The implementation is a single pass over the token stream from
// golang.org/x/net/html, so its worst case is linear in input length. Regex
// rewriting over raw markup is deliberately not used here: backtracking
// pattern engines have been observed to hang indefinitely on real filings.
package flatten

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// DefaultThreshold is the input size above which flattening pays for itself.
// Small documents parse fine as-is.
const DefaultThreshold = 5 << 20

// collapsible lists the container tags whose same-kind single-child nesting
// carries no structure worth keeping.
var collapsible = map[string]bool{
	"div":  true,
	"span": true,
	"font": true,
}

var hiddenStyleRe = regexp.MustCompile(`(?i)display\s*:\s*none|visibility\s*:\s*hidden`)

// ShouldFlatten reports whether an input of the given size warrants a
// flattening pass before parse.
func ShouldFlatten(size, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return size >= threshold
}

// Flatten rewrites doc with redundant same-tag wrapper nesting collapsed and
// hidden subtrees removed. Tags carrying id or name attributes are kept
// verbatim: they are anchor targets the pre-seeker and extractor rely on.
func Flatten(doc []byte) []byte {
	z := html.NewTokenizer(bytes.NewReader(doc))
	z.SetMaxBuf(0)

	var out bytes.Buffer
	out.Grow(len(doc))

	type frame struct {
		tag     string
		emitted bool
	}
	var stack []frame

	// lastOpen is the tag of the immediately preceding start token when no
	// content has been emitted since; only then is the next same-tag open
	// redundant.
	lastOpen := ""
	hiddenDepth := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				break
			}
			// Tokenizer error on malformed input: fall back to the original
			// bytes rather than emitting a truncated document.
			return doc
		}

		raw := z.Raw()

		switch tt {
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)

			if hiddenDepth > 0 {
				if !isVoidTag(tag) {
					hiddenDepth++
				}
				continue
			}

			anchored, hidden := scanAttrs(z, hasAttr)
			if hidden {
				hiddenDepth = 1
				lastOpen = ""
				continue
			}

			if collapsible[tag] && tag == lastOpen && !anchored {
				stack = append(stack, frame{tag: tag, emitted: false})
				continue
			}

			out.Write(raw)
			if !isVoidTag(tag) {
				stack = append(stack, frame{tag: tag, emitted: true})
			}
			lastOpen = tag

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)

			if hiddenDepth > 0 {
				hiddenDepth--
				continue
			}

			lastOpen = ""
			// Pop to the matching frame, tolerating unbalanced markup.
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].tag == tag {
					emit := stack[i].emitted
					stack = stack[:i]
					if emit {
						out.Write(raw)
					}
					break
				}
			}

		case html.TextToken:
			if hiddenDepth > 0 {
				continue
			}
			if strings.TrimSpace(string(raw)) != "" {
				lastOpen = ""
			}
			out.Write(raw)

		case html.SelfClosingTagToken, html.CommentToken, html.DoctypeToken:
			if hiddenDepth > 0 {
				continue
			}
			if tt != html.CommentToken {
				out.Write(raw)
			}
			lastOpen = ""
		}
	}

	return out.Bytes()
}

// scanAttrs inspects the current tag's attributes, reporting whether the
// element is an anchor target (id/name) or styled invisible.
func scanAttrs(z *html.Tokenizer, hasAttr bool) (anchored, hidden bool) {
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		switch string(key) {
		case "id", "name":
			if len(val) > 0 {
				anchored = true
			}
		case "style":
			if hiddenStyleRe.Match(val) {
				hidden = true
			}
		case "hidden":
			hidden = true
		}
	}
	return anchored, hidden
}

// isVoidTag reports whether tag never takes a closing tag.
func isVoidTag(tag string) bool {
	switch tag {
	case "area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "source", "track", "wbr":
		return true
	}
	return false
}
