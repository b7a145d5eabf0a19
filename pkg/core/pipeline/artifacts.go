package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/yuin/goldmark"
	gmtext "github.com/yuin/goldmark/text"

	"filing_segmenter/pkg/core/parse"
	"filing_segmenter/pkg/core/seek"
)

// writeArtifacts emits the optional intermediate artifact set for one
// document: the parsed node dump, the segmented sections rendered as
// markdown, and the tables excluded from extraction converted to markdown so
// they stay inspectable without polluting the text output.
func (p *DocumentPipeline) writeArtifacts(res *DocumentResult, doc []byte, hash string) error {
	dir := filepath.Join(p.opts.ArtifactDir, safeName(res.Accession))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact dir: %w", err)
	}

	tree := p.parseCached(doc, cacheKey(hash, seek.FullDocument()))

	if err := dumpNodes(filepath.Join(dir, "nodes.json"), tree); err != nil {
		return err
	}
	if err := dumpTables(filepath.Join(dir, "tables.md"), tree); err != nil {
		return err
	}
	return dumpSections(filepath.Join(dir, "sections.md"), res)
}

func dumpNodes(path string, tree *parse.Tree) error {
	data, err := json.MarshalIndent(tree.Nodes, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// dumpTables converts each excluded Table node's original HTML to markdown.
func dumpTables(path string, tree *parse.Tree) error {
	var b strings.Builder
	count := 0
	for _, n := range tree.Nodes {
		if n.Type != parse.Table || n.RawHTML == "" {
			continue
		}
		md, err := htmltomarkdown.ConvertString(n.RawHTML)
		if err != nil {
			continue
		}
		count++
		fmt.Fprintf(&b, "## Table %d (node %d)\n\n%s\n\n", count, n.ID, md)
	}
	if count == 0 {
		return nil
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// dumpSections renders the segmented output as a markdown report.
func dumpSections(path string, res *DocumentResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — %s\n\n", res.CompanyName, res.Accession)

	for _, s := range res.Sections {
		fmt.Fprintf(&b, "## Item %s\n\n", s.SectionID)
		if !s.Found {
			b.WriteString("_not located_\n\n")
			continue
		}
		for _, seg := range s.Segments {
			if seg.NearestHeading != "" {
				fmt.Fprintf(&b, "**%s**\n\n", seg.NearestHeading)
			}
			fmt.Fprintf(&b, "%s\n\n", seg.Text)
		}
	}

	md := b.String()
	if !validMarkdown(md) {
		return fmt.Errorf("section dump for %s is not valid markdown", res.Accession)
	}
	return os.WriteFile(path, []byte(md), 0o644)
}

// validMarkdown is a basic sanity gate; goldmark is permissive, so this only
// rejects content the parser cannot even read.
func validMarkdown(input string) bool {
	parser := goldmark.DefaultParser()
	return parser.Parse(gmtext.NewReader([]byte(input))) != nil
}

// safeName makes an accession number filesystem-friendly.
func safeName(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "-", "")
	if s == "" {
		return "unknown"
	}
	return s
}
