// Package pipeline wires the per-document processing chain:
// container → pre-seek → flatten → parse → extract → clean → segment.
//
// One DocumentPipeline instance is shared by all batch workers. Expensive
// shared resources (the embedding model handle, the parsed-tree cache) are
// constructed once here and held immutable afterwards; re-initializing them
// per document is a performance regression, not a style choice.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"filing_segmenter/pkg/core/clean"
	"filing_segmenter/pkg/core/container"
	"filing_segmenter/pkg/core/extract"
	"filing_segmenter/pkg/core/filing"
	"filing_segmenter/pkg/core/flatten"
	"filing_segmenter/pkg/core/parse"
	"filing_segmenter/pkg/core/seek"
	"filing_segmenter/pkg/core/segment"
)

// Options configure one pipeline instance.
type Options struct {
	Sections         []filing.SectionID
	FlattenThreshold int
	Limits           segment.Limits

	// TreeCacheLen bounds the parsed-tree LRU. Several requested sections
	// usually live in the same primary document; caching the parse means it
	// is paid once per document, not once per section.
	TreeCacheLen int

	// ArtifactDir, when non-empty, receives the optional intermediate
	// artifact set per document (node dump, section markdown, excluded
	// tables as markdown).
	ArtifactDir string
}

// SectionResult is the outcome for one requested section of one document.
type SectionResult struct {
	SectionID     filing.SectionID  `json:"section_id"`
	Found         bool              `json:"found"`
	SeekEvidence  string            `json:"seek_evidence,omitempty"`
	StartEvidence string            `json:"start_boundary_evidence,omitempty"`
	EndEvidence   string            `json:"end_boundary_evidence,omitempty"`
	Segments      []segment.Segment `json:"segments"`
}

// DocumentResult aggregates all requested sections for one container.
type DocumentResult struct {
	InputID     string          `json:"input_id"`
	Accession   string          `json:"accession_number"`
	CompanyName string          `json:"company_name"`
	FormType    string          `json:"form_type"`
	FilingDate  string          `json:"filing_date"`
	ContentHash string          `json:"content_hash"`
	Sections    []SectionResult `json:"sections"`
}

// DocumentPipeline runs the full chain for single documents.
type DocumentPipeline struct {
	opts      Options
	seeker    *seek.Seeker
	parser    *parse.Parser
	extractor *extract.Extractor
	segmenter *segment.Segmenter
	trees     *lru.Cache[string, *parse.Tree]
}

// New constructs a pipeline. emb may be nil; the semantic segmentation
// strategy is then skipped.
func New(opts Options, emb segment.Embedder) (*DocumentPipeline, error) {
	if len(opts.Sections) == 0 {
		return nil, fmt.Errorf("pipeline: no sections requested")
	}
	if opts.TreeCacheLen <= 0 {
		opts.TreeCacheLen = 8
	}
	cache, err := lru.New[string, *parse.Tree](opts.TreeCacheLen)
	if err != nil {
		return nil, fmt.Errorf("pipeline: tree cache: %w", err)
	}

	return &DocumentPipeline{
		opts:      opts,
		seeker:    seek.NewSeeker(),
		parser:    parse.NewParser(),
		extractor: extract.NewExtractor(),
		segmenter: segment.NewSegmenter(opts.Limits, emb),
		trees:     cache,
	}, nil
}

// ProcessFile opens the container at path and processes it.
func (p *DocumentPipeline) ProcessFile(ctx context.Context, inputID, path string) (*DocumentResult, error) {
	c, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return p.Process(ctx, inputID, c)
}

// Process extracts and segments every requested section from the container's
// primary sub-document.
func (p *DocumentPipeline) Process(ctx context.Context, inputID string, c *container.Container) (*DocumentResult, error) {
	primary := c.Manifest.PrimaryDocument()
	raw, err := c.ExtractDocument(primary)
	if err != nil {
		return nil, fmt.Errorf("extract primary document: %w", err)
	}

	doc := []byte(container.DecodeText(raw))
	sum := sha256.Sum256(doc)
	hash := hex.EncodeToString(sum[:])

	res := &DocumentResult{
		InputID:     inputID,
		Accession:   c.Manifest.Header.AccessionNumber,
		CompanyName: c.Manifest.Header.CompanyName,
		FormType:    c.Manifest.Header.FormType,
		FilingDate:  c.Manifest.Header.FilingDate,
		ContentHash: hash,
	}
	if res.Accession == "" {
		res.Accession = inputID
	}

	for _, id := range p.opts.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Sections = append(res.Sections, p.processSection(doc, hash, res.Accession, id))
	}

	if p.opts.ArtifactDir != "" {
		if err := p.writeArtifacts(res, doc, hash); err != nil {
			// Artifacts are optional by contract; failing them must not fail
			// the document.
			fmt.Printf("Warning: artifact dump for %s failed: %v\n", inputID, err)
		}
	}
	return res, nil
}

// processSection runs seek → flatten → parse → extract → clean → segment for
// one section. An empty extraction from a sliced seek falls back to a
// full-document parse before giving up: pre-seek correctness is
// probabilistic by design.
func (p *DocumentPipeline) processSection(doc []byte, hash string, accession string, id filing.SectionID) SectionResult {
	sr := SectionResult{SectionID: id}

	seekRes := p.seeker.Seek(doc, id)
	sr.SeekEvidence = seekRes.Evidence

	tree := p.parseCached(seekRes.Slice(doc), cacheKey(hash, seekRes))
	sec := p.extractor.Extract(tree, id)

	if sec == nil && seekRes.Sliced {
		sr.SeekEvidence = seek.EvidenceFullDocument
		tree = p.parseCached(doc, cacheKey(hash, seek.FullDocument()))
		sec = p.extractor.Extract(tree, id)
	}
	if sec == nil {
		return sr
	}

	sr.Found = true
	sr.StartEvidence = sec.StartEvidence
	sr.EndEvidence = sec.EndEvidence

	units := make([]segment.Unit, 0, len(sec.Nodes))
	for _, n := range sec.Nodes {
		units = append(units, segment.Unit{
			Text:    clean.Clean(n.Text),
			Heading: n.NearestHeading,
		})
	}
	sr.Segments = p.segmenter.Split(units, segment.Provenance{
		Accession: accession,
		SectionID: string(id),
	})
	return sr
}

// parseCached parses through the LRU so repeated sections of one document
// share a tree. Flattening is applied first when the input is large enough
// to warrant it.
func (p *DocumentPipeline) parseCached(doc []byte, key string) *parse.Tree {
	if tree, ok := p.trees.Get(key); ok {
		return tree
	}

	if flatten.ShouldFlatten(len(doc), p.opts.FlattenThreshold) {
		doc = flatten.Flatten(doc)
	}

	tree, err := p.parser.Parse(doc)
	if err != nil {
		// The parser only fails on unreadable input; an empty tree lets the
		// extractor report a clean not-found instead of propagating.
		tree = &parse.Tree{}
	}
	p.trees.Add(key, tree)
	return tree
}

func cacheKey(hash string, r seek.Result) string {
	if !r.Sliced {
		return hash + ":full"
	}
	return fmt.Sprintf("%s:%d-%d", hash, r.Start, r.End)
}

// Validate enforces the no-silent-partial-success rule: every requested
// section must be found and must yield at least one segment. A zero-segment
// outcome is representable, but a validation layer that lets it pass as
// success is defective by specification.
func Validate(res *DocumentResult) error {
	var problems []string
	for _, s := range res.Sections {
		switch {
		case !s.Found:
			problems = append(problems, fmt.Sprintf("section %s not located", s.SectionID))
		case len(s.Segments) == 0:
			problems = append(problems, fmt.Sprintf("section %s produced zero segments", s.SectionID))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("document %s: %s", res.InputID, strings.Join(problems, "; "))
	}
	return nil
}
