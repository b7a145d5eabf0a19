// Package container reads SEC EDGAR SGML submission containers.
//
// A submission container is a flat SGML file: a <SEC-HEADER> block of
// key/value filing metadata followed by a sequence of <DOCUMENT> blocks,
// each wrapping one logical sub-document between <TEXT> and </TEXT>.
// The reader builds a byte-offset manifest by scanning for these markers;
// it never parses the embedded markup and never loads sub-document bytes
// until one is explicitly extracted. This keeps peak memory bounded for
// containers in the hundreds of megabytes.
package container

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Markers scanned for during manifest construction.
const (
	markerDocOpen  = "<DOCUMENT>"
	markerDocClose = "</DOCUMENT>"
	markerTextOpen = "<TEXT>"
	markerTextEnd  = "</TEXT>"
)

// DocumentEntry describes one sub-document inside a container. ByteStart and
// ByteEnd delimit the content between <TEXT> and </TEXT>.
type DocumentEntry struct {
	Seq         int    `json:"seq"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
	ByteStart   int64  `json:"byte_start"`
	ByteEnd     int64  `json:"byte_end"`
}

// Size returns the sub-document length in bytes.
func (e DocumentEntry) Size() int64 { return e.ByteEnd - e.ByteStart }

// IsHTML reports whether the entry looks like an HTML sub-document.
func (e DocumentEntry) IsHTML() bool {
	name := strings.ToLower(e.Filename)
	return strings.HasSuffix(name, ".htm") || strings.HasSuffix(name, ".html")
}

// Header holds the filing metadata parsed from the <SEC-HEADER> block.
type Header struct {
	AccessionNumber string `json:"accession_number"`
	CompanyName     string `json:"company_name"`
	CIK             string `json:"cik"`
	FormType        string `json:"form_type"`
	FilingDate      string `json:"filing_date"`
	SIC             string `json:"sic"`
}

// Manifest is the byte-offset index of one container. It is immutable after
// construction and holds no sub-document content.
type Manifest struct {
	Header  Header
	Entries []DocumentEntry
}

// Container pairs a manifest with the handle it was scanned from so that
// sub-documents can be extracted with a single seek-and-read.
type Container struct {
	Manifest *Manifest

	r      io.ReaderAt
	closer io.Closer
}

// Open scans the container at path and returns its manifest. Only marker
// lines are examined during the scan; document bodies are skipped over.
func Open(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}

	m, err := scanManifest(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Container{Manifest: m, r: f, closer: f}, nil
}

// NewContainer builds a container from in-memory bytes. Used by tests and by
// callers that already hold the raw container.
func NewContainer(data []byte) (*Container, error) {
	m, err := scanManifest(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &Container{Manifest: m, r: bytes.NewReader(data)}, nil
}

// Close releases the underlying file handle, if any.
func (c *Container) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// ExtractDocument reads exactly the byte range of one sub-document.
func (c *Container) ExtractDocument(index int) ([]byte, error) {
	if index < 0 || index >= len(c.Manifest.Entries) {
		return nil, fmt.Errorf("document index %d out of range (have %d)", index, len(c.Manifest.Entries))
	}
	e := c.Manifest.Entries[index]
	buf := make([]byte, e.Size())
	if _, err := c.r.ReadAt(buf, e.ByteStart); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read document %d: %w", index, err)
	}
	return buf, nil
}

// PrimaryDocument returns the index of the main filing document: the largest
// HTML entry whose filename does not look like an exhibit, falling back to
// the largest HTML entry, then to entry 0.
func (m *Manifest) PrimaryDocument() int {
	best := -1
	var bestSize int64
	for i, e := range m.Entries {
		if !e.IsHTML() {
			continue
		}
		name := strings.ToLower(e.Filename)
		if strings.Contains(name, "exhibit") || strings.HasPrefix(name, "ex-") || strings.HasPrefix(name, "ex") && strings.Contains(name, "_") {
			continue
		}
		if e.Size() > bestSize {
			best, bestSize = i, e.Size()
		}
	}
	if best >= 0 {
		return best
	}
	for i, e := range m.Entries {
		if e.IsHTML() && e.Size() > bestSize {
			best, bestSize = i, e.Size()
		}
	}
	if best >= 0 {
		return best
	}
	return 0
}

// scanManifest performs a single forward pass over r, tracking byte offsets
// of document markers and collecting header fields.
func scanManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}

	br := bufio.NewReaderSize(r, 1<<20)
	var offset int64
	var cur *DocumentEntry
	inText := false
	inHeader := true
	seq := 0

	for {
		line, err := br.ReadBytes('\n')
		lineStart := offset
		offset += int64(len(line))

		if len(line) > 0 {
			trimmed := strings.TrimRight(string(line), "\r\n")

			switch {
			case inText:
				if strings.HasPrefix(trimmed, markerTextEnd) {
					cur.ByteEnd = lineStart
					inText = false
				}
			case strings.HasPrefix(trimmed, markerDocOpen):
				inHeader = false
				seq++
				m.Entries = append(m.Entries, DocumentEntry{Seq: seq})
				cur = &m.Entries[len(m.Entries)-1]
			case cur != nil && strings.HasPrefix(trimmed, markerTextOpen):
				cur.ByteStart = offset
				inText = true
			case cur != nil && strings.HasPrefix(trimmed, markerDocClose):
				cur = nil
			case cur != nil:
				readTagValue(trimmed, cur)
			case inHeader:
				readHeaderField(trimmed, &m.Header)
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan container: %w", err)
		}
	}

	if inText {
		// Truncated container: close the final document at EOF rather than
		// failing the whole filing.
		cur.ByteEnd = offset
	}

	if err := m.checkRanges(); err != nil {
		return nil, err
	}
	return m, nil
}

// checkRanges enforces the manifest invariant: byte ranges are
// non-overlapping and monotonically increasing. A violation means the scan
// itself is broken and must fail loudly.
func (m *Manifest) checkRanges() error {
	var prevEnd int64
	for i, e := range m.Entries {
		if e.ByteEnd < e.ByteStart {
			return fmt.Errorf("manifest invariant: entry %d has inverted range [%d,%d)", i, e.ByteStart, e.ByteEnd)
		}
		if e.ByteStart < prevEnd {
			return fmt.Errorf("manifest invariant: entry %d range [%d,%d) overlaps previous end %d", i, e.ByteStart, e.ByteEnd, prevEnd)
		}
		prevEnd = e.ByteEnd
	}
	return nil
}

// readTagValue fills document metadata from single-line SGML tags such as
// "<TYPE>10-K" or "<FILENAME>aapl-20240928.htm".
func readTagValue(line string, e *DocumentEntry) {
	switch {
	case strings.HasPrefix(line, "<TYPE>"):
		e.Type = strings.TrimSpace(strings.TrimPrefix(line, "<TYPE>"))
	case strings.HasPrefix(line, "<FILENAME>"):
		e.Filename = strings.TrimSpace(strings.TrimPrefix(line, "<FILENAME>"))
	case strings.HasPrefix(line, "<DESCRIPTION>"):
		e.Description = strings.TrimSpace(strings.TrimPrefix(line, "<DESCRIPTION>"))
	}
}

// Header fields appear as "KEY:<TAB>value" lines inside <SEC-HEADER>.
func readHeaderField(line string, h *Header) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}

	switch key {
	case "ACCESSION NUMBER":
		h.AccessionNumber = value
	case "COMPANY CONFORMED NAME":
		if h.CompanyName == "" {
			h.CompanyName = value
		}
	case "CENTRAL INDEX KEY":
		if h.CIK == "" {
			h.CIK = value
		}
	case "CONFORMED SUBMISSION TYPE":
		h.FormType = value
	case "FILED AS OF DATE":
		h.FilingDate = value
	case "STANDARD INDUSTRIAL CLASSIFICATION":
		h.SIC = value
	}
}
