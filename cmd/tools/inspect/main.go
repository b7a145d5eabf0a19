// Inspect dumps an SGML filing container's manifest and optionally extracts
// one sub-document without parsing it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"filing_segmenter/pkg/core/container"
)

func main() {
	path := flag.String("file", "", "path to the .txt filing container")
	extract := flag.Int("extract", -1, "manifest index of a sub-document to extract")
	out := flag.String("out", "", "write the extracted sub-document here instead of stdout")
	flag.Parse()

	if *path == "" {
		log.Fatal("Usage: inspect -file <container.txt> [-extract N [-out FILE]]")
	}

	c, err := container.Open(*path)
	if err != nil {
		log.Fatalf("Error opening container: %v", err)
	}
	defer c.Close()

	h := c.Manifest.Header
	fmt.Printf("Accession:  %s\n", h.AccessionNumber)
	fmt.Printf("Company:    %s (CIK %s)\n", h.CompanyName, h.CIK)
	fmt.Printf("Form:       %s filed %s\n", h.FormType, h.FilingDate)
	if h.SIC != "" {
		fmt.Printf("SIC:        %s\n", h.SIC)
	}
	primary := c.Manifest.PrimaryDocument()
	fmt.Printf("\n%-4s %-10s %-40s %12s\n", "Seq", "Type", "Filename", "Bytes")
	for i, doc := range c.Manifest.Entries {
		marker := " "
		if i == primary {
			marker = "*"
		}
		fmt.Printf("%s%-3d %-10s %-40s %12d\n", marker, doc.Seq, doc.Type, doc.Filename, doc.Size())
	}

	if *extract < 0 {
		return
	}

	data, err := c.ExtractDocument(*extract)
	if err != nil {
		log.Fatalf("Error extracting document %d: %v", *extract, err)
	}
	if *out == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("Error writing %s: %v", *out, err)
	}
	fmt.Printf("\nWrote %d bytes to %s\n", len(data), *out)
}
