package container_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"filing_segmenter/pkg/core/container"
)

func TestDecodeTextUTF8Passthrough(t *testing.T) {
	in := "Revenue of $1,234 — up 5%"
	if got := container.DecodeText([]byte(in)); got != in {
		t.Errorf("UTF-8 input changed: %q", got)
	}
}

func TestDecodeTextWindows1252(t *testing.T) {
	// 0x93/0x94 are curly quotes and 0x97 an em dash in Windows-1252; none
	// are valid UTF-8 lead bytes.
	in := []byte{'s', 'a', 'i', 'd', ' ', 0x93, 'u', 'p', 0x94, ' ', 0x97, ' ', 'o', 'k'}
	got := container.DecodeText(in)
	if !utf8.ValidString(got) {
		t.Fatalf("output is not valid UTF-8: %q", got)
	}
	if !strings.Contains(got, "“up”") {
		t.Errorf("curly quotes not decoded: %q", got)
	}
	if !strings.Contains(got, "—") {
		t.Errorf("em dash not decoded: %q", got)
	}
}

func TestDecodeTextNeverReturnsInvalidUTF8(t *testing.T) {
	// Arbitrary byte soup must still come back as valid UTF-8.
	in := []byte{0xff, 0xfe, 0x00, 0x41, 0x80, 0xc1}
	got := container.DecodeText(in)
	if !utf8.ValidString(got) {
		t.Errorf("output is not valid UTF-8: %q", got)
	}
}
