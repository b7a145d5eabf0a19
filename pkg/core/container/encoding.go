package container

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeText converts raw sub-document bytes to a string, tolerating the
// legacy encodings that appear in older filings. UTF-8 is attempted first,
// then Windows-1252 and Latin-1; if everything fails, undecodable bytes are
// replaced rather than aborting the document.
func DecodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	for _, cm := range []*charmap.Charmap{charmap.Windows1252, charmap.ISO8859_1} {
		decoded, err := cm.NewDecoder().Bytes(data)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}

	return string(bytes.ToValidUTF8(data, []byte("�")))
}
