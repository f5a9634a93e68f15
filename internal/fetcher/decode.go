package fetcher

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// decodeBody renders body to text following a fallback decode order:
// declared charset, then utf-8, then latin-1, then cp1252, then utf-8
// with replacement as a last resort.
func decodeBody(body []byte, contentType string) string {
	if text, ok := decodeDeclared(body, contentType); ok {
		return text
	}
	if utf8.Valid(body) {
		return string(body)
	}
	if text, ok := decodeWith(charmap.ISO8859_1, body); ok {
		return text
	}
	if text, ok := decodeWith(charmap.Windows1252, body); ok {
		return text
	}
	return strings.ToValidUTF8(string(body), "�")
}

// decodeDeclared decodes body using the charset declared by the
// Content-Type header or a byte-order mark, the cases DetermineEncoding
// reports as certain. An in-document <meta charset> is reported as
// uncertain and is not used here. Returns ok=false when no certain charset
// was found, leaving the fallback chain to decide.
func decodeDeclared(body []byte, contentType string) (string, bool) {
	enc, _, certain := charset.DetermineEncoding(body, contentType)
	if !certain {
		return "", false
	}
	return decodeWith(enc, body)
}

func decodeWith(enc encoding.Encoding, body []byte) (string, bool) {
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// charsetDetermine exposes charset.DetermineEncoding for callers that only
// need the detected encoding's name, e.g. for reporting on a FetchResult.
func charsetDetermine(body []byte, contentType string) (encoding.Encoding, string, bool) {
	return charset.DetermineEncoding(body, contentType)
}
