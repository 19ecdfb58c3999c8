package emit

import (
	"strings"
)

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// SourceMap is a revision 3 source map document
type SourceMap struct {
	Version    int      `json:"version"`
	File       string   `json:"file"`
	SourceRoot string   `json:"sourceRoot"`
	Sources    []string `json:"sources"`
	Names      []string `json:"names"`
	Mappings   string   `json:"mappings"`
}

// EncodeVLQ appends the base64 VLQ encoding of v to b
func EncodeVLQ(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 0x1f
		u >>= 5
		if u > 0 {
			digit |= 0x20
		}
		b.WriteByte(base64Digits[digit])
		if u == 0 {
			return
		}
	}
}

// IdentityMappings maps each of lines source lines to the generated line
// offset lines later, column 0 to column 0
func IdentityMappings(lines, offset int) string {
	var b strings.Builder
	for i := 0; i < offset; i++ {
		b.WriteByte(';')
	}
	for i := 0; i < lines; i++ {
		if i > 0 {
			b.WriteByte(';')
		}
		// generated column, source index, source line delta, source column
		EncodeVLQ(&b, 0)
		EncodeVLQ(&b, 0)
		if i == 0 {
			EncodeVLQ(&b, 0)
		} else {
			EncodeVLQ(&b, 1)
		}
		EncodeVLQ(&b, 0)
	}
	return b.String()
}

// CountLines returns the number of lines in text; a trailing newline does
// not start a new line
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
