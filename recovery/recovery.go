// Package recovery rebuilds cross-reference information for files
// whose xref tables are missing or damaged, by scanning the raw bytes
// for indirect object headers. The result is approximate: headers
// inside stream payloads can produce spurious entries, which later
// resolution rejects.
package recovery

import (
	"bytes"
	"regexp"

	"github.com/quillpdf/quill/xref"
)

// objHeader matches "N G obj" at a token boundary. The leading
// separator keeps digits inside longer numbers from matching.
var objHeader = regexp.MustCompile(`(?:\A|[\r\n \t])(\d{1,10})[ \t]+(\d{1,5})[ \t]+obj\b`)

// Scan finds every indirect object header in data and returns a table
// pointing at them. When a number is defined more than once, the last
// definition wins, matching incremental update semantics.
func Scan(data []byte) *xref.Table {
	table := xref.NewTable()
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		num := parseInt(data[m[2]:m[3]])
		gen := parseInt(data[m[4]:m[5]])
		if num <= 0 {
			continue
		}
		table.Set(num, xref.Entry{Type: xref.InUse, Offset: int64(m[2]), Gen: gen})
	}
	return table
}

// LastTrailer returns the offset of the final trailer keyword, or -1
// when the file has none.
func LastTrailer(data []byte) int64 {
	return int64(bytes.LastIndex(data, []byte("trailer")))
}

func parseInt(b []byte) int {
	n := 0
	for _, c := range b {
		n = n*10 + int(c-'0')
	}
	return n
}
