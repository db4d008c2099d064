package object

import (
	"time"

	"golang.org/x/text/encoding/unicode"
)

// TextString encodes s as a PDF text string. Strings that fit in the
// printable ASCII range are stored as-is; anything else is encoded as
// UTF-16BE with a byte order mark, per the text string convention.
func TextString(s string) String {
	ascii := true
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			ascii = false
			break
		}
	}
	if ascii {
		return String{Data: []byte(s)}
	}
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		// Unencodable runes fall back to the raw bytes; the value is
		// still a legal PDF string, just not a well-formed text string.
		return String{Data: []byte(s)}
	}
	return String{Data: out, Hex: true}
}

// DecodeTextString is the inverse of TextString: UTF-16BE strings are
// recognized by their byte order mark, everything else is taken as
// PDFDocEncoding-compatible bytes.
func DecodeTextString(s String) string {
	if len(s.Data) >= 2 && s.Data[0] == 0xfe && s.Data[1] == 0xff {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(s.Data)
		if err == nil {
			return string(out)
		}
	}
	return string(s.Data)
}

// Date renders t in the PDF date format D:YYYYMMDDHHmmSSOHH'mm'.
func Date(t time.Time) String {
	_, offset := t.Zone()
	sign := byte('+')
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	h := offset / 3600
	m := (offset % 3600) / 60
	buf := t.Format("D:20060102150405")
	buf += string(sign)
	buf += pad2(h) + "'" + pad2(m) + "'"
	return String{Data: []byte(buf)}
}

func pad2(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// InfoDict builds the document information dictionary. Empty fields
// are omitted; a zero dictionary is returned as nil.
func InfoDict(info Info) *Dict {
	d := NewDict()
	set := func(key Name, val string) {
		if val != "" {
			d.Set(key, TextString(val))
		}
	}
	set("Title", info.Title)
	set("Author", info.Author)
	set("Subject", info.Subject)
	set("Keywords", info.Keywords)
	set("Creator", info.Creator)
	set("Producer", info.Producer)
	if d.Len() == 0 {
		return nil
	}
	return d
}
