package filters

import (
	"bytes"
	"fmt"
)

// LZWDecode code space: 0-255 are literal bytes, 256 clears the table,
// 257 marks end of data. Code width starts at 9 bits and grows to 12
// as the table fills. With EarlyChange, the default, the width grows
// one code earlier than the table size alone would require; stdlib
// compress/lzw has no notion of this, so the coder lives here.
const (
	lzwClear    = 256
	lzwEOD      = 257
	lzwMinWidth = 9
	lzwMaxWidth = 12
	lzwMaxCodes = 1 << lzwMaxWidth
)

func lzwDecode(data []byte, earlyChange int) ([]byte, error) {
	dict := make([][]byte, 258, lzwMaxCodes)
	for i := 0; i < 256; i++ {
		dict[i] = []byte{byte(i)}
	}
	width := lzwMinWidth
	var out []byte
	var prev []byte

	var acc uint32
	nbits := 0
	pos := 0
	readCode := func() (int, bool) {
		for nbits < width {
			if pos >= len(data) {
				return 0, false
			}
			acc = acc<<8 | uint32(data[pos])
			pos++
			nbits += 8
		}
		nbits -= width
		return int(acc>>uint(nbits)) & (1<<width - 1), true
	}

	for {
		code, ok := readCode()
		if !ok {
			// Truncated streams ending without an EOD marker decode to
			// what was recovered.
			return out, nil
		}
		switch {
		case code == lzwClear:
			dict = dict[:258]
			width = lzwMinWidth
			prev = nil
		case code == lzwEOD:
			return out, nil
		default:
			var entry []byte
			switch {
			case code < lzwClear || code >= 258 && code < len(dict):
				entry = dict[code]
			case code == len(dict) && prev != nil:
				// The code being defined right now: its expansion is
				// the previous one plus its own first byte.
				entry = append(append([]byte(nil), prev...), prev[0])
			default:
				return nil, fmt.Errorf("invalid LZW code %d", code)
			}
			if prev != nil && len(dict) < lzwMaxCodes {
				grown := append(append([]byte(nil), prev...), entry[0])
				dict = append(dict, grown)
			}
			out = append(out, entry...)
			prev = entry
			if len(dict)+earlyChange >= 1<<width && width < lzwMaxWidth {
				width++
			}
		}
	}
}

func lzwEncode(data []byte, earlyChange int) []byte {
	var buf bytes.Buffer
	var acc uint32
	nbits := 0
	width := lzwMinWidth
	writeCode := func(code int) {
		acc = acc<<uint(width) | uint32(code)
		nbits += width
		for nbits >= 8 {
			nbits -= 8
			buf.WriteByte(byte(acc >> uint(nbits)))
		}
	}

	dict := make(map[string]int, lzwMaxCodes)
	next := 258
	// The decoder grows its table once per data code; bump mirrors its
	// width rule so both sides switch before the same code.
	bump := func() {
		next++
		if next+earlyChange-1 >= 1<<width && width < lzwMaxWidth {
			width++
		}
	}

	writeCode(lzwClear)
	if len(data) > 0 {
		cur := data[:1]
		emit := func() {
			if len(cur) == 1 {
				writeCode(int(cur[0]))
			} else {
				writeCode(dict[string(cur)])
			}
		}
		for _, c := range data[1:] {
			wc := string(cur) + string(c)
			if _, ok := dict[wc]; ok {
				cur = append(cur[:len(cur):len(cur)], c)
				continue
			}
			emit()
			if next < lzwMaxCodes {
				dict[wc] = next
			}
			bump()
			if next == lzwMaxCodes {
				writeCode(lzwClear)
				dict = make(map[string]int, lzwMaxCodes)
				next = 258
				width = lzwMinWidth
			}
			cur = []byte{c}
		}
		emit()
		bump()
	}
	writeCode(lzwEOD)
	if nbits > 0 {
		buf.WriteByte(byte(acc << uint(8-nbits)))
	}
	return buf.Bytes()
}
