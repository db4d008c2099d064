// Package scanner tokenizes PDF syntax from an in-memory buffer. It
// produces the lexical layer the parser builds objects from; every
// read is bounds-checked so malformed offsets can never reach past the
// input.
package scanner

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenInteger TokenType = iota
	TokenReal
	TokenString  // literal or hex string, unescaped bytes
	TokenName    // without the leading slash
	TokenDictOpen
	TokenDictClose
	TokenArrayOpen
	TokenArrayClose
	TokenKeyword // obj, endobj, stream, R, true, false, null, trailer, ...
)

type Token struct {
	Type TokenType
	// Keyword and name text, or the unescaped string bytes.
	Text string
	Int  int64
	Real float64
	Pos  int64
}

// ErrSyntax wraps all tokenizer-level failures.
var ErrSyntax = errors.New("syntax error")

// Scanner walks a byte buffer. The zero value is not usable; call New.
type Scanner struct {
	data []byte
	pos  int64
}

func New(data []byte) *Scanner { return &Scanner{data: data} }

func (s *Scanner) Position() int64 { return s.pos }

// Seek positions the scanner at an absolute offset.
func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("%w: seek offset %d outside buffer of %d bytes", ErrSyntax, offset, len(s.data))
	}
	s.pos = offset
	return nil
}

// ReadBytes consumes exactly n raw bytes from the current position,
// used for stream payloads whose length is known from the dictionary.
func (s *Scanner) ReadBytes(n int64) ([]byte, error) {
	if n < 0 || s.pos+n > int64(len(s.data)) {
		return nil, fmt.Errorf("%w: %d raw bytes requested at offset %d", ErrSyntax, n, s.pos)
	}
	out := s.data[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

// SkipEOL consumes a single end-of-line sequence if present, as
// required after the stream keyword.
func (s *Scanner) SkipEOL() {
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
}

// Next returns the next token, or io.EOF at the end of input.
func (s *Scanner) Next() (Token, error) {
	s.skipSpace()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch {
	case c == '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDictOpen, Pos: start}, nil
		}
		return s.hexString(start)
	case c == '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictClose, Pos: start}, nil
		}
		return Token{}, fmt.Errorf("%w: lone '>' at offset %d", ErrSyntax, start)
	case c == '[':
		s.pos++
		return Token{Type: TokenArrayOpen, Pos: start}, nil
	case c == ']':
		s.pos++
		return Token{Type: TokenArrayClose, Pos: start}, nil
	case c == '(':
		return s.literalString(start)
	case c == '/':
		return s.name(start)
	case c == '+' || c == '-' || c == '.' || c >= '0' && c <= '9':
		return s.number(start)
	case isRegular(c):
		return s.keyword(start)
	}
	return Token{}, fmt.Errorf("%w: unexpected byte %#x at offset %d", ErrSyntax, c, start)
}

func (s *Scanner) peek(ahead int64) byte {
	if s.pos+ahead >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+ahead]
}

func (s *Scanner) skipSpace() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isSpace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) number(start int64) (Token, error) {
	end := s.pos
	real := false
	for end < int64(len(s.data)) {
		c := s.data[end]
		if c == '.' {
			real = true
			end++
			continue
		}
		if c == '+' || c == '-' || c >= '0' && c <= '9' {
			end++
			continue
		}
		break
	}
	text := string(s.data[s.pos:end])
	s.pos = end
	if real {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Token{}, fmt.Errorf("%w: bad real %q at offset %d", ErrSyntax, text, start)
		}
		return Token{Type: TokenReal, Real: f, Pos: start}, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: bad integer %q at offset %d", ErrSyntax, text, start)
	}
	return Token{Type: TokenInteger, Int: i, Pos: start}, nil
}

func (s *Scanner) name(start int64) (Token, error) {
	s.pos++ // skip '/'
	out := make([]byte, 0, 16)
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if !isRegular(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) {
			hi, okHi := hexVal(s.data[s.pos+1])
			lo, okLo := hexVal(s.data[s.pos+2])
			if okHi && okLo {
				out = append(out, hi<<4|lo)
				s.pos += 3
				continue
			}
		}
		out = append(out, c)
		s.pos++
	}
	return Token{Type: TokenName, Text: string(out), Pos: start}, nil
}

func (s *Scanner) keyword(start int64) (Token, error) {
	end := s.pos
	for end < int64(len(s.data)) && isRegular(s.data[end]) {
		end++
	}
	text := string(s.data[s.pos:end])
	s.pos = end
	return Token{Type: TokenKeyword, Text: text, Pos: start}, nil
}

func (s *Scanner) literalString(start int64) (Token, error) {
	s.pos++ // skip '('
	out := make([]byte, 0, 32)
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				return Token{}, fmt.Errorf("%w: unterminated string escape at offset %d", ErrSyntax, start)
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				// Line continuation; swallow an optional \n too.
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
				// Line continuation.
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < int64(len(s.data)); i++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					// Unknown escapes drop the backslash.
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Text: string(out), Pos: start}, nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return Token{}, fmt.Errorf("%w: unterminated string at offset %d", ErrSyntax, start)
}

func (s *Scanner) hexString(start int64) (Token, error) {
	s.pos++ // skip '<'
	out := make([]byte, 0, 32)
	var hi byte
	haveHi := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if haveHi {
				out = append(out, hi<<4) // odd digit count pads with 0
			}
			return Token{Type: TokenString, Text: string(out), Pos: start}, nil
		}
		if isSpace(c) {
			continue
		}
		v, ok := hexVal(c)
		if !ok {
			return Token{}, fmt.Errorf("%w: bad hex digit %q at offset %d", ErrSyntax, c, s.pos-1)
		}
		if haveHi {
			out = append(out, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
	}
	return Token{}, fmt.Errorf("%w: unterminated hex string at offset %d", ErrSyntax, start)
}

func isSpace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isSpace(c) && !isDelim(c) }

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
