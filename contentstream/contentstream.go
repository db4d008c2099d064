// Package contentstream translates drawing, text, and graphics-state
// operations into the PDF content stream operator syntax. The encoder
// is a pure translation step: it validates operand arity but does not
// track graphics state, and emitting balanced q/Q pairs is the
// caller's responsibility.
package contentstream

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/quillpdf/quill/object"
)

// ErrMalformedOperation is returned when an operator is pushed with an
// operand count that does not match its arity.
var ErrMalformedOperation = errors.New("malformed content stream operation")

// arity maps each supported operator to its operand count. Operators
// with variable arity are listed as -1 and validated individually.
var arity = map[string]int{
	// Graphics state
	"q": 0, "Q": 0, "cm": 6, "w": 1, "J": 1, "j": 1, "M": 1, "d": -1,
	"ri": 1, "i": 1, "gs": 1,
	// Color
	"G": 1, "g": 1, "RG": 3, "rg": 3, "K": 4, "k": 4,
	"CS": 1, "cs": 1, "SC": -1, "sc": -1, "SCN": -1, "scn": -1,
	// Path construction
	"m": 2, "l": 2, "c": 6, "v": 4, "y": 4, "h": 0, "re": 4,
	// Path painting
	"S": 0, "s": 0, "f": 0, "F": 0, "f*": 0, "B": 0, "B*": 0,
	"b": 0, "b*": 0, "n": 0,
	// Clipping
	"W": 0, "W*": 0,
	// Text object
	"BT": 0, "ET": 0,
	// Text state
	"Tc": 1, "Tw": 1, "Tz": 1, "TL": 1, "Tf": 2, "Tr": 1, "Ts": 1,
	// Text positioning
	"Td": 2, "TD": 2, "Tm": 6, "T*": 0,
	// Text showing
	"Tj": 1, "'": 1, "\"": 3, "TJ": 1,
	// XObjects and marked content
	"Do": 1, "BMC": 1, "BDC": 2, "EMC": 0,
}

// Encoder accumulates operator bytes. Errors are sticky: the first
// malformed operation poisons the encoder and Bytes reports it.
type Encoder struct {
	buf bytes.Buffer
	err error
}

func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the encoded content stream, or the first error
// recorded while pushing operations.
func (e *Encoder) Bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

// Op pushes one operator with its operands. Operands may be numeric
// (int, int64, float64), object.Name, string or []byte (PDF strings),
// or []float64 (number arrays).
func (e *Encoder) Op(op string, operands ...interface{}) *Encoder {
	if e.err != nil {
		return e
	}
	want, ok := arity[op]
	if !ok {
		e.err = fmt.Errorf("%w: unknown operator %q", ErrMalformedOperation, op)
		return e
	}
	if want >= 0 && len(operands) != want {
		e.err = fmt.Errorf("%w: %q takes %d operands, got %d", ErrMalformedOperation, op, want, len(operands))
		return e
	}
	for _, operand := range operands {
		if err := e.writeOperand(operand); err != nil {
			e.err = err
			return e
		}
		e.buf.WriteByte(' ')
	}
	e.buf.WriteString(op)
	e.buf.WriteByte('\n')
	return e
}

func (e *Encoder) writeOperand(v interface{}) error {
	switch x := v.(type) {
	case int:
		e.buf.WriteString(object.FormatNumber(float64(x)))
	case int64:
		e.buf.WriteString(object.FormatNumber(float64(x)))
	case float64:
		e.buf.WriteString(object.FormatNumber(x))
	case object.Name:
		e.buf.WriteByte('/')
		e.buf.WriteString(string(x))
	case string:
		e.writeString([]byte(x))
	case []byte:
		e.writeString(x)
	case []float64:
		e.buf.WriteByte('[')
		for i, f := range x {
			if i > 0 {
				e.buf.WriteByte(' ')
			}
			e.buf.WriteString(object.FormatNumber(f))
		}
		e.buf.WriteByte(']')
	default:
		return fmt.Errorf("%w: unsupported operand %T", ErrMalformedOperation, v)
	}
	return nil
}

func (e *Encoder) writeString(data []byte) {
	e.buf.WriteByte('(')
	for _, b := range data {
		switch b {
		case '(', ')', '\\':
			e.buf.WriteByte('\\')
			e.buf.WriteByte(b)
		case '\n':
			e.buf.WriteString(`\n`)
		case '\r':
			e.buf.WriteString(`\r`)
		case '\t':
			e.buf.WriteString(`\t`)
		default:
			e.buf.WriteByte(b)
		}
	}
	e.buf.WriteByte(')')
}
