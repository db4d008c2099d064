package parser

import (
	"fmt"

	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/observability"
	"github.com/quillpdf/quill/scanner"
	"github.com/quillpdf/quill/security"
	"github.com/quillpdf/quill/xref"
)

const maxNesting = 512

// valueParser builds objects from the token stream, with a small
// pushback buffer for the reference lookahead.
type valueParser struct {
	sc     *scanner.Scanner
	peeked []scanner.Token
}

func (p *valueParser) next() (scanner.Token, error) {
	if n := len(p.peeked); n > 0 {
		tok := p.peeked[n-1]
		p.peeked = p.peeked[:n-1]
		return tok, nil
	}
	return p.sc.Next()
}

func (p *valueParser) unread(tok scanner.Token) { p.peeked = append(p.peeked, tok) }

func (p *valueParser) parseValue(depth int) (object.Object, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("nesting deeper than %d", maxNesting)
	}
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenInteger:
		// "n g R" is a reference; anything else leaves an integer.
		second, err2 := p.next()
		if err2 == nil && second.Type == scanner.TokenInteger {
			third, err3 := p.next()
			if err3 == nil && third.Type == scanner.TokenKeyword && third.Text == "R" {
				return object.Ref{Num: int(tok.Int), Gen: int(second.Int)}, nil
			}
			if err3 == nil {
				p.unread(third)
			}
		}
		if err2 == nil {
			p.unread(second)
		}
		return object.Integer(tok.Int), nil
	case scanner.TokenReal:
		return object.Real(tok.Real), nil
	case scanner.TokenString:
		return object.String{Data: []byte(tok.Text)}, nil
	case scanner.TokenName:
		return object.Name(tok.Text), nil
	case scanner.TokenArrayOpen:
		var arr object.Array
		for {
			t, err := p.next()
			if err != nil {
				return nil, fmt.Errorf("unterminated array: %w", err)
			}
			if t.Type == scanner.TokenArrayClose {
				return arr, nil
			}
			p.unread(t)
			item, err := p.parseValue(depth + 1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
	case scanner.TokenDictOpen:
		dict := object.NewDict()
		for {
			t, err := p.next()
			if err != nil {
				return nil, fmt.Errorf("unterminated dictionary: %w", err)
			}
			if t.Type == scanner.TokenDictClose {
				return dict, nil
			}
			if t.Type != scanner.TokenName {
				return nil, fmt.Errorf("dictionary key is %q, not a name", t.Text)
			}
			val, err := p.parseValue(depth + 1)
			if err != nil {
				return nil, err
			}
			dict.Set(object.Name(t.Text), val)
		}
	case scanner.TokenKeyword:
		switch tok.Text {
		case "true":
			return object.Boolean(true), nil
		case "false":
			return object.Boolean(false), nil
		case "null":
			return object.Null{}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q", tok.Text)
	}
	return nil, fmt.Errorf("unexpected token %q", tok.Text)
}

// loadObjectAt reads the indirect object at offset. wantNum of -1
// disables the number check (used for cross-reference streams located
// by startxref rather than by entry).
func (r *Reader) loadObjectAt(offset int64, wantNum int) (object.Object, int, error) {
	return r.loadObjectIn(offset, wantNum, nil)
}

// loadObjectIn carries the set of object numbers whose Length is being
// resolved further up the call chain, so a Length that leads back to
// one of them fails instead of recursing.
func (r *Reader) loadObjectIn(offset int64, wantNum int, inflight map[int]bool) (object.Object, int, error) {
	sc := scanner.New(r.data)
	if err := sc.Seek(offset); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	numTok, err1 := sc.Next()
	genTok, err2 := sc.Next()
	objTok, err3 := sc.Next()
	if err1 != nil || err2 != nil || err3 != nil ||
		numTok.Type != scanner.TokenInteger || genTok.Type != scanner.TokenInteger ||
		objTok.Type != scanner.TokenKeyword || objTok.Text != "obj" {
		return nil, 0, fmt.Errorf("%w: no object header at offset %d", ErrCorrupt, offset)
	}
	if wantNum >= 0 && int(numTok.Int) != wantNum {
		return nil, 0, fmt.Errorf("%w: offset %d holds object %d, expected %d",
			ErrCorrupt, offset, numTok.Int, wantNum)
	}

	p := &valueParser{sc: sc}
	val, err := p.parseValue(0)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: object %d: %v", ErrCorrupt, numTok.Int, err)
	}

	tok, err := p.next()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: object %d not closed", ErrCorrupt, numTok.Int)
	}
	if tok.Type == scanner.TokenKeyword && tok.Text == "stream" {
		dict, ok := val.(*object.Dict)
		if !ok {
			return nil, 0, fmt.Errorf("%w: stream after %s value", ErrCorrupt, val.Type())
		}
		length, err := r.streamLength(dict, inflight)
		if err != nil {
			return nil, 0, err
		}
		sc.SkipEOL()
		data, err := sc.ReadBytes(length)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: object %d stream payload: %v", ErrCorrupt, numTok.Int, err)
		}
		end, err := sc.Next()
		if err != nil || end.Type != scanner.TokenKeyword || end.Text != "endstream" {
			return nil, 0, fmt.Errorf("%w: object %d missing endstream", ErrCorrupt, numTok.Int)
		}
		val = &object.Stream{Dict: dict, Data: data}
		tok, err = sc.Next()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: object %d not closed", ErrCorrupt, numTok.Int)
		}
	}
	if tok.Type != scanner.TokenKeyword || tok.Text != "endobj" {
		return nil, 0, fmt.Errorf("%w: object %d missing endobj", ErrCorrupt, numTok.Int)
	}
	return val, int(genTok.Int), nil
}

// streamLength resolves the Length entry, which may be indirect.
func (r *Reader) streamLength(dict *object.Dict, inflight map[int]bool) (int64, error) {
	v, ok := dict.Get("Length")
	if !ok {
		return 0, fmt.Errorf("%w: stream without Length", ErrCorrupt)
	}
	switch n := v.(type) {
	case object.Integer:
		return int64(n), nil
	case object.Ref:
		obj, err := r.resolveRawIn(n, inflight)
		if err != nil {
			return 0, err
		}
		i, ok := obj.(object.Integer)
		if !ok {
			return 0, fmt.Errorf("%w: indirect Length is %s", ErrCorrupt, obj.Type())
		}
		return int64(i), nil
	}
	return 0, fmt.Errorf("%w: Length is %s", ErrCorrupt, v.Type())
}

// resolveRaw loads an object through the table without decryption or
// caching; used during setup and for Length lookups.
func (r *Reader) resolveRaw(ref object.Ref) (object.Object, error) {
	return r.resolveRawIn(ref, nil)
}

func (r *Reader) resolveRawIn(ref object.Ref, inflight map[int]bool) (object.Object, error) {
	if r.table == nil {
		return nil, fmt.Errorf("%w: reference %s before any xref section", ErrCorrupt, ref)
	}
	e, ok := r.table.Lookup(ref.Num)
	if !ok || e.Type != xref.InUse {
		return nil, fmt.Errorf("%w: object %d not a direct object", ErrCorrupt, ref.Num)
	}
	if inflight == nil {
		inflight = make(map[int]bool)
	}
	if inflight[ref.Num] {
		return nil, fmt.Errorf("%w: Length of object %d depends on itself", ErrCorrupt, ref.Num)
	}
	inflight[ref.Num] = true
	obj, _, err := r.loadObjectIn(e.Offset, ref.Num, inflight)
	return obj, err
}

// Resolve materializes the object named by ref, from file bytes on
// first use and from cache afterwards. References to free or unknown
// numbers resolve to null.
func (r *Reader) Resolve(ref object.Ref) (object.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(ref)
}

func (r *Reader) resolveLocked(ref object.Ref) (object.Object, error) {
	if obj, ok := r.cache[ref.Num]; ok {
		return obj, nil
	}
	if r.loading[ref.Num] {
		return nil, fmt.Errorf("%w: object %d loads through itself", ErrCorrupt, ref.Num)
	}
	r.loading[ref.Num] = true
	defer delete(r.loading, ref.Num)
	e, ok := r.table.Lookup(ref.Num)
	if !ok || e.Type == xref.Free {
		return object.Null{}, nil
	}

	var obj object.Object
	switch e.Type {
	case xref.InUse:
		if e.Gen != ref.Gen {
			return object.Null{}, nil
		}
		loaded, gen, err := r.loadObjectAt(e.Offset, ref.Num)
		if err != nil {
			return nil, err
		}
		if gen != e.Gen {
			return nil, fmt.Errorf("%w: object %d has generation %d, xref says %d",
				ErrCorrupt, ref.Num, gen, e.Gen)
		}
		obj, err = r.decryptValue(loaded, ref.Num, e.Gen)
		if err != nil {
			return nil, err
		}
	case xref.InStream:
		loaded, err := r.loadFromObjectStream(e.StreamNum, e.StreamIdx, ref.Num)
		if err != nil {
			return nil, err
		}
		obj = loaded
	}
	r.cache[ref.Num] = obj
	return obj, nil
}

// loadFromObjectStream extracts member idx of the object stream held
// by container. Members were encrypted with the container, so they
// parse as plaintext.
func (r *Reader) loadFromObjectStream(container, idx, wantNum int) (object.Object, error) {
	obj, err := r.resolveLocked(object.Ref{Num: container})
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*object.Stream)
	if !ok {
		return nil, fmt.Errorf("%w: object stream %d is %s", ErrCorrupt, container, obj.Type())
	}
	if t, _ := st.Dict.GetName("Type"); t != "ObjStm" {
		return nil, fmt.Errorf("%w: container %d has Type %q", ErrCorrupt, container, t)
	}
	n, _ := st.Dict.GetInt("N")
	first, _ := st.Dict.GetInt("First")
	if idx < 0 || int64(idx) >= n {
		return nil, fmt.Errorf("%w: index %d outside object stream of %d", ErrCorrupt, idx, n)
	}

	data, err := r.decodeStream(st, object.Ref{Num: container}, true)
	if err != nil {
		return nil, err
	}
	sc := scanner.New(data)
	var num, offset int64
	for i := int64(0); i <= int64(idx); i++ {
		numTok, err1 := sc.Next()
		offTok, err2 := sc.Next()
		if err1 != nil || err2 != nil ||
			numTok.Type != scanner.TokenInteger || offTok.Type != scanner.TokenInteger {
			return nil, fmt.Errorf("%w: malformed object stream header", ErrCorrupt)
		}
		num, offset = numTok.Int, offTok.Int
	}
	if int(num) != wantNum {
		return nil, fmt.Errorf("%w: slot %d of stream %d holds object %d, expected %d",
			ErrCorrupt, idx, container, num, wantNum)
	}
	if err := sc.Seek(first + offset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	p := &valueParser{sc: sc}
	val, err := p.parseValue(0)
	if err != nil {
		return nil, fmt.Errorf("%w: object %d in stream %d: %v", ErrCorrupt, wantNum, container, err)
	}
	return val, nil
}

// decryptValue replaces string payloads with their plaintext. The
// Contents entry of signature dictionaries is exempt: it covers byte
// ranges of the file and is stored unencrypted.
func (r *Reader) decryptValue(obj object.Object, num, gen int) (object.Object, error) {
	if !r.handler.IsEncrypted() {
		return obj, nil
	}
	switch v := obj.(type) {
	case object.String:
		dec, err := r.handler.Decrypt(num, gen, v.Data, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return object.String{Data: dec, Hex: v.Hex}, nil
	case object.Array:
		out := make(object.Array, len(v))
		for i, item := range v {
			dec, err := r.decryptValue(item, num, gen)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case *object.Dict:
		sig := false
		if t, ok := v.GetName("Type"); ok && t == "Sig" {
			sig = true
		}
		out := object.NewDict()
		for _, k := range v.Keys() {
			item, _ := v.Get(k)
			if sig && k == "Contents" {
				out.Set(k, item)
				continue
			}
			dec, err := r.decryptValue(item, num, gen)
			if err != nil {
				return nil, err
			}
			out.Set(k, dec)
		}
		return out, nil
	case *object.Stream:
		dict, err := r.decryptValue(v.Dict, num, gen)
		if err != nil {
			return nil, err
		}
		// The payload stays raw until StreamData asks for it.
		return &object.Stream{Dict: dict.(*object.Dict), Data: v.Data}, nil
	}
	return obj, nil
}

// StreamData returns the fully decoded payload of the stream named by
// ref: decryption first, then the declared filter chain.
func (r *Reader) StreamData(ref object.Ref) ([]byte, error) {
	obj, err := r.Resolve(ref)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*object.Stream)
	if !ok {
		return nil, fmt.Errorf("object %s is %s, not a stream", ref, obj.Type())
	}
	return r.decodeStream(st, ref, true)
}

// decodeStream decrypts (when applicable) and runs the filter chain.
// Cross-reference streams pass decrypt=false; they are never
// encrypted.
func (r *Reader) decodeStream(st *object.Stream, ref object.Ref, decrypt bool) ([]byte, error) {
	data := st.Data
	if decrypt && r.handler.IsEncrypted() {
		if t, _ := st.Dict.GetName("Type"); t != "XRef" {
			dec, err := r.handler.Decrypt(ref.Num, ref.Gen, data, security.DataClassStream)
			if err != nil {
				return nil, err
			}
			data = dec
		}
	}

	names, params, err := filterChain(st.Dict)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return data, nil
	}
	out, err := r.registry.Decode(data, names, params)
	if err != nil {
		return nil, fmt.Errorf("decode stream %s: %w", ref, err)
	}
	r.logger.Debug("stream decoded",
		observability.Int64(observability.MetricDecodedBytes, int64(len(out))))
	return out, nil
}

// filterChain normalizes Filter/DecodeParms, which may each be a
// single value or an array.
func filterChain(dict *object.Dict) ([]object.Name, []*object.Dict, error) {
	v, ok := dict.Get("Filter")
	if !ok {
		return nil, nil, nil
	}
	var names []object.Name
	switch f := v.(type) {
	case object.Name:
		names = []object.Name{f}
	case object.Array:
		for _, item := range f {
			n, ok := item.(object.Name)
			if !ok {
				return nil, nil, fmt.Errorf("%w: filter entry is %s", ErrCorrupt, item.Type())
			}
			names = append(names, n)
		}
	default:
		return nil, nil, fmt.Errorf("%w: Filter is %s", ErrCorrupt, v.Type())
	}

	params := make([]*object.Dict, len(names))
	if pv, ok := dict.Get("DecodeParms"); ok {
		switch p := pv.(type) {
		case *object.Dict:
			if len(params) > 0 {
				params[0] = p
			}
		case object.Array:
			for i := 0; i < len(p) && i < len(params); i++ {
				if d, ok := p[i].(*object.Dict); ok {
					params[i] = d
				}
			}
		}
	}
	return names, params, nil
}
