// Package parser opens existing PDF files: it locates the
// cross-reference information from the end of the file, walks the
// section chain, and materializes indirect objects lazily on first
// resolution. Structural damage surfaces as ErrCorrupt, never as a
// panic.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/quillpdf/quill/filters"
	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/observability"
	"github.com/quillpdf/quill/recovery"
	"github.com/quillpdf/quill/scanner"
	"github.com/quillpdf/quill/security"
	"github.com/quillpdf/quill/xref"
)

var (
	// ErrCircularXref is returned when the Prev chain of
	// cross-reference sections revisits an offset.
	ErrCircularXref = errors.New("circular cross-reference chain")
	// ErrCorrupt is returned for structural damage: offsets outside
	// the file, malformed object headers, truncated streams.
	ErrCorrupt = errors.New("corrupt file structure")
)

// Limits bounds resource use while parsing hostile input.
type Limits struct {
	// MaxXRefSections caps the length of the Prev chain.
	MaxXRefSections int
	// MaxObjects caps the object count implied by the trailer Size.
	MaxObjects int
	// MaxDecodedSize caps filter output per stream.
	MaxDecodedSize int64
}

func (l *Limits) defaults() {
	if l.MaxXRefSections <= 0 {
		l.MaxXRefSections = 64
	}
	if l.MaxObjects <= 0 {
		l.MaxObjects = 1 << 22
	}
	if l.MaxDecodedSize <= 0 {
		l.MaxDecodedSize = 1 << 30
	}
}

// Options configures Open.
type Options struct {
	// Password is tried as the user and then the owner password when
	// the file is encrypted.
	Password string
	// Recover rebuilds the cross-reference table by scanning for
	// object headers when the xref chain is missing or damaged.
	Recover bool
	Limits  Limits
	Logger  observability.Logger
}

// Reader is a lazily materializing view over a parsed file. It is safe
// for concurrent use; each indirect object is parsed at most once.
type Reader struct {
	data     []byte
	table    *xref.Table
	trailer  *object.Dict
	handler  security.Handler
	registry *filters.Registry
	limits   Limits
	logger   observability.Logger

	mu    sync.Mutex
	cache map[int]object.Object
	// loading marks objects currently being materialized, so an object
	// stream whose container chain loops back on itself fails instead
	// of recursing.
	loading map[int]bool
}

// Open parses the file structure of data. Object bodies are not read
// until resolved.
func Open(data []byte, opts Options) (*Reader, error) {
	opts.Limits.defaults()
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger{}
	}
	r := &Reader{
		data:     data,
		registry: filters.NewRegistry(filters.Limits{MaxDecodedSize: opts.Limits.MaxDecodedSize}),
		limits:   opts.Limits,
		logger:   opts.Logger,
		handler:  security.NoopHandler(),
		cache:    make(map[int]object.Object),
		loading:  make(map[int]bool),
	}

	start, err := findStartXRef(data)
	if err == nil {
		err = r.loadXRefChain(start)
	}
	if err != nil {
		if !opts.Recover {
			return nil, err
		}
		r.logger.Debug("xref chain unusable, rebuilding", observability.Error("error", err))
		if err := r.rebuild(); err != nil {
			return nil, err
		}
	}
	if size, ok := r.trailer.GetInt("Size"); ok && size > int64(r.limits.MaxObjects) {
		return nil, fmt.Errorf("%w: trailer Size %d exceeds limit %d", ErrCorrupt, size, r.limits.MaxObjects)
	}

	if err := r.setupEncryption(opts.Password); err != nil {
		return nil, err
	}
	r.logger.Debug("file opened",
		observability.Int(observability.MetricObjectCount, r.table.Len()),
		observability.Bool("encrypted", r.handler.IsEncrypted()))
	return r, nil
}

// Trailer returns the merged trailer dictionary (the newest section's
// entries win).
func (r *Reader) Trailer() *object.Dict { return r.trailer }

// Root returns the catalog reference from the trailer.
func (r *Reader) Root() (object.Ref, bool) { return r.trailer.GetRef("Root") }

// Encrypted reports whether the file carries an Encrypt dictionary.
func (r *Reader) Encrypted() bool { return r.handler.IsEncrypted() }

// Permissions returns the document permissions, all granted for
// unencrypted files.
func (r *Reader) Permissions() security.Permissions { return r.handler.Permissions() }

// Version returns the header version, e.g. "1.7".
func (r *Reader) Version() string {
	limit := len(r.data)
	if limit > 1024 {
		limit = 1024
	}
	i := bytes.Index(r.data[:limit], []byte("%PDF-"))
	if i < 0 {
		return ""
	}
	rest := r.data[i+5:]
	end := 0
	for end < len(rest) && (rest[end] == '.' || rest[end] >= '0' && rest[end] <= '9') {
		end++
	}
	return string(rest[:end])
}

// findStartXRef scans backwards over the file tail for the last
// startxref keyword.
func findStartXRef(data []byte) (int64, error) {
	window := data
	if len(window) > 2048 {
		window = window[len(window)-2048:]
	}
	if !bytes.Contains(window, []byte("%%EOF")) {
		return 0, fmt.Errorf("%w: no %%%%EOF marker", ErrCorrupt)
	}
	i := bytes.LastIndex(window, []byte("startxref"))
	if i < 0 {
		return 0, fmt.Errorf("%w: no startxref", ErrCorrupt)
	}
	fields := bytes.Fields(window[i+len("startxref"):])
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: startxref has no offset", ErrCorrupt)
	}
	off, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil || off < 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("%w: startxref offset %s", ErrCorrupt, fields[0])
	}
	return off, nil
}

// loadXRefChain walks sections newest to oldest, merging entries so
// the first definition of each object number wins.
func (r *Reader) loadXRefChain(start int64) error {
	visited := make(map[int64]bool)
	offset := start
	for n := 0; ; n++ {
		if n >= r.limits.MaxXRefSections {
			return fmt.Errorf("%w: more than %d sections", ErrCircularXref, r.limits.MaxXRefSections)
		}
		if visited[offset] {
			return fmt.Errorf("%w: section at %d revisited", ErrCircularXref, offset)
		}
		visited[offset] = true

		table, trailer, err := r.loadXRefSection(offset)
		if err != nil {
			return err
		}
		if r.table == nil {
			r.table = table
			r.trailer = trailer
		} else {
			r.table.Merge(table)
			for _, k := range trailer.Keys() {
				if _, ok := r.trailer.Get(k); !ok {
					v, _ := trailer.Get(k)
					r.trailer.Set(k, v)
				}
			}
		}

		// Hybrid files put newer entries in a cross-reference stream
		// announced by XRefStm; it outranks the Prev section.
		if stm, ok := trailer.GetInt("XRefStm"); ok && !visited[stm] {
			visited[stm] = true
			st, _, err := r.loadXRefSection(stm)
			if err != nil {
				return err
			}
			// The classic section marks hidden objects free; the
			// stream's in-use entries take precedence over those.
			for _, num := range st.Nums() {
				se, _ := st.Lookup(num)
				if cur, ok := r.table.Lookup(num); !ok || cur.Type == xref.Free {
					r.table.Set(num, se)
				}
			}
		}

		prev, ok := trailer.GetInt("Prev")
		if !ok {
			return nil
		}
		if prev < 0 || prev >= int64(len(r.data)) {
			return fmt.Errorf("%w: Prev offset %d", ErrCorrupt, prev)
		}
		offset = prev
	}
}

// rebuild replaces the table with one scanned from raw object headers
// and reconstructs a minimal trailer. The last trailer dictionary in
// the file is reused when present; otherwise the catalog is found by
// loading recovered objects until one has Type Catalog.
func (r *Reader) rebuild() error {
	r.table = recovery.Scan(r.data)
	r.trailer = object.NewDict()
	if r.table.Len() == 0 {
		return fmt.Errorf("%w: no object headers found", ErrCorrupt)
	}
	if off := recovery.LastTrailer(r.data); off >= 0 {
		sc := scanner.New(r.data)
		if err := sc.Seek(off); err == nil {
			if tok, err := sc.Next(); err == nil && tok.Type == scanner.TokenKeyword && tok.Text == "trailer" {
				p := &valueParser{sc: sc}
				if v, err := p.parseValue(0); err == nil {
					if d, ok := v.(*object.Dict); ok {
						r.trailer = d
						// The chain the trailer points at is the one
						// that failed; everything comes from the scan.
						r.trailer.Delete("Prev")
						r.trailer.Delete("XRefStm")
					}
				}
			}
		}
	}
	if _, ok := r.trailer.GetRef("Root"); !ok {
		for _, num := range r.table.Nums() {
			e, _ := r.table.Lookup(num)
			if e.Type != xref.InUse {
				continue
			}
			obj, _, err := r.loadObjectAt(e.Offset, num)
			if err != nil {
				continue
			}
			if d, ok := obj.(*object.Dict); ok {
				if t, _ := d.GetName("Type"); t == "Catalog" {
					r.trailer.Set("Root", object.Ref{Num: num, Gen: e.Gen})
					break
				}
			}
		}
	}
	if _, ok := r.trailer.GetInt("Size"); !ok {
		r.trailer.Set("Size", object.Integer(r.table.MaxNum()+1))
	}
	return nil
}

// loadXRefSection reads one section at offset: either a classic table
// with its trailer, or a cross-reference stream.
func (r *Reader) loadXRefSection(offset int64) (*xref.Table, *object.Dict, error) {
	sc := scanner.New(r.data)
	if err := sc.Seek(offset); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	tok, err := sc.Next()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: empty xref section at %d", ErrCorrupt, offset)
	}
	if tok.Type == scanner.TokenKeyword && tok.Text == "xref" {
		return r.loadClassicSection(sc)
	}
	// Otherwise the section must be an indirect cross-reference
	// stream object starting with its header.
	return r.loadStreamSection(offset)
}

func (r *Reader) loadClassicSection(sc *scanner.Scanner) (*xref.Table, *object.Dict, error) {
	table := xref.NewTable()
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: xref table without trailer", ErrCorrupt)
		}
		if tok.Type == scanner.TokenKeyword && tok.Text == "trailer" {
			break
		}
		if tok.Type != scanner.TokenInteger {
			return nil, nil, fmt.Errorf("%w: unexpected %q in xref table", ErrCorrupt, tok.Text)
		}
		first := tok.Int
		countTok, err := sc.Next()
		if err != nil || countTok.Type != scanner.TokenInteger {
			return nil, nil, fmt.Errorf("%w: xref subsection without count", ErrCorrupt)
		}
		for i := int64(0); i < countTok.Int; i++ {
			f1, err1 := sc.Next()
			f2, err2 := sc.Next()
			f3, err3 := sc.Next()
			if err1 != nil || err2 != nil || err3 != nil ||
				f1.Type != scanner.TokenInteger || f2.Type != scanner.TokenInteger ||
				f3.Type != scanner.TokenKeyword {
				return nil, nil, fmt.Errorf("%w: malformed xref entry", ErrCorrupt)
			}
			num := int(first + i)
			switch f3.Text {
			case "n":
				table.Add(num, xref.Entry{Type: xref.InUse, Offset: f1.Int, Gen: int(f2.Int)})
			case "f":
				table.Add(num, xref.Entry{Type: xref.Free, Gen: int(f2.Int)})
			default:
				return nil, nil, fmt.Errorf("%w: xref entry type %q", ErrCorrupt, f3.Text)
			}
		}
	}
	p := &valueParser{sc: sc}
	trailer, err := p.parseValue(0)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: trailer: %v", ErrCorrupt, err)
	}
	dict, ok := trailer.(*object.Dict)
	if !ok {
		return nil, nil, fmt.Errorf("%w: trailer is %s, not a dictionary", ErrCorrupt, trailer.Type())
	}
	return table, dict, nil
}

func (r *Reader) loadStreamSection(offset int64) (*xref.Table, *object.Dict, error) {
	obj, _, err := r.loadObjectAt(offset, -1)
	if err != nil {
		return nil, nil, err
	}
	st, ok := obj.(*object.Stream)
	if !ok {
		return nil, nil, fmt.Errorf("%w: section at %d is neither table nor stream", ErrCorrupt, offset)
	}
	if t, _ := st.Dict.GetName("Type"); t != "XRef" {
		return nil, nil, fmt.Errorf("%w: stream section has Type %q", ErrCorrupt, t)
	}
	// Cross-reference streams are never encrypted and their Length is
	// always direct, so they can be decoded before anything else.
	data, err := r.decodeStream(st, object.Ref{}, false)
	if err != nil {
		return nil, nil, err
	}
	w, ok := intArray(st.Dict, "W")
	if !ok {
		return nil, nil, fmt.Errorf("%w: xref stream without W", ErrCorrupt)
	}
	index, ok := intArray(st.Dict, "Index")
	if !ok {
		size, _ := st.Dict.GetInt("Size")
		index = []int64{0, size}
	}
	table, err := xref.DecodeStreamData(data, w, index)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return table, st.Dict, nil
}

func intArray(d *object.Dict, key object.Name) ([]int64, bool) {
	arr, ok := d.GetArray(key)
	if !ok {
		return nil, false
	}
	out := make([]int64, 0, len(arr))
	for _, v := range arr {
		n, ok := v.(object.Integer)
		if !ok {
			return nil, false
		}
		out = append(out, int64(n))
	}
	return out, true
}

func (r *Reader) setupEncryption(password string) error {
	encVal, ok := r.trailer.Get("Encrypt")
	if !ok {
		return nil
	}
	var encDict *object.Dict
	switch v := encVal.(type) {
	case *object.Dict:
		encDict = v
	case object.Ref:
		obj, err := r.resolveRaw(v)
		if err != nil {
			return fmt.Errorf("%w: Encrypt: %v", ErrCorrupt, err)
		}
		d, ok := obj.(*object.Dict)
		if !ok {
			return fmt.Errorf("%w: Encrypt is %s", ErrCorrupt, obj.Type())
		}
		encDict = d
	default:
		return fmt.Errorf("%w: Encrypt is %s", ErrCorrupt, encVal.Type())
	}

	var fileID []byte
	if ids, ok := r.trailer.GetArray("ID"); ok && len(ids) > 0 {
		if s, ok := ids[0].(object.String); ok {
			fileID = s.Data
		}
	}
	handler, err := (&security.HandlerBuilder{}).
		WithEncryptDict(encDict).
		WithFileID(fileID).
		Build()
	if err != nil {
		return err
	}
	if err := handler.Authenticate(password); err != nil {
		return err
	}
	r.handler = handler
	return nil
}
