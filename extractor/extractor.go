// Package extractor pulls plain text out of parsed documents by
// tokenizing page content streams and collecting the operands of the
// text showing operators.
package extractor

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/parser"
	"github.com/quillpdf/quill/scanner"
)

// ErrNoPages is returned when the catalog has no usable page tree.
var ErrNoPages = errors.New("document has no page tree")

// Extractor reads text from one parsed document.
type Extractor struct {
	r *parser.Reader
}

func New(r *parser.Reader) *Extractor { return &Extractor{r: r} }

// Pages returns the leaf page references in document order, walking
// the page tree through intermediate Pages nodes. Cycles in the tree
// terminate the walk rather than looping.
func (e *Extractor) Pages() ([]object.Ref, error) {
	root, ok := e.r.Root()
	if !ok {
		return nil, ErrNoPages
	}
	catalog, err := e.resolveDict(root)
	if err != nil {
		return nil, err
	}
	pagesRef, ok := catalog.GetRef("Pages")
	if !ok {
		return nil, ErrNoPages
	}
	var out []object.Ref
	visited := make(map[object.Ref]bool)
	var walk func(ref object.Ref) error
	walk = func(ref object.Ref) error {
		if visited[ref] {
			return nil
		}
		visited[ref] = true
		node, err := e.resolveDict(ref)
		if err != nil {
			return err
		}
		if tp, _ := node.GetName("Type"); tp == "Page" {
			out = append(out, ref)
			return nil
		}
		kids, _ := node.GetArray("Kids")
		for _, kid := range kids {
			kidRef, ok := kid.(object.Ref)
			if !ok {
				continue
			}
			if err := walk(kidRef); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(pagesRef); err != nil {
		return nil, err
	}
	return out, nil
}

// PageText returns the text shown on one page. Show operations are
// concatenated; text positioning operators introduce line breaks.
func (e *Extractor) PageText(page object.Ref) (string, error) {
	dict, err := e.resolveDict(page)
	if err != nil {
		return "", err
	}
	content, err := e.pageContent(dict)
	if err != nil {
		return "", err
	}
	return extractText(content)
}

// Text returns the text of every page, separated by form feeds.
func (e *Extractor) Text() (string, error) {
	pages, err := e.Pages()
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		text, err := e.PageText(page)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\f"), nil
}

func (e *Extractor) resolveDict(ref object.Ref) (*object.Dict, error) {
	obj, err := e.r.Resolve(ref)
	if err != nil {
		return nil, err
	}
	switch v := obj.(type) {
	case *object.Dict:
		return v, nil
	case *object.Stream:
		return v.Dict, nil
	}
	return nil, fmt.Errorf("expected dictionary at %s, got %T", ref, obj)
}

// pageContent concatenates the page's content streams. Contents may be
// a single stream reference or an array of them.
func (e *Extractor) pageContent(page *object.Dict) ([]byte, error) {
	if ref, ok := page.GetRef("Contents"); ok {
		return e.r.StreamData(ref)
	}
	arr, ok := page.GetArray("Contents")
	if !ok {
		return nil, nil
	}
	var out []byte
	for _, item := range arr {
		ref, ok := item.(object.Ref)
		if !ok {
			continue
		}
		data, err := e.r.StreamData(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		out = append(out, '\n')
	}
	return out, nil
}

// extractText tokenizes a content stream and gathers the string
// operands of Tj, ', ", and TJ. Only string operands accumulate, so
// the numeric kerning values inside TJ arrays fall away naturally.
func extractText(content []byte) (string, error) {
	sc := scanner.New(content)
	var sb strings.Builder
	var pending []string
	breakLine := false
	for {
		tok, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch tok.Type {
		case scanner.TokenString:
			pending = append(pending, tok.Text)
		case scanner.TokenKeyword:
			switch tok.Text {
			case "Tj", "'", "\"", "TJ":
				if len(pending) > 0 {
					if breakLine && sb.Len() > 0 {
						sb.WriteByte('\n')
					}
					breakLine = false
					for _, s := range pending {
						sb.WriteString(s)
					}
				}
				pending = pending[:0]
			case "Td", "TD", "T*", "ET":
				breakLine = true
				pending = pending[:0]
			default:
				pending = pending[:0]
			}
		}
	}
	return sb.String(), nil
}
