// Package resources resolves the inheritable page attributes:
// Resources, MediaBox, CropBox, and Rotate may live on any ancestor in
// the page tree and apply to every page below it.
package resources

import (
	"fmt"

	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/parser"
)

// Attrs holds the effective attributes of one page after walking its
// Parent chain. Fields the chain never defines stay zero.
type Attrs struct {
	Resources *object.Dict
	MediaBox  object.Array
	CropBox   object.Array
	Rotate    int64
}

// maxDepth bounds the Parent chain against malformed trees.
const maxDepth = 64

// Inherited collects the effective attributes for page, nearest
// definition first. A cycle or overlong Parent chain is an error.
func Inherited(r *parser.Reader, page object.Ref) (Attrs, error) {
	var attrs Attrs
	haveRotate := false
	visited := make(map[object.Ref]bool)
	ref := page
	for depth := 0; ; depth++ {
		if depth >= maxDepth || visited[ref] {
			return Attrs{}, fmt.Errorf("page tree Parent chain does not terminate at %s", ref)
		}
		visited[ref] = true
		obj, err := r.Resolve(ref)
		if err != nil {
			return Attrs{}, err
		}
		node, ok := obj.(*object.Dict)
		if !ok {
			return Attrs{}, fmt.Errorf("page tree node %s is %T", ref, obj)
		}
		if attrs.Resources == nil {
			if d, ok := node.GetDict("Resources"); ok {
				attrs.Resources = d
			} else if res, ok := node.GetRef("Resources"); ok {
				resolved, err := r.Resolve(res)
				if err != nil {
					return Attrs{}, err
				}
				if d, ok := resolved.(*object.Dict); ok {
					attrs.Resources = d
				}
			}
		}
		if attrs.MediaBox == nil {
			if a, ok := node.GetArray("MediaBox"); ok {
				attrs.MediaBox = a
			}
		}
		if attrs.CropBox == nil {
			if a, ok := node.GetArray("CropBox"); ok {
				attrs.CropBox = a
			}
		}
		if !haveRotate {
			if n, ok := node.GetInt("Rotate"); ok {
				attrs.Rotate = n
				haveRotate = true
			}
		}
		parent, ok := node.GetRef("Parent")
		if !ok {
			return attrs, nil
		}
		ref = parent
	}
}
