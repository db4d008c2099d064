// Package optimize shrinks documents in place: structurally identical
// indirect objects collapse to one, and oversized images are
// downsampled. Both passes preserve the reachable object graph.
package optimize

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sort"

	"github.com/quillpdf/quill/object"
)

// Deduplicate merges indirect objects with identical content and
// returns the number of objects freed. Objects that become identical
// once their references are merged collapse too, so duplicate subtrees
// fold from the leaves up.
func Deduplicate(doc *object.Document) (int, error) {
	remap := make(map[int]object.Ref)
	for {
		groups := make(map[string]object.Ref)
		changed := false
		for _, ref := range doc.Refs() {
			if _, dup := remap[ref.Num]; dup {
				continue
			}
			obj, err := doc.Resolve(ref)
			if err != nil {
				return 0, err
			}
			fp := fingerprint(obj, remap)
			if first, ok := groups[fp]; ok && first != ref {
				remap[ref.Num] = first
				changed = true
				continue
			}
			groups[fp] = ref
		}
		if !changed {
			break
		}
	}
	if len(remap) == 0 {
		return 0, nil
	}

	for _, ref := range doc.Refs() {
		if _, dup := remap[ref.Num]; dup {
			continue
		}
		obj, err := doc.Resolve(ref)
		if err != nil {
			return 0, err
		}
		if _, err := doc.Replace(ref, rewrite(obj, remap)); err != nil {
			return 0, err
		}
	}
	doc.Root = canonical(doc.Root, remap)
	for _, ref := range doc.Refs() {
		if _, dup := remap[ref.Num]; dup {
			if err := doc.Free(ref); err != nil {
				return 0, err
			}
		}
	}
	return len(remap), nil
}

// canonical follows remap chains to the surviving reference.
func canonical(ref object.Ref, remap map[int]object.Ref) object.Ref {
	for {
		next, ok := remap[ref.Num]
		if !ok {
			return ref
		}
		ref = next
	}
}

// fingerprint hashes an object's content with references resolved
// through remap, so merged targets compare equal. Dictionary keys are
// sorted: key order is not significant for identity.
func fingerprint(obj object.Object, remap map[int]object.Ref) string {
	h := sha256.New()
	writeFingerprint(h, obj, remap)
	return string(h.Sum(nil))
}

func writeFingerprint(w io.Writer, obj object.Object, remap map[int]object.Ref) {
	switch v := obj.(type) {
	case object.Null, nil:
		io.WriteString(w, "null")
	case object.Boolean:
		fmt.Fprintf(w, "b%t", bool(v))
	case object.Integer:
		fmt.Fprintf(w, "i%d", int64(v))
	case object.Real:
		fmt.Fprintf(w, "r%s", object.FormatNumber(float64(v)))
	case object.Name:
		fmt.Fprintf(w, "/%s", string(v))
	case object.String:
		fmt.Fprintf(w, "s%d:", len(v.Data))
		w.Write(v.Data)
	case object.Ref:
		c := canonical(v, remap)
		fmt.Fprintf(w, "R%d.%d", c.Num, c.Gen)
	case object.Array:
		io.WriteString(w, "[")
		for _, item := range v {
			writeFingerprint(w, item, remap)
		}
		io.WriteString(w, "]")
	case *object.Dict:
		keys := v.Keys()
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		io.WriteString(w, "<<")
		for _, k := range keys {
			fmt.Fprintf(w, "/%s=", string(k))
			item, _ := v.Get(k)
			writeFingerprint(w, item, remap)
		}
		io.WriteString(w, ">>")
	case *object.Stream:
		io.WriteString(w, "stm")
		writeFingerprint(w, v.Dict, remap)
		fmt.Fprintf(w, "%d:", len(v.Data))
		w.Write(v.Data)
	default:
		fmt.Fprintf(w, "?%T", obj)
	}
}

// rewrite returns obj with every reference redirected through remap.
// Containers are copied; scalars pass through unchanged.
func rewrite(obj object.Object, remap map[int]object.Ref) object.Object {
	switch v := obj.(type) {
	case object.Ref:
		return canonical(v, remap)
	case object.Array:
		out := make(object.Array, len(v))
		for i, item := range v {
			out[i] = rewrite(item, remap)
		}
		return out
	case *object.Dict:
		out := object.NewDict()
		for _, k := range v.Keys() {
			item, _ := v.Get(k)
			out.Set(k, rewrite(item, remap))
		}
		return out
	case *object.Stream:
		return &object.Stream{Dict: rewrite(v.Dict, remap).(*object.Dict), Data: v.Data}
	}
	return obj
}
