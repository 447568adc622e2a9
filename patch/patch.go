// Package patch implements structural diffing of JSON-representable values.
//
// A patch is an ordered list of add/remove/replace operations with
// JSON-Pointer paths, in the style of RFC 6902. Diff produces the patch
// transforming one document into another; Apply replays a patch. Patches
// compose associatively: applying a transcript's store patches in order to
// an empty document reconstructs the final store state exactly.
package patch

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// OpType is the kind of a patch operation.
type OpType string

const (
	OpAdd     OpType = "add"
	OpRemove  OpType = "remove"
	OpReplace OpType = "replace"
)

// Op is a single patch operation. Path is a JSON Pointer (RFC 6901); Value
// is present for add and replace.
type Op struct {
	Type  OpType `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// -----------------------------------------------------------------------------
// Diff
// -----------------------------------------------------------------------------

// Diff computes the ordered patch transforming before into after.
//
// Both documents are first normalized to plain JSON types (maps, slices,
// strings, float64, bool, nil) so values that differ only in Go type compare
// equal. Map keys are visited in sorted order. Sequences diff positionally:
// a diverging index yields a replace (or a nested patch when both sides are
// containers), trailing additions yield adds in ascending index order, and
// trailing deletions yield removes in descending index order, so the ops
// stay valid when applied left to right. Reordered sequences therefore diff
// as replaces; no move detection is attempted.
func Diff(before, after map[string]any) []Op {
	var ops []Op
	diffValue("", normalize(before), normalize(after), &ops)
	return ops
}

func diffValue(path string, a, b any, ops *[]Op) {
	if reflect.DeepEqual(a, b) {
		return
	}

	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		diffMap(path, am, bm, ops)
		return
	}

	as, aIsSeq := a.([]any)
	bs, bIsSeq := b.([]any)
	if aIsSeq && bIsSeq {
		diffSeq(path, as, bs, ops)
		return
	}

	*ops = append(*ops, Op{Type: OpReplace, Path: path, Value: b})
}

func diffMap(path string, a, b map[string]any, ops *[]Op) {
	keys := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range b {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		childPath := path + "/" + escapeToken(k)
		av, inA := a[k]
		bv, inB := b[k]
		switch {
		case inA && inB:
			diffValue(childPath, av, bv, ops)
		case inA:
			*ops = append(*ops, Op{Type: OpRemove, Path: childPath})
		default:
			*ops = append(*ops, Op{Type: OpAdd, Path: childPath, Value: bv})
		}
	}
}

func diffSeq(path string, a, b []any, ops *[]Op) {
	common := len(a)
	if len(b) < common {
		common = len(b)
	}
	for i := 0; i < common; i++ {
		diffValue(path+"/"+strconv.Itoa(i), a[i], b[i], ops)
	}
	for i := common; i < len(b); i++ {
		*ops = append(*ops, Op{Type: OpAdd, Path: path + "/" + strconv.Itoa(i), Value: b[i]})
	}
	for i := len(a) - 1; i >= common; i-- {
		*ops = append(*ops, Op{Type: OpRemove, Path: path + "/" + strconv.Itoa(i)})
	}
}

// normalize projects v onto plain JSON types. Values that cannot be
// marshalled are returned unchanged and compared as-is.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// -----------------------------------------------------------------------------
// Apply
// -----------------------------------------------------------------------------

// Apply replays ops against base and returns the resulting document. The
// base is deep-copied (and normalized, like Diff's inputs) before any op is
// applied, so base itself is never mutated.
func Apply(base map[string]any, ops []Op) (map[string]any, error) {
	doc := normalize(base)
	if doc == nil {
		doc = map[string]any{}
	}
	for i, op := range ops {
		tokens, err := parsePointer(op.Path)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		doc, err = applyOp(doc, tokens, op)
		if err != nil {
			return nil, fmt.Errorf("op %d (%s %s): %w", i, op.Type, op.Path, err)
		}
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document root is %T, not a map", doc)
	}
	return m, nil
}

func applyOp(node any, tokens []string, op Op) (any, error) {
	if len(tokens) == 0 {
		switch op.Type {
		case OpAdd, OpReplace:
			return normalize(op.Value), nil
		case OpRemove:
			return nil, fmt.Errorf("cannot remove document root")
		default:
			return nil, fmt.Errorf("unknown op type %q", op.Type)
		}
	}

	tok := tokens[0]
	switch n := node.(type) {
	case map[string]any:
		if len(tokens) > 1 {
			child, ok := n[tok]
			if !ok {
				return nil, fmt.Errorf("path element %q not found", tok)
			}
			updated, err := applyOp(child, tokens[1:], op)
			if err != nil {
				return nil, err
			}
			n[tok] = updated
			return n, nil
		}
		switch op.Type {
		case OpAdd:
			n[tok] = normalize(op.Value)
		case OpReplace:
			if _, ok := n[tok]; !ok {
				return nil, fmt.Errorf("replace target %q not found", tok)
			}
			n[tok] = normalize(op.Value)
		case OpRemove:
			if _, ok := n[tok]; !ok {
				return nil, fmt.Errorf("remove target %q not found", tok)
			}
			delete(n, tok)
		default:
			return nil, fmt.Errorf("unknown op type %q", op.Type)
		}
		return n, nil

	case []any:
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("invalid sequence index %q", tok)
		}
		if len(tokens) > 1 {
			if idx >= len(n) {
				return nil, fmt.Errorf("sequence index %d out of range (len %d)", idx, len(n))
			}
			updated, err := applyOp(n[idx], tokens[1:], op)
			if err != nil {
				return nil, err
			}
			n[idx] = updated
			return n, nil
		}
		switch op.Type {
		case OpAdd:
			if idx > len(n) {
				return nil, fmt.Errorf("add index %d out of range (len %d)", idx, len(n))
			}
			n = append(n, nil)
			copy(n[idx+1:], n[idx:])
			n[idx] = normalize(op.Value)
		case OpReplace:
			if idx >= len(n) {
				return nil, fmt.Errorf("replace index %d out of range (len %d)", idx, len(n))
			}
			n[idx] = normalize(op.Value)
		case OpRemove:
			if idx >= len(n) {
				return nil, fmt.Errorf("remove index %d out of range (len %d)", idx, len(n))
			}
			n = append(n[:idx], n[idx+1:]...)
		default:
			return nil, fmt.Errorf("unknown op type %q", op.Type)
		}
		return n, nil

	default:
		return nil, fmt.Errorf("cannot descend into %T at %q", node, tok)
	}
}

// -----------------------------------------------------------------------------
// JSON Pointer
// -----------------------------------------------------------------------------

func escapeToken(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

func unescapeToken(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	return strings.ReplaceAll(s, "~0", "~")
}

func parsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("invalid pointer %q: must start with /", path)
	}
	parts := strings.Split(path[1:], "/")
	tokens := make([]string, len(parts))
	for i, p := range parts {
		tokens[i] = unescapeToken(p)
	}
	return tokens, nil
}
