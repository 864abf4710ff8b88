package imports

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/rhuss/codinit/pkg/debug"
)

// Sorter puts the import block of a Python source into canonical order.
type Sorter interface {
	Sort(ctx context.Context, code string) (string, error)
}

// Normalizer rewrites alias.member accesses into from-imports.
type Normalizer struct {
	sorter Sorter
}

// New returns a Normalizer that orders imports with sorter. A nil sorter
// means the built-in CanonicalSorter.
func New(sorter Sorter) *Normalizer {
	if sorter == nil {
		sorter = CanonicalSorter{}
	}
	return &Normalizer{sorter: sorter}
}

// NormalizeAll applies Normalize once per dependency, in order.
func (n *Normalizer) NormalizeAll(ctx context.Context, code string, deps []string) (string, error) {
	var err error
	for _, dep := range deps {
		code, err = n.Normalize(ctx, code, dep)
		if err != nil {
			return "", err
		}
	}
	if len(deps) == 0 && code != "" {
		return n.sorter.Sort(ctx, code)
	}
	return code, nil
}

// Normalize rewrites every alias.member access in code to member, prepends
// one "from alias import member" line per distinct member and sorts the
// import block. Empty code is returned unchanged.
func (n *Normalizer) Normalize(ctx context.Context, code, alias string) (string, error) {
	if code == "" {
		return code, nil
	}
	alias = strings.TrimSpace(alias)

	src := []byte(code)
	refs, err := collectRefs(ctx, src, alias)
	if err != nil {
		return "", err
	}

	if len(refs) > 0 {
		members := make([]string, 0, len(refs))
		seen := make(map[string]bool, len(refs))
		for _, r := range refs {
			if !seen[r.member] {
				seen[r.member] = true
				members = append(members, r.member)
			}
		}
		sort.Strings(members)

		code = rewrite(src, refs)

		var b strings.Builder
		for _, m := range members {
			fmt.Fprintf(&b, "from %s import %s\n", alias, m)
		}
		b.WriteString(code)
		code = b.String()

		debug.Log("imports", "unwrapped alias members", "alias", alias, "members", members, "refs", len(refs))
	}

	return n.sorter.Sort(ctx, code)
}

// ref is one alias.member access to rewrite.
type ref struct {
	start, end uint32
	member     string
}

// collectRefs returns every attribute node whose object is the identifier
// alias, skipping import statements.
func collectRefs(ctx context.Context, src []byte, alias string) ([]ref, error) {
	if alias == "" {
		return nil, nil
	}
	tree, err := parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var refs []ref
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		switch node.Type() {
		case "import_statement", "import_from_statement", "future_import_statement":
			return
		case "attribute":
			obj := node.ChildByFieldName("object")
			attr := node.ChildByFieldName("attribute")
			if obj != nil && attr != nil && obj.Type() == "identifier" && obj.Content(src) == alias {
				refs = append(refs, ref{
					start:  node.StartByte(),
					end:    node.EndByte(),
					member: attr.Content(src),
				})
				return
			}
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())
	return refs, nil
}

// rewrite replaces each ref's byte range with its member name. Refs never
// overlap because the walk does not descend into a matched node.
func rewrite(src []byte, refs []ref) string {
	sorted := make([]ref, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start > sorted[j].start })

	out := src
	for _, r := range sorted {
		next := make([]byte, 0, len(out))
		next = append(next, out[:r.start]...)
		next = append(next, r.member...)
		next = append(next, out[r.end:]...)
		out = next
	}
	return string(out)
}

// parse builds a Python syntax tree. A new parser is created per call since
// tree-sitter parsers are not safe for concurrent use.
func parse(ctx context.Context, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse python source: %w", err)
	}
	return tree, nil
}
