package imports

import (
	"context"
	"strings"
)

// ImportedNames returns the fully qualified names imported at module level
// of code, in source order: "pkg.mod.Name" for from-imports and "pkg.mod"
// for plain imports. Wildcard imports are skipped. The names feed the
// symbol index used to resolve lint errors.
func ImportedNames(ctx context.Context, code string) ([]string, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	src := []byte(code)
	tree, err := parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var names []string
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		if !isImport(node) {
			continue
		}
		var set importSet
		set.add(node, src)
		for _, p := range set.plain {
			names = append(names, p.module)
		}
		for module, members := range set.from {
			for _, m := range sortedKeys(members) {
				if m == "*" {
					continue
				}
				name, _, _ := strings.Cut(m, " as ")
				if strings.HasSuffix(module, ".") {
					names = append(names, module+name)
				} else {
					names = append(names, module+"."+name)
				}
			}
		}
	}
	return names, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortFold(keys)
	return keys
}
