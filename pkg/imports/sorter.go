package imports

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxLineLength is the width above which a from-import is wrapped in
// parentheses, one name per line.
const maxLineLength = 79

type section int

const (
	sectionFuture section = iota
	sectionStdlib
	sectionThirdParty
	sectionLocal
)

// CanonicalSorter orders the leading top-level import block. Imports that
// appear after the first non-import statement are left where they are.
type CanonicalSorter struct{}

var _ Sorter = CanonicalSorter{}

// Sort implements Sorter.
func (CanonicalSorter) Sort(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return code, nil
	}
	src := []byte(code)
	tree, err := parse(ctx, src)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	root := tree.RootNode()
	var block []*sitter.Node
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if isImport(child) {
			block = append(block, child)
			continue
		}
		if len(block) > 0 {
			// A ";" statement or an inline comment on the row of the last
			// import belongs to that line, so the line stays untouched.
			if last := block[len(block)-1]; child.StartPoint().Row == last.EndPoint().Row {
				block = block[:len(block)-1]
			}
			break
		}
		// Comments and a module docstring may precede the block.
		if child.Type() == "comment" || isDocstring(child) {
			continue
		}
		break
	}
	if len(block) == 0 {
		return code, nil
	}

	start := block[0].StartByte()
	end := block[len(block)-1].EndByte()

	var set importSet
	for _, node := range block {
		set.add(node, src)
	}

	var b strings.Builder
	b.WriteString(code[:start])
	b.WriteString(set.render())
	b.WriteString("\n")
	if rest := strings.TrimLeft(code[end:], "\n"); rest != "" {
		b.WriteString("\n")
		b.WriteString(rest)
	}
	return b.String(), nil
}

func isImport(n *sitter.Node) bool {
	switch n.Type() {
	case "import_statement", "import_from_statement", "future_import_statement":
		return true
	}
	return false
}

func isDocstring(n *sitter.Node) bool {
	return n.Type() == "expression_statement" && n.ChildCount() > 0 && n.Child(0).Type() == "string"
}

// plainImport is "import module" or "import module as alias".
type plainImport struct {
	module string
	alias  string
}

func (p plainImport) String() string {
	if p.alias != "" {
		return "import " + p.module + " as " + p.alias
	}
	return "import " + p.module
}

// importSet accumulates the imports of a block, merging from-imports of the
// same module.
type importSet struct {
	plain []plainImport
	from  map[string]map[string]bool
}

func (s *importSet) add(node *sitter.Node, src []byte) {
	switch node.Type() {
	case "import_statement":
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			switch child.Type() {
			case "dotted_name":
				s.addPlain(plainImport{module: child.Content(src)})
			case "aliased_import":
				s.addPlain(aliased(child, src))
			}
		}
	case "import_from_statement", "future_import_statement":
		module := "__future__"
		sawImport := node.Type() == "future_import_statement"
		var names []string
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			switch child.Type() {
			case "import":
				sawImport = true
			case "relative_import":
				module = child.Content(src)
			case "dotted_name":
				if sawImport {
					names = append(names, child.Content(src))
				} else {
					module = child.Content(src)
				}
			case "aliased_import":
				p := aliased(child, src)
				names = append(names, p.module+" as "+p.alias)
			case "wildcard_import":
				names = append(names, "*")
			}
		}
		s.addFrom(module, names)
	}
}

func aliased(node *sitter.Node, src []byte) plainImport {
	var p plainImport
	if name := node.ChildByFieldName("name"); name != nil {
		p.module = name.Content(src)
	}
	if alias := node.ChildByFieldName("alias"); alias != nil {
		p.alias = alias.Content(src)
	}
	return p
}

func (s *importSet) addPlain(p plainImport) {
	if p.module == "" {
		return
	}
	for _, existing := range s.plain {
		if existing == p {
			return
		}
	}
	s.plain = append(s.plain, p)
}

func (s *importSet) addFrom(module string, names []string) {
	if s.from == nil {
		s.from = make(map[string]map[string]bool)
	}
	set, ok := s.from[module]
	if !ok {
		set = make(map[string]bool)
		s.from[module] = set
	}
	for _, n := range names {
		set[n] = true
	}
}

// render writes the sections separated by one blank line. Within a section
// plain imports come first, then from-imports, each alphabetically.
func (s *importSet) render() string {
	plain := make(map[section][]string)
	for _, p := range s.plain {
		sec := classify(p.module)
		plain[sec] = append(plain[sec], p.String())
	}
	from := make(map[section][]string)
	for module := range s.from {
		sec := classify(module)
		from[sec] = append(from[sec], module)
	}

	var groups []string
	for sec := sectionFuture; sec <= sectionLocal; sec++ {
		var lines []string
		p := plain[sec]
		sortFold(p)
		lines = append(lines, p...)

		modules := from[sec]
		sortFold(modules)
		for _, m := range modules {
			lines = append(lines, fromLine(m, s.from[m]))
		}
		if len(lines) > 0 {
			groups = append(groups, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(groups, "\n\n")
}

func fromLine(module string, set map[string]bool) string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sortFold(names)

	line := "from " + module + " import " + strings.Join(names, ", ")
	if len(line) <= maxLineLength || len(names) == 1 {
		return line
	}
	var b strings.Builder
	b.WriteString("from " + module + " import (\n")
	for _, n := range names {
		b.WriteString("    " + n + ",\n")
	}
	b.WriteString(")")
	return b.String()
}

func sortFold(s []string) {
	sort.Slice(s, func(i, j int) bool { return lessFold(s[i], s[j]) })
}

// lessFold orders case-insensitively, falling back to a byte comparison so
// the order is total.
func lessFold(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

func classify(module string) section {
	switch {
	case module == "__future__":
		return sectionFuture
	case strings.HasPrefix(module, "."):
		return sectionLocal
	}
	top, _, _ := strings.Cut(module, ".")
	if stdlib[top] {
		return sectionStdlib
	}
	return sectionThirdParty
}
