package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// DefaultFileName is the file generated code is written to.
const DefaultFileName = "magic_code.py"

// CodeUnit holds source code as lines and mirrors it to a file. Every
// mutation rewrites the file with the lines joined by "\n", so reading the
// file back and splitting on "\n" reproduces Lines.
type CodeUnit struct {
	path  string
	lines []string
}

// NewCodeUnit returns an empty unit backed by dir/fileName.
func NewCodeUnit(dir, fileName string) *CodeUnit {
	if fileName == "" {
		fileName = DefaultFileName
	}
	return &CodeUnit{path: filepath.Join(dir, fileName)}
}

// Path returns the backing file.
func (u *CodeUnit) Path() string { return u.path }

// Lines returns a copy of the current lines.
func (u *CodeUnit) Lines() []string { return slices.Clone(u.lines) }

// Content returns the code exactly as written to the file.
func (u *CodeUnit) Content() string { return strings.Join(u.lines, "\n") }

// Overwrite replaces all code. Empty lines are dropped.
func (u *CodeUnit) Overwrite(code string) error {
	return u.commit(splitNonEmpty(code))
}

// Append adds code at the end. Empty lines are dropped.
func (u *CodeUnit) Append(code string) error {
	next := append(slices.Clone(u.lines), splitNonEmpty(code)...)
	return u.commit(next)
}

// ReplaceLine replaces the 1-based line n.
func (u *CodeUnit) ReplaceLine(n int, code string) error {
	if n < 1 || n > len(u.lines) {
		return fmt.Errorf("line %d out of range [1, %d]", n, len(u.lines))
	}
	next := slices.Clone(u.lines)
	next[n-1] = code
	return u.commit(next)
}

// DeleteLines removes the given 1-based lines. All numbers are checked
// before anything is removed.
func (u *CodeUnit) DeleteLines(ns ...int) error {
	for _, n := range ns {
		if n < 1 || n > len(u.lines) {
			return fmt.Errorf("line %d out of range [1, %d]", n, len(u.lines))
		}
	}
	sorted := slices.Clone(ns)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	sorted = slices.Compact(sorted)

	next := slices.Clone(u.lines)
	for _, n := range sorted {
		next = slices.Delete(next, n-1, n)
	}
	return u.commit(next)
}

// TrimFences strips a leading ```python and a trailing ``` left over from
// markdown output.
func (u *CodeUnit) TrimFences() error {
	if len(u.lines) == 0 {
		return nil
	}
	next := slices.Clone(u.lines)
	next[0] = strings.Replace(next[0], "```python", "", 1)
	last := len(next) - 1
	next[last] = strings.Replace(next[last], "```", "", 1)
	return u.commit(splitNonEmpty(strings.Join(next, "\n")))
}

// Display renders the code as "\n" followed by every line and a newline.
func (u *CodeUnit) Display() string {
	var b strings.Builder
	b.WriteString("\n")
	for _, line := range u.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Save writes the current lines to the backing file.
func (u *CodeUnit) Save() error {
	if err := os.MkdirAll(filepath.Dir(u.path), 0o755); err != nil {
		return fmt.Errorf("create code dir: %w", err)
	}
	if err := os.WriteFile(u.path, []byte(u.Content()), 0o644); err != nil {
		return fmt.Errorf("write code: %w", err)
	}
	return nil
}

// commit writes next to disk and only then swaps it in.
func (u *CodeUnit) commit(next []string) error {
	prev := u.lines
	u.lines = next
	if err := u.Save(); err != nil {
		u.lines = prev
		return err
	}
	return nil
}

func splitNonEmpty(code string) []string {
	var out []string
	for _, line := range strings.Split(code, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
