package provider

import (
	"regexp"
	"strings"
)

const endOfCode = "End Of Code"

var (
	pythonFence  = regexp.MustCompile("(?s)```(?:python|py)?[ \t]*\n?(.*?)```")
	pipInstall   = regexp.MustCompile(`(?m)^\s*!pip install.*$`)
	thoughtRe    = regexp.MustCompile(`(?s)Thought:(.*?)New Code:`)
	newCodeRe    = regexp.MustCompile(`(?s)New Code:(.*?)End Of Code`)
	stepNumberRe = regexp.MustCompile(`\d+\.`)
	endOfPlanRe  = regexp.MustCompile(`(?i)end of planning flow`)
	quotedRe     = regexp.MustCompile(`"([^"\n]+)"|'([^'\n]+)'|` + "`([^`\\n]+)`")
)

// ParseCode extracts program text from a coder reply: the end marker and
// notebook-style pip lines are dropped and the first fenced block wins over
// the surrounding prose.
func ParseCode(raw string) string {
	text := strings.ReplaceAll(raw, endOfCode+".", "")
	text = pipInstall.ReplaceAllString(text, "")
	if m := pythonFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ParseCorrection splits a corrector reply into its thought and new code.
// Without the "New Code:" ... "End Of Code" frame the reply is parsed as
// plain coder output.
func ParseCorrection(raw string) (thought, code string) {
	if m := thoughtRe.FindStringSubmatch(raw); m != nil {
		thought = strings.TrimSpace(m[1])
	}
	if m := newCodeRe.FindStringSubmatch(raw); m != nil {
		return thought, ParseCode(m[1])
	}
	if _, after, ok := strings.Cut(raw, "New Code:"); ok {
		return thought, ParseCode(after)
	}
	return thought, ParseCode(raw)
}

// ParseSteps extracts the numbered steps between "Steps:" and the end of
// the planning flow. Each step keeps its number prefix.
func ParseSteps(raw string) []string {
	text := raw
	if _, after, ok := strings.Cut(text, "Steps:"); ok {
		text = after
	}
	text = cutAt(text, endOfPlanRe)

	locs := stepNumberRe.FindAllStringIndex(text, -1)
	steps := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		steps = append(steps, text[loc[0]:loc[1]]+strings.TrimSpace(text[loc[1]:end]))
	}
	return steps
}

// ParseDependencies extracts package names from a dependency tracker reply.
// A bracketed list is read as a list literal; otherwise every line up to its
// first dot is one candidate.
func ParseDependencies(raw string) []string {
	text := strings.ToLower(raw)
	text = cutAt(text, endOfPlanRe)

	if open := strings.Index(text, "["); open >= 0 {
		if end := strings.LastIndex(text, "]"); end > open {
			var deps []string
			for _, item := range strings.Split(text[open+1:end], ",") {
				item = strings.Trim(strings.TrimSpace(item), `"'`)
				if item != "" {
					deps = append(deps, item)
				}
			}
			return deps
		}
	}

	var deps []string
	for _, line := range strings.Split(text, "\n") {
		name, _, _ := strings.Cut(line, ".")
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "-"))
		if name == "" || name == "requirements:" {
			continue
		}
		deps = append(deps, name)
	}
	return deps
}

// ParseQuery extracts a lookup query from a linter reply: the first quoted
// substring, or else the first non-empty line.
func ParseQuery(raw string) string {
	if m := quotedRe.FindStringSubmatch(raw); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				return strings.TrimSpace(g)
			}
		}
	}
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// cutAt returns s up to the first match of re.
func cutAt(s string, re *regexp.Regexp) string {
	if loc := re.FindStringIndex(s); loc != nil {
		return s[:loc[0]]
	}
	return s
}
