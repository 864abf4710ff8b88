package provider

import (
	"fmt"
	"strings"
	"text/template"
)

// Prompt is the system and user template pair for one role. Templates are
// rendered with the request inputs; missing inputs render empty.
type Prompt struct {
	System string
	User   string
}

// DefaultPrompts holds the built-in prompt per role.
var DefaultPrompts = map[Role]Prompt{
	RolePlanner: {
		System: `You break a Python coding task into small, tractable implementation steps.
You receive the task and excerpts from the documentation of the libraries it needs.
Number every step ("1.", "2.", ...). Name the exact libraries, functions and classes to use.
Only add new code, never modify existing code. Keep it simple.
Finish with the line "End of planning flow".`,
		User: `Context: {{.context}}
Task: '{{.task}}'
Steps:`,
	},
	RoleDependencyTracker: {
		System: `You read a coding plan and list the Python packages that must be installed with pip.
List only packages outside the standard library, one package name per line.
Never list submodules or functions (requests, not requests.get).
Finish with the line "End of planning flow".`,
		User: `Plan: '{{.plan}}'
Requirements:`,
	},
	RoleCoder: {
		System: `You are an expert Python programmer. You write complete, runnable programs.
Rely on the documentation you are given and import modules exactly as they appear there.
Define each piece of functionality separately and do not nest code.
Dependencies are already installed; never install anything.
Reply with the full program after "New Code:" and end it with the line "End Of Code."`,
		User: `Objective: {{.task}}
Plan: {{.plan}}
Context: {{.context}}
Source Code: {{.source_code}}
New Code:`,
	},
	RoleCorrector: {
		System: `You correct faulty Python programs. You receive the program, the error it produced
and documentation for the libraries it uses.
First analyse the error and summarise the fix after "Thought:".
Then write the complete corrected program after "New Code:" and end it with "End Of Code."
Never return partial code and never repeat the error of the source.`,
		User: `Context: {{.context}}
Task: {{.task}}
Source Code: {{.source_code}}
Error: {{.error}}`,
	},
	RoleLinter: {
		System: `You receive a Python program and the errors a linter reported for it.
Reply with one short search query, in double quotes, naming the symbol or module
that must be looked up in the library to fix the first error.`,
		User: `Source Code: {{.source_code}}
Linting Errors: {{.lint_output}}`,
	},
}

// compiledPrompt is a Prompt parsed into templates.
type compiledPrompt struct {
	system *template.Template
	user   *template.Template
}

func compilePrompt(role Role, p Prompt) (*compiledPrompt, error) {
	system, err := template.New(string(role) + ".system").Option("missingkey=zero").Parse(p.System)
	if err != nil {
		return nil, fmt.Errorf("parse %s system prompt: %w", role, err)
	}
	user, err := template.New(string(role) + ".user").Option("missingkey=zero").Parse(p.User)
	if err != nil {
		return nil, fmt.Errorf("parse %s user prompt: %w", role, err)
	}
	return &compiledPrompt{system: system, user: user}, nil
}

func (p *compiledPrompt) render(inputs map[string]string) (system, user string, err error) {
	if inputs == nil {
		inputs = map[string]string{}
	}
	var sb, ub strings.Builder
	if err := p.system.Execute(&sb, inputs); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	if err := p.user.Execute(&ub, inputs); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return sb.String(), ub.String(), nil
}
