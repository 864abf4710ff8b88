package imports

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCanonicalSorter(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "sections and merge",
			code: "import sys\nfrom .local import helper\nimport requests\nfrom __future__ import annotations\nimport os\nfrom os import path\nfrom collections import OrderedDict\nfrom collections import defaultdict\nimport numpy as np\n\n\ndef main():\n    import json\n    return json\n",
			want: "from __future__ import annotations\n\nimport os\nimport sys\nfrom collections import defaultdict, OrderedDict\nfrom os import path\n\nimport numpy as np\nimport requests\n\nfrom .local import helper\n\ndef main():\n    import json\n    return json\n",
		},
		{
			name: "docstring kept in front",
			code: "\"\"\"Doc.\"\"\"\nimport sys\nimport os\nprint(os, sys)\n",
			want: "\"\"\"Doc.\"\"\"\nimport os\nimport sys\n\nprint(os, sys)\n",
		},
		{
			name: "no imports",
			code: "print('hi')\n",
			want: "print('hi')\n",
		},
		{
			name: "in-body import left in place",
			code: "import os\nx = 1\nimport sys\n",
			want: "import os\n\nx = 1\nimport sys\n",
		},
		{
			name: "duplicates dropped",
			code: "import os\nimport os\nfrom a import b\nfrom a import b\n",
			want: "import os\n\nfrom a import b\n",
		},
		{
			name: "multi-name import split",
			code: "import sys, os\n",
			want: "import os\nimport sys\n",
		},
		{
			name: "relative bare dot",
			code: "from . import views\nimport flask\n",
			want: "import flask\n\nfrom . import views\n",
		},
		{
			name: "semicolon tail kept on its line",
			code: "import os; x = 1\nprint(x, os.sep)\n",
			want: "import os; x = 1\nprint(x, os.sep)\n",
		},
		{
			name: "inline comment kept on its line",
			code: "import sys  # keep\nimport os\n",
			want: "import sys  # keep\nimport os\n",
		},
		{
			name: "imports before a semicolon line sorted",
			code: "import sys\nimport json\nimport os; x = 1\n",
			want: "import json\nimport sys\n\nimport os; x = 1\n",
		},
		{
			name: "blank input",
			code: "  \n",
			want: "  \n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalSorter{}.Sort(context.Background(), tt.code)
			if err != nil {
				t.Fatalf("Sort() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Sort() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestCanonicalSorterWrapsLongLines(t *testing.T) {
	code := "from package.module import alpha_function, beta_function, gamma_function, delta_function\n"
	got, err := CanonicalSorter{}.Sort(context.Background(), code)
	if err != nil {
		t.Fatalf("Sort() error: %v", err)
	}
	want := "from package.module import (\n    alpha_function,\n    beta_function,\n    delta_function,\n    gamma_function,\n)\n"
	if got != want {
		t.Fatalf("Sort() =\n%q\nwant\n%q", got, want)
	}
	again, err := CanonicalSorter{}.Sort(context.Background(), got)
	if err != nil {
		t.Fatalf("second Sort() error: %v", err)
	}
	if again != got {
		t.Errorf("wrapped output not stable:\n%q\n%q", got, again)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		module string
		want   section
	}{
		{"__future__", sectionFuture},
		{"os", sectionStdlib},
		{"os.path", sectionStdlib},
		{"xml.etree", sectionStdlib},
		{"numpy", sectionThirdParty},
		{".", sectionLocal},
		{"..pkg.mod", sectionLocal},
	}
	for _, tt := range tests {
		if got := classify(tt.module); got != tt.want {
			t.Errorf("classify(%q) = %d, want %d", tt.module, got, tt.want)
		}
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "isort")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExternalSorter(t *testing.T) {
	s := ExternalSorter{Path: writeScript(t, "cat")}
	got, err := s.Sort(context.Background(), "import os\n")
	if err != nil {
		t.Fatalf("Sort() error: %v", err)
	}
	if got != "import os\n" {
		t.Errorf("Sort() = %q, want %q", got, "import os\n")
	}
}

func TestExternalSorterFailure(t *testing.T) {
	s := ExternalSorter{Path: writeScript(t, "echo broken >&2; exit 2")}
	_, err := s.Sort(context.Background(), "import os\n")
	if err == nil {
		t.Fatal("Sort() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error %q does not carry stderr", err)
	}
}

func TestExternalSorterMissingBinary(t *testing.T) {
	s := ExternalSorter{Path: filepath.Join(t.TempDir(), "missing")}
	if _, err := s.Sort(context.Background(), "import os\n"); err == nil {
		t.Error("Sort() error = nil, want error for missing binary")
	}
}
