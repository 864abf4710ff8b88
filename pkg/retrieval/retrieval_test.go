package retrieval

import (
	"context"
	"testing"
)

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Search for "langchain.llms" please`, "langchain.llms"},
		{`'OpenAI' and "Chain"`, "OpenAI"},
		{"`ChatOpenAI`", "ChatOpenAI"},
		{"  LLMChain  ", "LLMChain"},
		{`"" fallback`, "fallback"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeQuery(tt.in); got != tt.want {
			t.Errorf("SanitizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoin(t *testing.T) {
	got := Join([]string{" a ", "", "b\n"})
	if want := "a\n\nb"; got != want {
		t.Errorf("Join() = %q, want %q", got, want)
	}
}

func TestNop(t *testing.T) {
	var n Nop
	if s, err := n.Retrieve(context.Background(), "q"); s != "" || err != nil {
		t.Errorf("Retrieve() = %q, %v", s, err)
	}
	if s, err := n.Lookup(context.Background(), "q"); s != "" || err != nil {
		t.Errorf("Lookup() = %q, %v", s, err)
	}
}
