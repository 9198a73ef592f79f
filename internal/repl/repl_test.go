package repl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aezizhu/CellGen/internal/formula"
	"github.com/aezizhu/CellGen/internal/llm"
)

// mockDispatcher echoes the request it was given.
type mockDispatcher struct {
	calls []llm.Request
}

func (m *mockDispatcher) Dispatch(_ context.Context, req llm.Request) (string, error) {
	m.calls = append(m.calls, req)
	return req.Provider + ": " + llm.ComposePrompt(req.Prompt, req.Context), nil
}

func cells(values map[string]string) formula.Resolver {
	return formula.ResolverFunc(func(ref string) (string, error) { return values[ref], nil })
}

func newREPL(input string, d *mockDispatcher) (*REPL, *bytes.Buffer) {
	var output bytes.Buffer
	eval := formula.New(d, cells(map[string]string{"A1": "Hello"}), zerolog.Nop())
	return New(eval, "g", strings.NewReader(input), &output), &output
}

func TestREPL_SimpleCommands(t *testing.T) {
	r, output := newREPL("status\nset provider=d\nset context=A1\nstatus\nhelp\nhistory\nexit\n", &mockDispatcher{})
	r.addToHistory("a previous prompt")
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	outStr := output.String()
	if !strings.Contains(outStr, "Provider: g") || !strings.Contains(outStr, "Model: gemini-pro") {
		t.Error("expected to see initial provider status")
	}
	if !strings.Contains(outStr, "Set provider to d") {
		t.Error("expected to see confirmation of setting provider")
	}
	if !strings.Contains(outStr, "Model: deepseek-coder") || !strings.Contains(outStr, "Context cell: A1") {
		t.Errorf("expected updated status. Full output:\n%s", outStr)
	}
	if !strings.Contains(outStr, "Available commands:") {
		t.Error("expected to see help output")
	}
	if !strings.Contains(outStr, "1  a previous prompt") {
		t.Error("expected to see history output")
	}
}

func TestREPL_BarePrompt(t *testing.T) {
	d := &mockDispatcher{}
	r, output := newREPL("set context=A1\nTranslate\n", d)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(d.calls) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(d.calls))
	}
	want := llm.Request{Provider: "gemini", Prompt: "Translate", Context: "Hello"}
	if d.calls[0] != want {
		t.Errorf("got %+v, want %+v", d.calls[0], want)
	}
	if !strings.Contains(output.String(), "gemini: Context: Hello\n\nPrompt: Translate") {
		t.Errorf("expected reply in output, got:\n%s", output.String())
	}
}

func TestREPL_Formula(t *testing.T) {
	d := &mockDispatcher{}
	r, output := newREPL("=GENERATE(\"c\", \"Summarize\", A1)\n!1\n", d)
	r.Run(context.Background())

	if len(d.calls) != 2 {
		t.Fatalf("expected formula and rerun to dispatch, got %d calls", len(d.calls))
	}
	if d.calls[1].Provider != "chatgpt" || d.calls[1].Context != "Hello" {
		t.Errorf("unexpected rerun request %+v", d.calls[1])
	}
	if !strings.Contains(output.String(), "Re-running: =GENERATE") {
		t.Error("expected rerun notice")
	}
}

func TestREPL_Errors(t *testing.T) {
	d := &mockDispatcher{}
	r, output := newREPL("=GENERATE(\"x\", \"hi\")\n=GENERATE(\"g\")\nset provider=z\nset nope=1\n!\n", d)
	r.Run(context.Background())

	outStr := output.String()
	if len(d.calls) != 0 {
		t.Errorf("expected no dispatch, got %d", len(d.calls))
	}
	for _, want := range []string{
		`Error: Invalid provider "x".`,
		"Error: GENERATE takes 2 or 3 arguments, got 1",
		`Error: unknown provider "z"`,
		"Error: unknown setting: nope",
	} {
		if !strings.Contains(outStr, want) {
			t.Errorf("expected %q in output:\n%s", want, outStr)
		}
	}
}

func TestREPL_EmptyHistory(t *testing.T) {
	r, output := newREPL("!\nhistory\nclear\n", &mockDispatcher{})
	r.Run(context.Background())

	outStr := output.String()
	if !strings.Contains(outStr, "Error: no history") || !strings.Contains(outStr, "No history") {
		t.Errorf("unexpected output:\n%s", outStr)
	}
	if !strings.Contains(outStr, "History cleared") {
		t.Error("expected clear confirmation")
	}
}
