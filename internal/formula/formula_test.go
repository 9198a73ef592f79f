package formula

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aezizhu/CellGen/internal/credentials"
	"github.com/aezizhu/CellGen/internal/llm"
	"github.com/aezizhu/CellGen/internal/logging"
	"github.com/aezizhu/CellGen/internal/testutil"
)

type fakeDispatcher struct {
	calls []llm.Request
	text  string
	err   error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req llm.Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.text, f.err
}

func cells(m map[string]string) Resolver {
	return ResolverFunc(func(ref string) (string, error) {
		v, ok := m[ref]
		if !ok {
			return "", errors.New("bad ref")
		}
		return v, nil
	})
}

func TestProviderFor(t *testing.T) {
	tests := []struct {
		code string
		want string
		ok   bool
	}{
		{"g", "gemini", true},
		{"G", "gemini", true},
		{"c", "chatgpt", true},
		{"d", "deepseek", true},
		{"D", "deepseek", true},
		{"deepseek", "deepseek", true},
		{"ChatGPT", "chatgpt", true},
		{"x", "", false},
		{"", "", false},
		{"gpt", "", false},
	}
	for _, tt := range tests {
		got, ok := ProviderFor(tt.code)
		testutil.AssertEqual(t, ok, tt.ok)
		testutil.AssertEqual(t, got, tt.want)
	}
}

func TestGenerate_Success(t *testing.T) {
	d := &fakeDispatcher{text: "  reply kept as-is\n"}
	e := New(d, cells(map[string]string{"A1": "Hello"}), zerolog.Nop())

	got := e.Generate(context.Background(), "c", "Summarize", "A1")
	testutil.AssertEqual(t, got, "  reply kept as-is\n")
	testutil.AssertEqual(t, len(d.calls), 1)
	testutil.AssertEqual(t, d.calls[0], llm.Request{Provider: "chatgpt", Prompt: "Summarize", Context: "Hello"})
}

func TestGenerate_NoRef(t *testing.T) {
	d := &fakeDispatcher{text: "ok"}
	e := New(d, nil, zerolog.Nop())

	testutil.AssertEqual(t, e.Generate(context.Background(), "g", "Hi", ""), "ok")
	testutil.AssertEqual(t, d.calls[0].Context, "")
}

func TestGenerate_EmptyCellGivesNoContext(t *testing.T) {
	d := &fakeDispatcher{text: "ok"}
	e := New(d, cells(map[string]string{"B2": ""}), zerolog.Nop())

	e.Generate(context.Background(), "d", "Hi", "B2")
	testutil.AssertEqual(t, d.calls[0].Context, "")
}

func TestGenerate_InvalidCode(t *testing.T) {
	d := &fakeDispatcher{}
	e := New(d, nil, zerolog.Nop())

	got := e.Generate(context.Background(), "x", "Hi", "")
	testutil.AssertEqual(t, got, `Error: Invalid provider "x". Use "g" for Gemini, "c" for ChatGPT, or "d" for DeepSeek.`)
	testutil.AssertEqual(t, len(d.calls), 0)
}

func TestGenerate_EmptyPromptSkipsResolverAndDispatch(t *testing.T) {
	d := &fakeDispatcher{}
	resolved := false
	e := New(d, ResolverFunc(func(string) (string, error) {
		resolved = true
		return "", nil
	}), zerolog.Nop())

	got := e.Generate(context.Background(), "g", "  ", "A1")
	testutil.AssertEqual(t, got, "Error: Prompt cannot be empty.")
	testutil.AssertFalse(t, resolved)
	testutil.AssertEqual(t, len(d.calls), 0)
}

func TestEvaluate_ContextResolutionError(t *testing.T) {
	d := &fakeDispatcher{}
	e := New(d, cells(map[string]string{}), zerolog.Nop())

	_, err := e.Evaluate(context.Background(), "g", "Hi", "ZZ")
	if !errors.Is(err, llm.ErrContextResolution) {
		t.Fatalf("expected ContextResolutionError, got %v", err)
	}
	testutil.AssertEqual(t, len(d.calls), 0)
	testutil.AssertTrue(t, strings.HasPrefix(Format(err), "Error: "))
	testutil.AssertContains(t, Format(err), "ZZ")
}

func TestEvaluate_RefWithoutSheet(t *testing.T) {
	e := New(&fakeDispatcher{}, nil, zerolog.Nop())

	_, err := e.Evaluate(context.Background(), "g", "Hi", "A1")
	testutil.AssertEqual(t, llm.KindOf(err), llm.KindContextResolution)
}

func TestGenerate_DispatchErrorsAreCellSafe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"missing key",
			llm.NewError(llm.KindMissingCredential, "gemini", "Gemini API key is not set. Run 'cellgen -setup' to add it.", nil),
			"Error: Gemini API key is not set. Run 'cellgen -setup' to add it.",
		},
		{
			"transport",
			&llm.Error{Kind: llm.KindTransport, StatusCode: 500, Message: "ChatGPT request failed (HTTP 500).", Body: "stack trace"},
			"Error: ChatGPT request failed (HTTP 500).",
		},
		{
			"malformed",
			&llm.Error{Kind: llm.KindMalformedResponse, Message: "DeepSeek returned an unexpected response.", Body: `{"secret":"payload"}`},
			"Error: DeepSeek returned an unexpected response.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(&fakeDispatcher{err: tt.err}, nil, zerolog.Nop())
			got := e.Generate(context.Background(), "g", "Hi", "")
			testutil.AssertEqual(t, got, tt.want)
		})
	}
}

func TestGenerate_LogsDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	e := New(&fakeDispatcher{err: llm.NewError(llm.KindTransport, "chatgpt", "ChatGPT request failed: could not reach the API.", errors.New("dial tcp: refused"))}, nil, log)

	e.Generate(context.Background(), "c", "Hi", "")
	testutil.AssertContains(t, buf.String(), `"event":"`+logging.EventFormula+`"`)
	testutil.AssertContains(t, buf.String(), "TransportError")
	testutil.AssertContains(t, buf.String(), "dial tcp: refused")
}

func TestFormat(t *testing.T) {
	testutil.AssertEqual(t, Format(nil), "")
	testutil.AssertEqual(t, Format(errors.New("boom")), "Error: boom")
	testutil.AssertEqual(t, Format(&llm.Error{Kind: llm.KindEmptyPrompt}), "Error: EmptyPrompt: EmptyPrompt")
}

func TestWithResolver(t *testing.T) {
	d := &fakeDispatcher{text: "ok"}
	base := New(d, nil, zerolog.Nop())
	bound := base.WithResolver(cells(map[string]string{"C3": "42"}))

	bound.Generate(context.Background(), "g", "Double it", "C3")
	testutil.AssertEqual(t, d.calls[0].Context, "42")
	testutil.AssertEqual(t, base.resolver, Resolver(nil))
}

// End to end through a real dispatcher and a fake provider.
func TestGenerate_WithDispatcher(t *testing.T) {
	var body string
	srv := testutil.MockHTTPServerFunc(t, func(w http.ResponseWriter, r *http.Request) {
		body = testutil.ReadBody(t, r.Body)
		w.Write([]byte(testutil.GeminiReply("Bonjour")))
	})
	defer srv.Close()

	cfg := testutil.DefaultTestConfig()
	cfg.Providers = testutil.ProvidersAt(srv.URL)
	keys := credentials.NewMemoryStore()
	_ = keys.Set(credentials.Gemini, "k")

	e := New(llm.NewDispatcher(cfg, keys), cells(map[string]string{"A1": "Hello"}), zerolog.Nop())
	got := e.Generate(context.Background(), "G", "Translate to French", "A1")
	testutil.AssertEqual(t, got, "Bonjour")
	testutil.AssertContains(t, body, `Context: Hello\n\nPrompt: Translate to French`)

	_ = keys.Set(credentials.Gemini, "")
	got = e.Generate(context.Background(), "g", "Translate", "")
	testutil.AssertContains(t, got, "Error: Gemini API key is not set")
}
