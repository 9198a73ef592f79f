// Package llm dispatches single-shot text generation calls to the supported
// providers.
//
// Providers are rows in a Spec table rather than separate clients:
//   - gemini   - generateContent API, key in the query string (code "g")
//   - chatgpt  - OpenAI chat completions, Bearer header (code "c")
//   - deepseek - DeepSeek chat completions, Bearer header (code "d")
//
// A row only decides the endpoint, model, key placement and the request and
// response shape. Endpoint and model can be overridden per provider in config.
//
// Error handling:
//   - Every failed Dispatch returns an *Error with a Kind
//   - Error.Message is safe for end users; Body and Err are for logs
//   - errors.Is(err, llm.ErrMissingCredential) matches by Kind
//
// Example usage:
//
//	d := llm.NewDispatcher(cfg, store, llm.WithLogger(logger))
//	text, err := d.Dispatch(ctx, llm.Request{Provider: "gemini", Prompt: "Summarize", Context: cell})
//	if errors.Is(err, llm.ErrMissingCredential) {
//	    // ask the user to configure a key
//	}
package llm
