package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aezizhu/CellGen/internal/formula"
	"github.com/aezizhu/CellGen/internal/llm"
	"github.com/aezizhu/CellGen/internal/ui"
)

const maxHistory = 100

// REPL evaluates GENERATE formulas and bare prompts line by line.
type REPL struct {
	eval     *formula.Evaluator
	provider string
	ref      string
	history  []string
	reader   *bufio.Reader
	writer   io.Writer
}

// New returns a REPL. provider is the code or id used for bare prompts.
func New(eval *formula.Evaluator, provider string, reader io.Reader, writer io.Writer) *REPL {
	return &REPL{
		eval:     eval,
		provider: provider,
		reader:   bufio.NewReader(reader),
		writer:   writer,
	}
}

func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintf(r.writer, "CellGen interactive mode (provider: %s)\n", r.provider)
	fmt.Fprintf(r.writer, "Type a prompt or =GENERATE(...), 'help' for commands, 'exit' to quit\n\n")

	for {
		fmt.Fprint(r.writer, "cellgen> ")

		line, err := r.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := r.handle(ctx, line); err != nil {
			ui.PrintResult(r.writer, "Error: "+err.Error())
		}
		fmt.Fprintln(r.writer)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (r *REPL) handle(ctx context.Context, line string) error {
	switch {
	case line == "help":
		r.showHelp()
	case line == "history":
		r.showHistory()
	case line == "clear":
		r.history = r.history[:0]
		fmt.Fprintln(r.writer, "History cleared")
	case line == "status":
		r.showStatus()
	case strings.HasPrefix(line, "set "):
		return r.handleSet(line[4:])
	case strings.HasPrefix(line, "!"):
		return r.rerun(ctx, line[1:])
	default:
		return r.evaluate(ctx, line)
	}
	return nil
}

func (r *REPL) evaluate(ctx context.Context, line string) error {
	call := formula.Call{Code: r.provider, Prompt: line, Ref: r.ref}
	if formula.IsFormula(line) {
		var err error
		if call, err = formula.Parse(line); err != nil {
			return err
		}
	}
	r.addToHistory(line)
	ui.PrintResult(r.writer, r.eval.Generate(ctx, call.Code, call.Prompt, call.Ref))
	return nil
}

func (r *REPL) addToHistory(line string) {
	r.history = append(r.history, line)
	if len(r.history) > maxHistory {
		r.history = r.history[1:]
	}
}

func (r *REPL) showHelp() {
	fmt.Fprintln(r.writer, "Available commands:")
	fmt.Fprintln(r.writer, "  help                    - Show this help")
	fmt.Fprintln(r.writer, "  history                 - Show prompt history")
	fmt.Fprintln(r.writer, "  clear                   - Clear history")
	fmt.Fprintln(r.writer, "  status                  - Show provider and context cell")
	fmt.Fprintln(r.writer, "  set provider=<g|c|d>    - Provider for bare prompts")
	fmt.Fprintln(r.writer, "  set context=<ref>       - Context cell for bare prompts (empty to clear)")
	fmt.Fprintln(r.writer, "  !<number>               - Re-run an entry from history")
	fmt.Fprintln(r.writer, "  exit, quit              - Exit interactive mode")
	fmt.Fprintln(r.writer, "  =GENERATE(\"g\", \"...\", A1)")
	fmt.Fprintln(r.writer, "  <prompt>                - Generate with the current provider")
}

func (r *REPL) showHistory() {
	if len(r.history) == 0 {
		fmt.Fprintln(r.writer, "No history")
		return
	}
	for i, line := range r.history {
		fmt.Fprintf(r.writer, "%3d  %s\n", i+1, line)
	}
}

func (r *REPL) showStatus() {
	fmt.Fprintf(r.writer, "Provider: %s\n", r.provider)
	if id, ok := formula.ProviderFor(r.provider); ok {
		if s, ok := llm.Lookup(id); ok {
			fmt.Fprintf(r.writer, "Model: %s\n", s.Model)
		}
	}
	ref := r.ref
	if ref == "" {
		ref = "(none)"
	}
	fmt.Fprintf(r.writer, "Context cell: %s\n", ref)
}

func (r *REPL) handleSet(setting string) error {
	parts := strings.SplitN(setting, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("usage: set key=value")
	}
	key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	switch key {
	case "provider":
		if _, ok := formula.ProviderFor(value); !ok {
			return fmt.Errorf("unknown provider %q", value)
		}
		r.provider = value
		fmt.Fprintf(r.writer, "Set provider to %s\n", value)
	case "context":
		r.ref = value
		fmt.Fprintf(r.writer, "Set context cell to %q\n", value)
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
	return nil
}

func (r *REPL) rerun(ctx context.Context, indexStr string) error {
	if len(r.history) == 0 {
		return fmt.Errorf("no history")
	}
	index := len(r.history)
	if indexStr != "" {
		if _, err := fmt.Sscanf(indexStr, "%d", &index); err != nil {
			return fmt.Errorf("invalid history index")
		}
	}
	if index < 1 || index > len(r.history) {
		return fmt.Errorf("history index out of range")
	}

	line := r.history[index-1]
	fmt.Fprintf(r.writer, "Re-running: %s\n", line)
	return r.evaluate(ctx, line)
}
