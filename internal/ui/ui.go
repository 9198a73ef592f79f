package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/aezizhu/CellGen/internal/credentials"
	"github.com/aezizhu/CellGen/internal/llm"
	"github.com/aezizhu/CellGen/internal/metrics"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Bold   = "\033[1m"
)

var colorOn atomic.Bool

func init() {
	colorOn.Store(IsTerminal(os.Stdout))
}

// IsTerminal reports whether w is a terminal that should get ANSI colour.
// NO_COLOR disables colour everywhere.
func IsTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColor turns ANSI colour on or off for all output helpers.
func SetColor(on bool) {
	colorOn.Store(on)
}

func colorize(color, msg string) string {
	if !colorOn.Load() {
		return msg
	}
	return color + msg + Reset
}

// HelpText is the static help menu.
func HelpText() string {
	var b strings.Builder
	b.WriteString("CellGen - LLM text generation for sheet cells\n\n")
	b.WriteString("USAGE\n")
	b.WriteString("  =GENERATE(provider, prompt, [contextCell])\n")
	b.WriteString("  cellgen -provider g [-context text | -sheet file.csv -ref A1] \"prompt\"\n\n")
	b.WriteString("PROVIDERS\n")
	for _, s := range llm.Specs() {
		fmt.Fprintf(&b, "  %-5s %-9s %s\n", fmt.Sprintf("%q", s.Code), s.Name, s.Model)
	}
	b.WriteString("\nEXAMPLES\n")
	b.WriteString("  =GENERATE(\"g\", \"Write a tagline for a coffee shop\")\n")
	b.WriteString("  =GENERATE(\"c\", \"Summarize this text\", A1)\n")
	b.WriteString("  =GENERATE(\"d\", \"Explain this code\", B2)\n")
	b.WriteString("  cellgen -sheet notes.csv -fill C -ref-column A -out notes.csv \"Summarize\"\n\n")
	b.WriteString("API KEYS\n")
	b.WriteString("  Keys are stored per user. Run 'cellgen -setup', or POST /v1/credentials\n")
	b.WriteString("  while 'cellgen -serve' is running. GEMINI_API_KEY, OPENAI_API_KEY and\n")
	b.WriteString("  DEEPSEEK_API_KEY take precedence when set.\n\n")
	b.WriteString("ERRORS\n")
	b.WriteString("  Failures are written into the cell as text starting with \"Error:\".\n")
	return b.String()
}

// PrintHelp writes the help menu with highlighted section titles.
func PrintHelp(w io.Writer) {
	for _, line := range strings.SplitAfter(HelpText(), "\n") {
		title := strings.TrimSpace(line)
		if title != "" && title == strings.ToUpper(title) && !strings.HasPrefix(line, " ") {
			fmt.Fprint(w, colorize(Blue+Bold, title)+"\n")
			continue
		}
		fmt.Fprint(w, line)
	}
}

// PrintCredentials shows which keys are configured, masked.
func PrintCredentials(w io.Writer, c credentials.Credentials) {
	rows := []struct{ name, secret string }{
		{"Gemini", c.Gemini},
		{"ChatGPT", c.ChatGPT},
		{"DeepSeek", c.DeepSeek},
	}
	fmt.Fprintln(w, colorize(Bold, "API keys:"))
	for _, r := range rows {
		status := colorize(Yellow, "not set")
		if r.secret != "" {
			status = colorize(Green, credentials.Mask(r.secret))
		}
		fmt.Fprintf(w, "  %-9s %s\n", r.name, status)
	}
}

// PrintResult writes a formula result. Error values are highlighted.
func PrintResult(w io.Writer, value string) {
	if strings.HasPrefix(value, "Error:") {
		fmt.Fprintln(w, colorize(Red, value))
		return
	}
	fmt.Fprintln(w, value)
}

// PrintFillSummary reports a column fill.
func PrintFillSummary(w io.Writer, column string, rows, failed int) {
	if failed > 0 {
		fmt.Fprintf(w, "%s %d of %d cell(s) in column %s hold an error.\n", colorize(Yellow+Bold, "Note:"), failed, rows, column)
		return
	}
	fmt.Fprintf(w, "%s Filled %d cell(s) in column %s.\n", colorize(Green+Bold, "✓"), rows, column)
}

// PrintStats writes the usage summary.
func PrintStats(w io.Writer, s metrics.Summary) {
	fmt.Fprintln(w, colorize(Bold, "Usage:"))
	if s.TotalRequests == 0 {
		fmt.Fprintln(w, "  No requests recorded yet.")
		return
	}
	fmt.Fprintf(w, "  %-13s %d\n", "Requests", s.TotalRequests)
	fmt.Fprintf(w, "  %-13s %.1f%%\n", "Success rate", s.SuccessRate)
	fmt.Fprintf(w, "  %-13s %s\n", "Top provider", s.TopProvider)
	if s.TopErrorKind != "" {
		fmt.Fprintf(w, "  %-13s %s\n", "Top error", colorize(Yellow, s.TopErrorKind))
	}
	fmt.Fprintf(w, "  %-13s %s\n", "Avg duration", s.AverageDuration.Round(time.Millisecond))
}

func Confirm(r *bufio.Reader, w io.Writer, msg string) (bool, error) {
	fmt.Fprintf(w, "%s %s ", colorize(Bold, msg), colorize(Blue, "[y/N]:"))
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return false, err
	}
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes", nil
}
