package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/aezizhu/CellGen/internal/config"
	"github.com/aezizhu/CellGen/internal/credentials"
	"github.com/aezizhu/CellGen/internal/formula"
	"github.com/aezizhu/CellGen/internal/llm"
	"github.com/aezizhu/CellGen/internal/logging"
	"github.com/aezizhu/CellGen/internal/metrics"
	"github.com/aezizhu/CellGen/internal/repl"
	"github.com/aezizhu/CellGen/internal/server"
	"github.com/aezizhu/CellGen/internal/sheet"
	"github.com/aezizhu/CellGen/internal/ui"
	"github.com/aezizhu/CellGen/internal/wizard"
)

const version = "0.3.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cellgen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath  = fs.String("config", "", "path to YAML or JSON config file")
		provider    = fs.String("provider", "", "provider code or name (g|c|d, gemini|chatgpt|deepseek)")
		cellContext = fs.String("context", "", "context text prepended to the prompt")
		sheetPath   = fs.String("sheet", "", "CSV file acting as the sheet")
		ref         = fs.String("ref", "", "context cell reference in -sheet, e.g. A1")
		fillColumn  = fs.String("fill", "", "fill this column of -sheet with one result per row")
		refColumn   = fs.String("ref-column", "", "with -fill: column holding each row's context")
		header      = fs.Bool("header", false, "with -fill: keep the first row as a header")
		outPath     = fs.String("out", "", "with -fill: write the sheet here instead of stdout")
		timeout     = fs.Int("timeout", 0, "request timeout in seconds")
		retry       = fs.Bool("retry", false, "retry once on network errors, 429 and 5xx")
		logFile     = fs.String("log-file", "", "log file path")
		logLevel    = fs.String("log-level", "", "log level (debug, info, warn, error)")
		setup       = fs.Bool("setup", false, "run setup wizard to store API keys")
		keys        = fs.Bool("keys", false, "show configured API keys (masked)")
		menu        = fs.Bool("menu", false, "show help menu")
		serve       = fs.Bool("serve", false, "run the local HTTP panel")
		stats       = fs.Bool("stats", false, "show usage statistics")
		interactive = fs.Bool("interactive", false, "start interactive formula mode")
		jsonOutput  = fs.Bool("json", false, "emit the result as JSON")
		showVersion = fs.Bool("version", false, "print version and exit")
	)

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *showVersion {
		fmt.Fprintf(stdout, "CellGen version %s\n", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !*setup {
			fmt.Fprintf(stderr, "Configuration error: %v\n", err)
			fmt.Fprintf(stderr, "Run with -setup to configure CellGen\n")
			return 1
		}
		cfg, _ = config.Load("")
	}

	// Track which flags were explicitly set
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	if setFlags["provider"] {
		cfg.DefaultProvider = *provider
	}
	if setFlags["timeout"] {
		cfg.TimeoutSeconds = *timeout
	}
	if setFlags["retry"] {
		cfg.RetryTransport = *retry
	}
	if setFlags["log-file"] {
		cfg.LogFile = *logFile
	}
	if setFlags["log-level"] {
		cfg.LogLevel = *logLevel
	}

	ui.SetColor(ui.IsTerminal(stdout))

	if *menu {
		ui.PrintHelp(stdout)
		return 0
	}

	store, err := credentials.OpenFileStore(cfg.CredentialsFile)
	if err != nil {
		fmt.Fprintf(stderr, "Credential store error: %v\n", err)
		return 1
	}
	keyStore := credentials.NewOverlay(store, cfg.APIKeys)

	if *setup {
		w := wizard.New(stdin, stdout, store, cfg)
		if *configPath != "" {
			w.SetConfigPath(*configPath)
		}
		if err := w.Run(); err != nil {
			fmt.Fprintf(stderr, "Setup failed: %v\n", err)
			return 1
		}
		return 0
	}

	if *keys {
		ui.PrintCredentials(stdout, credentials.Load(keyStore))
		return 0
	}

	collector, err := metrics.NewCollector(cfg.MetricsFile)
	if err != nil {
		// Keep the broken file as it is and count this run in memory only.
		fmt.Fprintf(stderr, "Metrics error: %v (usage is not recorded this run)\n", err)
		if collector, err = metrics.NewCollector(""); err != nil {
			fmt.Fprintf(stderr, "Metrics error: %v\n", err)
			return 1
		}
	}
	defer collector.Stop()

	if *stats {
		ui.PrintStats(stdout, collector.GetSummary())
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		logger := logging.Console(stderr, cfg.LogLevel)
		d := llm.NewDispatcher(cfg, keyStore, llm.WithLogger(logger), llm.WithObserver(collector.Observe))
		srv := server.New(cfg, d, keyStore, logger)
		srv.SetMetrics(collector)
		if err := srv.Start(ctx); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	}

	logger := logging.New(cfg.LogFile, cfg.LogLevel)
	d := llm.NewDispatcher(cfg, keyStore, llm.WithLogger(logger), llm.WithObserver(collector.Observe))
	eval := formula.New(d, nil, logger)
	code := cfg.DefaultProvider

	if *sheetPath != "" && *cellContext != "" {
		fmt.Fprintln(stderr, "-context cannot be combined with -sheet; use -ref or -ref-column")
		return 1
	}

	var grid *sheet.Grid
	if *sheetPath != "" {
		if grid, err = readSheet(*sheetPath); err != nil {
			fmt.Fprintf(stderr, "Sheet error: %v\n", err)
			return 1
		}
		eval = eval.WithResolver(grid)
	}

	if *interactive {
		if err := repl.New(eval, code, stdin, stdout).Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		fmt.Fprintln(stderr, "Usage: cellgen [flags] <prompt>   (cellgen -menu for help)")
		return 1
	}

	if grid != nil {
		if *fillColumn != "" {
			return fillSheet(ctx, eval, grid, fillOptions{
				code:      code,
				prompt:    prompt,
				column:    *fillColumn,
				refColumn: *refColumn,
				header:    *header,
				outPath:   *outPath,
				limit:     cfg.FillConcurrency,
				log:       logger,
			}, stdout, stderr)
		}
		return printResult(ctx, stdout, eval, code, prompt, *ref, *jsonOutput)
	}

	if *ref != "" || *fillColumn != "" {
		fmt.Fprintln(stderr, "-ref and -fill need -sheet")
		return 1
	}

	if *cellContext != "" {
		eval = eval.WithResolver(formula.ResolverFunc(func(string) (string, error) {
			return *cellContext, nil
		}))
		return printResult(ctx, stdout, eval, code, prompt, "context", *jsonOutput)
	}
	return printResult(ctx, stdout, eval, code, prompt, "", *jsonOutput)
}

type jsonResult struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func printResult(ctx context.Context, w io.Writer, eval *formula.Evaluator, code, prompt, ref string, asJSON bool) int {
	text, err := eval.Evaluate(ctx, code, prompt, ref)
	if asJSON {
		res := jsonResult{Text: text}
		if err != nil {
			res = jsonResult{Error: formula.Format(err), Kind: llm.KindOf(err).String()}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(res)
	} else if err != nil {
		ui.PrintResult(w, formula.Format(err))
	} else {
		ui.PrintResult(w, text)
	}
	if err != nil {
		return 1
	}
	return 0
}

func readSheet(path string) (*sheet.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sheet.Read(f)
}

type fillOptions struct {
	code      string
	prompt    string
	column    string
	refColumn string
	header    bool
	outPath   string
	limit     int
	log       zerolog.Logger
}

func fillSheet(ctx context.Context, eval *formula.Evaluator, grid *sheet.Grid, opts fillOptions, stdout, stderr io.Writer) int {
	col, err := sheet.ParseColumn(opts.column)
	if err != nil {
		fmt.Fprintf(stderr, "Sheet error: %v\n", err)
		return 1
	}
	refCol := -1
	if opts.refColumn != "" {
		if refCol, err = sheet.ParseColumn(opts.refColumn); err != nil {
			fmt.Fprintf(stderr, "Sheet error: %v\n", err)
			return 1
		}
	}

	var failed int64
	err = sheet.Fill(ctx, grid, col, func(ctx context.Context, row int) (string, error) {
		if opts.header && row == 0 {
			return grid.Cell(col, 0), nil
		}
		ref := ""
		if refCol >= 0 {
			ref = sheet.Ref(refCol, row)
		}
		v := eval.Generate(ctx, opts.code, opts.prompt, ref)
		if strings.HasPrefix(v, "Error:") {
			atomic.AddInt64(&failed, 1)
		}
		return v, nil
	}, opts.limit)
	if err != nil {
		fmt.Fprintf(stderr, "Fill interrupted: %v\n", err)
		return 1
	}

	rows := grid.Rows()
	if opts.header && rows > 0 {
		rows--
	}
	opts.log.Info().Str("event", logging.EventFill).Str("column", opts.column).
		Int("rows", rows).Int64("failed", failed).Msg("column filled")

	out := stdout
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			fmt.Fprintf(stderr, "Sheet error: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}
	if err := grid.Write(out); err != nil {
		fmt.Fprintf(stderr, "Sheet error: %v\n", err)
		return 1
	}
	ui.PrintFillSummary(stderr, strings.ToUpper(opts.column), rows, int(failed))
	return 0
}
