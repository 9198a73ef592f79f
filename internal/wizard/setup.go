package wizard

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aezizhu/CellGen/internal/config"
	"github.com/aezizhu/CellGen/internal/credentials"
	"github.com/aezizhu/CellGen/internal/llm"
	"github.com/aezizhu/CellGen/internal/ui"
)

// clearToken entered at a key prompt removes the stored key.
const clearToken = "-"

var keyPages = map[string]string{
	credentials.Gemini:   "https://aistudio.google.com/app/apikey",
	credentials.ChatGPT:  "https://platform.openai.com/api-keys",
	credentials.DeepSeek: "https://platform.deepseek.com/api_keys",
}

type Wizard struct {
	reader     *bufio.Reader
	writer     io.Writer
	store      credentials.Store
	cfg        config.Config
	configPath string
}

func New(reader io.Reader, writer io.Writer, store credentials.Store, cfg config.Config) *Wizard {
	return &Wizard{
		reader:     bufio.NewReader(reader),
		writer:     writer,
		store:      store,
		cfg:        cfg,
		configPath: config.UserPath(),
	}
}

// SetConfigPath changes where preferences are written.
func (w *Wizard) SetConfigPath(path string) {
	w.configPath = path
}

func (w *Wizard) Run() error {
	fmt.Fprintf(w.writer, "CellGen Setup Wizard\n")
	fmt.Fprintf(w.writer, "====================\n\n")
	fmt.Fprintf(w.writer, "This wizard stores your API keys for the GENERATE formula.\n")
	fmt.Fprintf(w.writer, "Press Enter to keep a key, or type %q to remove it.\n\n", clearToken)

	// Step 1: API keys
	update, changed := w.setupCredentials()

	// Step 2: Preferences
	prefs := w.setupPreferences()

	// Step 3: Save
	return w.save(update, changed, prefs)
}

func (w *Wizard) setupCredentials() (credentials.Update, int) {
	fmt.Fprintf(w.writer, "Step 1: API Keys\n")

	current := credentials.Load(w.store)
	var u credentials.Update
	changed := 0
	fields := []struct {
		provider string
		current  string
		target   **string
	}{
		{credentials.Gemini, current.Gemini, &u.Gemini},
		{credentials.ChatGPT, current.ChatGPT, &u.ChatGPT},
		{credentials.DeepSeek, current.DeepSeek, &u.DeepSeek},
	}
	for _, f := range fields {
		spec, _ := llm.Lookup(f.provider)
		fmt.Fprintf(w.writer, "Get your %s key from: %s\n", spec.Name, keyPages[f.provider])

		label := spec.Name + " API key"
		if f.current != "" {
			label += " (current " + credentials.Mask(f.current) + ")"
		}
		v := w.readString(label, "")
		switch {
		case v == "":
			continue
		case v == clearToken:
			if f.current == "" {
				continue
			}
			v = ""
		case v == f.current:
			continue
		}
		val := v
		*f.target = &val
		changed++
	}

	fmt.Fprintf(w.writer, "✓ %d key(s) changed\n\n", changed)
	return u, changed
}

func (w *Wizard) setupPreferences() config.Config {
	fmt.Fprintf(w.writer, "Step 2: Preferences\n")
	cfg := w.cfg

	specs := llm.Specs()
	def := 1
	for i, s := range specs {
		fmt.Fprintf(w.writer, "%d. %s (%q, %s)\n", i+1, s.Name, s.Code, s.Model)
		if s.ID == strings.ToLower(cfg.DefaultProvider) {
			def = i + 1
		}
	}
	choice := w.readInt("Default provider", def, 1, len(specs))
	cfg.DefaultProvider = specs[choice-1].ID

	cfg.TimeoutSeconds = w.readInt("Request timeout (seconds)", cfg.Timeout(), 5, 300)
	cfg.RetryTransport = w.readBool("Retry once on network errors and 5xx?", cfg.RetryTransport)

	fmt.Fprintf(w.writer, "✓ Preferences configured\n\n")
	return cfg
}

func (w *Wizard) save(u credentials.Update, changed int, prefs config.Config) error {
	fmt.Fprintf(w.writer, "Step 3: Save\n")

	if changed > 0 {
		ok, err := ui.Confirm(w.reader, w.writer, fmt.Sprintf("Save %d key change(s)?", changed))
		if err != nil {
			return fmt.Errorf("confirm: %w", err)
		}
		if ok {
			if err := credentials.Save(w.store, u); err != nil {
				return err
			}
			fmt.Fprintf(w.writer, "✓ Keys saved\n")
		} else {
			fmt.Fprintf(w.writer, "Keys left unchanged\n")
		}
	}

	// Only the wizard's own fields are written; env and flag values stay out
	// of the file.
	file, err := config.ReadFile(w.configPath)
	if err != nil {
		return err
	}
	file.DefaultProvider = prefs.DefaultProvider
	file.TimeoutSeconds = prefs.TimeoutSeconds
	file.RetryTransport = prefs.RetryTransport
	if err := config.Save(w.configPath, file); err != nil {
		return err
	}
	fmt.Fprintf(w.writer, "✓ Preferences saved to %s\n\n", w.configPath)

	fmt.Fprintf(w.writer, "Setup complete! You can now run:\n")
	fmt.Fprintf(w.writer, "  cellgen -provider %s \"Write a haiku about spreadsheets\"\n", prefsCode(prefs))
	fmt.Fprintf(w.writer, "  cellgen -keys\n\n")
	ui.PrintCredentials(w.writer, credentials.Load(w.store))
	return nil
}

func prefsCode(cfg config.Config) string {
	if s, ok := llm.Lookup(cfg.DefaultProvider); ok {
		return s.Code
	}
	return "g"
}

func (w *Wizard) readString(prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(w.writer, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(w.writer, "%s: ", prompt)
	}

	line, err := w.reader.ReadString('\n')
	if err != nil && line == "" {
		return defaultValue
	}
	line = strings.TrimSpace(line)

	if line == "" {
		return defaultValue
	}
	return line
}

func (w *Wizard) readBool(prompt string, defaultValue bool) bool {
	defaultStr := "n"
	if defaultValue {
		defaultStr = "y"
	}

	for {
		fmt.Fprintf(w.writer, "%s [%s]: ", prompt, defaultStr)
		line, err := w.reader.ReadString('\n')
		if err != nil {
			return defaultValue
		}
		line = strings.TrimSpace(strings.ToLower(line))

		if line == "" {
			return defaultValue
		}

		if line == "y" || line == "yes" {
			return true
		}
		if line == "n" || line == "no" {
			return false
		}

		fmt.Fprintf(w.writer, "Please enter y/yes or n/no\n")
	}
}

func (w *Wizard) readInt(prompt string, defaultValue, min, max int) int {
	for {
		fmt.Fprintf(w.writer, "%s [%d]: ", prompt, defaultValue)
		line, err := w.reader.ReadString('\n')
		if err != nil {
			return defaultValue
		}
		line = strings.TrimSpace(line)

		if line == "" {
			return defaultValue
		}

		value, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintf(w.writer, "Please enter a valid number\n")
			continue
		}

		if value < min || value > max {
			fmt.Fprintf(w.writer, "Please enter a number between %d and %d\n", min, max)
			continue
		}

		return value
	}
}
