package wizard

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aezizhu/CellGen/internal/config"
	"github.com/aezizhu/CellGen/internal/credentials"
	"github.com/aezizhu/CellGen/internal/testutil"
	"github.com/aezizhu/CellGen/internal/ui"
)

func TestWizard_readString(t *testing.T) {
	w := New(strings.NewReader("hello world\n"), io.Discard, credentials.NewMemoryStore(), config.Config{})
	if got := w.readString("Prompt", "default"); got != "hello world" {
		t.Errorf("expected 'hello world', got '%s'", got)
	}

	w = New(strings.NewReader("\n"), io.Discard, credentials.NewMemoryStore(), config.Config{})
	if got := w.readString("Prompt", "default"); got != "default" {
		t.Errorf("expected 'default', got '%s'", got)
	}

	// Last line without a newline still counts.
	w = New(strings.NewReader("tail"), io.Discard, credentials.NewMemoryStore(), config.Config{})
	if got := w.readString("Prompt", ""); got != "tail" {
		t.Errorf("expected 'tail', got '%s'", got)
	}
}

func TestWizard_readBool(t *testing.T) {
	testCases := []struct {
		input    string
		expected bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"N\n", false},
		{"maybe\nno\n", false},
		{"\n", true},
		{"", true},
	}

	for _, tc := range testCases {
		w := New(strings.NewReader(tc.input), io.Discard, credentials.NewMemoryStore(), config.Config{})
		if w.readBool("Prompt", true) != tc.expected {
			t.Errorf("for input '%s', expected %v", tc.input, tc.expected)
		}
	}
}

func TestWizard_readInt(t *testing.T) {
	w := New(strings.NewReader("abc\n500\n25\n"), io.Discard, credentials.NewMemoryStore(), config.Config{})
	if got := w.readInt("Prompt", 10, 1, 100); got != 25 {
		t.Errorf("expected 25 after invalid input, got %d", got)
	}
}

func TestWizard_Run(t *testing.T) {
	ui.SetColor(false)
	store := credentials.NewMemoryStore()
	_ = store.Set(credentials.ChatGPT, "old-chat-key")
	_ = store.Set(credentials.DeepSeek, "old-deep-key")

	input := "gem-key-1234\n" + // Gemini: new key
		"\n" + // ChatGPT: keep
		"-\n" + // DeepSeek: clear
		"3\n" + // Default provider: DeepSeek
		"45\n" + // Timeout
		"y\n" + // Retry
		"y\n" // Confirm save

	var out bytes.Buffer
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	w := New(strings.NewReader(input), &out, store, config.Config{DefaultProvider: "gemini", TimeoutSeconds: 30})
	w.SetConfigPath(cfgPath)

	testutil.AssertNoError(t, w.Run())

	testutil.AssertEqual(t, credentials.Load(store), credentials.Credentials{
		Gemini:  "gem-key-1234",
		ChatGPT: "old-chat-key",
	})

	t.Setenv("CELLGEN_ENV_FILE", filepath.Join(t.TempDir(), "none.env"))
	t.Setenv("CELLGEN_PROVIDER", "")
	t.Setenv("CELLGEN_TIMEOUT", "")
	t.Setenv("CELLGEN_RETRY_TRANSPORT", "")
	cfg, err := config.Load(cfgPath)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cfg.DefaultProvider, "deepseek")
	testutil.AssertEqual(t, cfg.TimeoutSeconds, 45)
	testutil.AssertTrue(t, cfg.RetryTransport)

	output := out.String()
	testutil.AssertContains(t, output, "CellGen Setup Wizard")
	testutil.AssertContains(t, output, "ChatGPT API key (current ****-key)")
	testutil.AssertContains(t, output, "2 key(s) changed")
	testutil.AssertContains(t, output, "Preferences saved to "+cfgPath)
	testutil.AssertContains(t, output, "cellgen -provider d")
	testutil.AssertNotContains(t, output, "old-chat-key")
}

func TestWizard_Run_Declined(t *testing.T) {
	ui.SetColor(false)
	store := credentials.NewMemoryStore()

	input := "new-gemini\n\n\n\n\n\nn\n"
	var out bytes.Buffer
	w := New(strings.NewReader(input), &out, store, config.Config{})
	w.SetConfigPath(filepath.Join(t.TempDir(), "config.yaml"))

	testutil.AssertNoError(t, w.Run())
	testutil.AssertEqual(t, store.Get(credentials.Gemini), "")
	testutil.AssertContains(t, out.String(), "Keys left unchanged")
}

func TestWizard_Run_NoChangesSkipsConfirm(t *testing.T) {
	store := credentials.NewMemoryStore()
	_ = store.Set(credentials.Gemini, "same")

	// Same key typed again, clear on an empty key: nothing changes.
	input := "same\n-\n\n\n\n\n"
	var out bytes.Buffer
	w := New(strings.NewReader(input), &out, store, config.Config{})
	w.SetConfigPath(filepath.Join(t.TempDir(), "config.json"))

	testutil.AssertNoError(t, w.Run())
	testutil.AssertContains(t, out.String(), "0 key(s) changed")
	testutil.AssertNotContains(t, out.String(), "[y/N]")
	testutil.AssertEqual(t, store.Get(credentials.Gemini), "same")
}

func TestWizard_Run_FileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials.json")
	store := credentials.NewFileStore(path)

	input := "\nchat\n\n\n\n\ny\n"
	w := New(strings.NewReader(input), io.Discard, store, config.Config{})
	w.SetConfigPath(filepath.Join(t.TempDir(), "config.yaml"))
	testutil.AssertNoError(t, w.Run())

	reopened, err := credentials.OpenFileStore(path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, reopened.Get(credentials.ChatGPT), "chat")
}

func TestWizard_Run_WritesOnlyOwnFields(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	testutil.AssertNoError(t, os.WriteFile(cfgPath, []byte("proxy: http://proxy:3128\nfill_concurrency: 8\n"), 0o600))

	// Merged config as main builds it: env and flag values on top of the file.
	merged := config.Config{
		DefaultProvider: "gemini",
		TimeoutSeconds:  30,
		Proxy:           "http://proxy:3128",
		FillConcurrency: 8,
		ServerToken:     "token-from-env",
		LogFile:         "/tmp/flag.log",
	}
	input := "\n\n\n2\n60\nn\n"
	w := New(strings.NewReader(input), io.Discard, credentials.NewMemoryStore(), merged)
	w.SetConfigPath(cfgPath)
	testutil.AssertNoError(t, w.Run())

	saved, err := config.ReadFile(cfgPath)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, saved.DefaultProvider, "chatgpt")
	testutil.AssertEqual(t, saved.TimeoutSeconds, 60)
	testutil.AssertEqual(t, saved.Proxy, "http://proxy:3128")
	testutil.AssertEqual(t, saved.FillConcurrency, 8)

	raw, err := os.ReadFile(cfgPath)
	testutil.AssertNoError(t, err)
	testutil.AssertNotContains(t, string(raw), "token-from-env")
	testutil.AssertNotContains(t, string(raw), "/tmp/flag.log")
}
