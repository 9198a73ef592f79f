package llm

import (
	"net/url"
	"strings"

	"github.com/aezizhu/CellGen/internal/config"
	"github.com/aezizhu/CellGen/internal/credentials"
)

// AuthStyle is where the API key travels.
type AuthStyle int

const (
	AuthQueryKey AuthStyle = iota // ?key=<secret>
	AuthBearer                    // Authorization: Bearer <secret>
)

// Shape selects the request builder and response extractor.
type Shape int

const (
	ShapeContents Shape = iota // contents/parts/text -> candidates[0].content.parts[0].text
	ShapeChat                  // model/messages -> choices[0].message.content
)

// Spec describes one provider. Providers differ only in these fields.
type Spec struct {
	ID       string
	Code     string // single-letter formula code
	Name     string
	Endpoint string // may contain {model}
	Model    string
	Auth     AuthStyle
	Shape    Shape
}

var builtin = []Spec{
	{
		ID:       credentials.Gemini,
		Code:     "g",
		Name:     "Gemini",
		Endpoint: "https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent",
		Model:    "gemini-pro",
		Auth:     AuthQueryKey,
		Shape:    ShapeContents,
	},
	{
		ID:       credentials.ChatGPT,
		Code:     "c",
		Name:     "ChatGPT",
		Endpoint: "https://api.openai.com/v1/chat/completions",
		Model:    "gpt-3.5-turbo",
		Auth:     AuthBearer,
		Shape:    ShapeChat,
	},
	{
		ID:       credentials.DeepSeek,
		Code:     "d",
		Name:     "DeepSeek",
		Endpoint: "https://api.deepseek.com/chat/completions",
		Model:    "deepseek-coder",
		Auth:     AuthBearer,
		Shape:    ShapeChat,
	},
}

// Specs returns a copy of the built-in provider table.
func Specs() []Spec {
	out := make([]Spec, len(builtin))
	copy(out, builtin)
	return out
}

// Lookup finds a built-in spec by id, ignoring case and surrounding space.
func Lookup(id string) (Spec, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, s := range builtin {
		if s.ID == id {
			return s, true
		}
	}
	return Spec{}, false
}

// LookupCode finds a built-in spec by its formula code.
func LookupCode(code string) (Spec, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, s := range builtin {
		if s.Code == code {
			return s, true
		}
	}
	return Spec{}, false
}

// withOverrides applies endpoint and model overrides from cfg.
func withOverrides(cfg config.Config) map[string]Spec {
	specs := make(map[string]Spec, len(builtin))
	for _, s := range builtin {
		pc := cfg.Provider(s.ID)
		if pc.Endpoint != "" {
			s.Endpoint = pc.Endpoint
		}
		if pc.Model != "" {
			s.Model = pc.Model
		}
		specs[s.ID] = s
	}
	return specs
}

// URL returns the request URL, with the key appended for query-key providers.
func (s Spec) URL(secret string) (string, error) {
	raw := strings.ReplaceAll(s.Endpoint, "{model}", url.PathEscape(s.Model))
	if s.Auth != AuthQueryKey {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", secret)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
