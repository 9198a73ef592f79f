package credentials

import "fmt"

// Credentials is the configuration-panel view of all three secrets.
type Credentials struct {
	Gemini   string `json:"gemini"`
	ChatGPT  string `json:"chatgpt"`
	DeepSeek string `json:"deepseek"`
}

// Update carries a partial save. Nil fields keep the stored value; a pointer
// to "" clears it.
type Update struct {
	Gemini   *string `json:"gemini,omitempty"`
	ChatGPT  *string `json:"chatgpt,omitempty"`
	DeepSeek *string `json:"deepseek,omitempty"`
}

// Load returns every secret, "" for the unset ones.
func Load(s Store) Credentials {
	return Credentials{
		Gemini:   s.Get(Gemini),
		ChatGPT:  s.Get(ChatGPT),
		DeepSeek: s.Get(DeepSeek),
	}
}

// Save applies u to s field by field.
func Save(s Store, u Update) error {
	fields := []struct {
		provider string
		value    *string
	}{
		{Gemini, u.Gemini},
		{ChatGPT, u.ChatGPT},
		{DeepSeek, u.DeepSeek},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if err := s.Set(f.provider, *f.value); err != nil {
			return fmt.Errorf("save %s key: %w", f.provider, err)
		}
	}
	return nil
}

// Full converts c into an Update that overwrites all three secrets.
func (c Credentials) Full() Update {
	return Update{Gemini: &c.Gemini, ChatGPT: &c.ChatGPT, DeepSeek: &c.DeepSeek}
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
