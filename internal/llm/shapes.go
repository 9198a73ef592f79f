package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// errNoText means the body parsed but the text path was absent.
var errNoText = errors.New("reply text not found")

type codec struct {
	build   func(model, prompt string) any
	extract func(body []byte) (string, error)
}

var codecs = map[Shape]codec{
	ShapeContents: {build: buildContents, extract: extractContents},
	ShapeChat:     {build: buildChat, extract: extractChat},
}

// generateContent shapes (minimal for our use)
type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func buildContents(_ string, prompt string) any {
	return generateContentRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
}

func extractContents(body []byte) (string, error) {
	var r generateContentResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil ||
		len(r.Candidates[0].Content.Parts) == 0 || r.Candidates[0].Content.Parts[0].Text == nil {
		return "", errNoText
	}
	return *r.Candidates[0].Content.Parts[0].Text, nil
}

// chat completion shapes
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func buildChat(model, prompt string) any {
	return chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	}
}

func extractChat(body []byte) (string, error) {
	var r chatResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(r.Choices) == 0 || r.Choices[0].Message == nil || r.Choices[0].Message.Content == nil {
		return "", errNoText
	}
	return *r.Choices[0].Message.Content, nil
}
