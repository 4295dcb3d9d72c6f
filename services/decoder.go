package services

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const outputTextType = "output_text"

// ResponseEnvelope mirrors the structured-output response body: a list of output items,
// each holding typed content blocks.
type ResponseEnvelope struct {
	Output []OutputItem   `json:"output"`
	Usage  *EnvelopeUsage `json:"usage,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

type OutputItem struct {
	Type    string         `json:"type"`
	Content []ContentBlock `json:"content"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type EnvelopeUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TextEnvelope wraps plain model text into a single output_text block.
func TextEnvelope(text string) ResponseEnvelope {
	return ResponseEnvelope{
		Output: []OutputItem{{
			Type:    "message",
			Content: []ContentBlock{{Type: outputTextType, Text: text}},
		}},
	}
}

// FirstText returns the text of the first content block of the first output item.
func (e ResponseEnvelope) FirstText() (string, error) {
	if len(e.Output) == 0 || len(e.Output[0].Content) == 0 {
		return "", ErrEmptyText
	}
	block := e.Output[0].Content[0]
	if block.Type != outputTextType {
		return "", fmt.Errorf("%w: %q", ErrUnexpectedContent, block.Type)
	}
	if block.Text == "" {
		return "", ErrEmptyText
	}
	return block.Text, nil
}

// DecodeStructured parses the first output text of env as JSON into T.
// Every key in required must be present (it may hold a zero value) and unknown keys are rejected.
func DecodeStructured[T any](env ResponseEnvelope, required ...string) (T, error) {
	var out T

	text, err := env.FirstText()
	if err != nil {
		return out, newError(KindSchema, "decode_response", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return out, newError(KindSchema, "decode_response", fmt.Errorf("invalid json: %w", err))
	}
	for _, key := range required {
		if _, ok := fields[key]; !ok {
			return out, newError(KindSchema, "decode_response", fmt.Errorf("missing field %q", key))
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, newError(KindSchema, "decode_response", fmt.Errorf("schema mismatch: %w", err))
	}
	return out, nil
}
