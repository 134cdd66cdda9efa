// Package analysis implements the AnalysisClient from spec §4.5: normalize,
// compose a prompt, call the LLM capability port, and parse its response
// into a description plus keyword tags.
package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/maukemana/lumalens/internal/apperr"
	"github.com/maukemana/lumalens/internal/normalizer"
	"github.com/maukemana/lumalens/internal/ports"
)

const defaultPrompt = `Describe this image in detail, covering the subjects, setting, activity, mood, dominant colors, any visible text, and approximate time of day. Then respond with a JSON object of the exact shape {"description": string, "keywords": [string, ...]} where keywords is a list of 5 to 10 canonicalized tags. Respond with only the JSON object.`

// Result is AnalysisClient.Analyze's return value.
type Result struct {
	OK          bool
	Description string
	Keywords    []string
	ModelID     string
	Usage       ports.Usage
	Timestamp   time.Time
	ErrorKind   apperr.Kind
	ContentHash string
}

// Client composes prompts and parses vision responses on top of an LLMPort.
type Client struct {
	LLM ports.LLMPort
}

// New constructs an analysis Client bound to llm.
func New(llm ports.LLMPort) *Client {
	return &Client{LLM: llm}
}

// Analyze normalizes raw, composes the prompt, calls the LLM, and parses
// its response. customPrompt and preContext are both optional.
func (c *Client) Analyze(ctx context.Context, raw []byte, mime, customPrompt, preContext, modelID string) Result {
	validation, err := normalizer.ValidateImage(raw)
	if err != nil {
		return Result{OK: false, ModelID: modelID, Timestamp: time.Now(), ErrorKind: apperr.InputInvalid}
	}

	norm := normalizer.Normalize(raw)

	prompt := customPrompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	if preContext != "" {
		prompt = preContext + "\n\n" + prompt
	}

	res, err := c.LLM.AnalyzeImage(ctx, ports.ImageInput{Bytes: norm.Bytes, MimeType: norm.MimeType}, prompt, preContext, modelID)
	if err != nil {
		return Result{
			OK:        false,
			ModelID:   modelID,
			Timestamp: time.Now(),
			ErrorKind: apperr.KindOf(err),
		}
	}
	if !res.OK {
		kind := apperr.Upstream503
		if res.ErrorKind != "" {
			kind = apperr.Kind(res.ErrorKind)
		}
		return Result{OK: false, ModelID: res.ModelID, Usage: res.Usage, Timestamp: time.Now(), ErrorKind: kind}
	}

	description, keywords := parseVisionResponse(res)

	return Result{
		OK:          true,
		Description: description,
		Keywords:    keywords,
		ModelID:     res.ModelID,
		Usage:       res.Usage,
		Timestamp:   time.Now(),
		ContentHash: validation.ContentHash,
	}
}

type visionPayload struct {
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// parseVisionResponse parses the model's response content as JSON, falling
// back to {description: rawText, keywords: []} on parse failure per spec
// §4.5 step 4.
func parseVisionResponse(res ports.AnalyzeResult) (string, []string) {
	text := res.RawText
	if text == "" {
		text = res.Description
	}

	candidate := extractJSONObject(text)
	if candidate != "" {
		var payload visionPayload
		if err := json.Unmarshal([]byte(candidate), &payload); err == nil && payload.Description != "" {
			return payload.Description, payload.Keywords
		}
	}

	if res.Description != "" && len(res.Keywords) > 0 {
		return res.Description, res.Keywords
	}
	return text, nil
}

// extractJSONObject returns the span from the first '{' to the last '}' in text, since
// vision models sometimes wrap JSON in prose or code fences.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
