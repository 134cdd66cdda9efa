package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/maukemana/lumalens/internal/apperr"
	"github.com/maukemana/lumalens/internal/ports"
)

const defaultMaxTokens = 1024

// AnthropicVision implements ports.LLMPort against Anthropic's Messages
// API, sending images as base64 content blocks alongside the analysis or
// chat prompt.
type AnthropicVision struct {
	client anthropic.Client
}

// NewAnthropicVision constructs an AnthropicVision bound to apiKey.
func NewAnthropicVision(apiKey string) *AnthropicVision {
	return &AnthropicVision{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (a *AnthropicVision) AnalyzeImage(ctx context.Context, img ports.ImageInput, prompt, preContext, modelID string) (ports.AnalyzeResult, error) {
	fullPrompt := prompt
	if preContext != "" {
		fullPrompt = preContext + "\n\n" + prompt
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(img.MimeType, base64.StdEncoding.EncodeToString(img.Bytes)),
				anthropic.NewTextBlock(fullPrompt),
			),
		},
	})
	if err != nil {
		return ports.AnalyzeResult{OK: false, ErrorKind: string(apperr.Upstream503)}, apperr.Wrap(apperr.Upstream503, "anthropic analyze image", err)
	}

	text := concatTextBlocks(msg.Content)
	return ports.AnalyzeResult{
		OK:      true,
		RawText: text,
		ModelID: string(msg.Model),
		Usage: ports.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (a *AnthropicVision) RunToolLoop(ctx context.Context, userText, systemInstruction string, toolSchemas []ports.ToolSchema, modelID string) (ports.ToolLoopResult, error) {
	messages := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(userText))}
	return a.sendTurn(ctx, modelID, systemInstruction, toolSchemas, messages, []turn{
		{Role: "user", Blocks: []turnBlock{{Kind: "text", Text: userText}}},
	})
}

func (a *AnthropicVision) ContinueToolLoop(ctx context.Context, prev ports.ToolLoopResult, toolResults []ports.ContentBlock) (ports.ToolLoopResult, error) {
	// prev's conversation already ends with its assistant turn (sendTurn
	// appends it), so only the tool results are added here.
	history := decodeConversation(prev.Conversation())

	resultBlocks := make([]turnBlock, 0, len(toolResults))
	for _, r := range toolResults {
		resultBlocks = append(resultBlocks, turnBlock{Kind: "toolResult", ToolUseID: r.ToolResultFor, ToolResult: r.ToolResult})
	}
	history = append(history, turn{Role: "user", Blocks: resultBlocks})

	messages, err := buildAnthropicMessages(history)
	if err != nil {
		return ports.ToolLoopResult{}, err
	}

	return a.sendTurn(ctx, prev.ModelID, "", nil, messages, history)
}

func (a *AnthropicVision) sendTurn(ctx context.Context, modelID, systemInstruction string, toolSchemas []ports.ToolSchema, messages []anthropic.MessageParam, history []turn) (ports.ToolLoopResult, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: defaultMaxTokens,
		Messages:  messages,
	}
	if systemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemInstruction}}
	}
	if len(toolSchemas) > 0 {
		params.Tools = toAnthropicTools(toolSchemas)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return ports.ToolLoopResult{}, apperr.Wrap(apperr.Upstream503, "anthropic tool loop turn", err)
	}

	blocks, assistantBlocks := decodeAnthropicContent(msg.Content)
	history = append(history, turn{Role: "assistant", Blocks: assistantBlocks})

	result := ports.ToolLoopResult{
		Blocks:  blocks,
		ModelID: string(msg.Model),
		Usage: ports.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		StopReason: string(msg.StopReason),
	}
	return result.WithConversation(encodeConversation(history)), nil
}

func (a *AnthropicVision) VerifyImages(ctx context.Context, images []ports.ImageInput, query, modelID string) (ports.VerifyResult, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(images)+1)
	for _, img := range images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, base64.StdEncoding.EncodeToString(img.Bytes)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(
		"Each image above is numbered in order starting from 0. Reply with a JSON array of the "+
			"zero-based indices of images that visually match this description: \""+query+"\". "+
			"Reply with only the JSON array, e.g. [0,2].",
	))

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: defaultMaxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return ports.VerifyResult{}, apperr.Wrap(apperr.Upstream503, "anthropic verify images", err)
	}

	text := concatTextBlocks(msg.Content)
	indices := parseIndexArray(text)
	matched := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		matched[i] = struct{}{}
	}
	return ports.VerifyResult{MatchedIndices: matched, Raw: text}, nil
}

func toAnthropicTools(schemas []ports.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(schemas))
	for i, s := range schemas {
		properties, _ := s.Parameters["properties"].(map[string]any)
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: properties},
			},
		}
	}
	return out
}

func concatTextBlocks(content []anthropic.ContentBlockUnion) string {
	var out string
	for _, b := range content {
		if text := b.AsText(); text.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += text.Text
		}
	}
	return out
}

// decodeAnthropicContent splits a response's content blocks into the
// provider-neutral ports.ContentBlock slice plus the internal turn-history
// representation needed to replay this turn on a later ContinueToolLoop.
func decodeAnthropicContent(content []anthropic.ContentBlockUnion) ([]ports.ContentBlock, []turnBlock) {
	blocks := make([]ports.ContentBlock, 0, len(content))
	history := make([]turnBlock, 0, len(content))

	for _, b := range content {
		switch b.Type {
		case "text":
			text := b.AsText()
			blocks = append(blocks, ports.ContentBlock{Kind: ports.BlockText, Text: text.Text})
			history = append(history, turnBlock{Kind: "text", Text: text.Text})
		case "tool_use":
			use := b.AsToolUse()
			args, _ := extractJSONArgs(use.Input)
			blocks = append(blocks, ports.ContentBlock{
				Kind:         ports.BlockToolCall,
				ToolCallID:   use.ID,
				ToolCallName: use.Name,
				ToolCallArgs: args,
			})
			history = append(history, turnBlock{Kind: "toolUse", ToolUseID: use.ID, ToolName: use.Name, ToolInput: args})
		}
	}
	return blocks, history
}

func buildAnthropicMessages(history []turn) ([]anthropic.MessageParam, error) {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, t := range history {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.Blocks))
		for _, b := range t.Blocks {
			switch b.Kind {
			case "text":
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case "toolUse":
				input, err := json.Marshal(b.ToolInput)
				if err != nil {
					return nil, apperr.Wrap(apperr.Parse, "re-encode tool use input", err)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUseID, json.RawMessage(input), b.ToolName))
			case "toolResult":
				resultJSON, err := json.Marshal(b.ToolResult)
				if err != nil {
					return nil, apperr.Wrap(apperr.Parse, "re-encode tool result", err)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, string(resultJSON), false))
			}
		}
		if t.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return messages, nil
}

func encodeConversation(history []turn) []map[string]any {
	out := make([]map[string]any, len(history))
	for i, t := range history {
		b, _ := json.Marshal(t)
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		out[i] = m
	}
	return out
}

func decodeConversation(raw []map[string]any) []turn {
	out := make([]turn, 0, len(raw))
	for _, m := range raw {
		b, err := json.Marshal(m)
		if err != nil {
			continue
		}
		var t turn
		if err := json.Unmarshal(b, &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

func parseIndexArray(text string) []int {
	start := -1
	end := -1
	for i, r := range text {
		if r == '[' && start == -1 {
			start = i
		}
		if r == ']' {
			end = i
		}
	}
	if start == -1 || end == -1 || end <= start {
		return nil
	}
	var out []int
	_ = json.Unmarshal([]byte(text[start:end+1]), &out)
	return out
}
