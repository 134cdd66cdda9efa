package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/maukemana/lumalens/internal/apperr"
	"github.com/maukemana/lumalens/internal/ports"
)

// OpenAIVision implements ports.LLMPort against OpenAI's Chat Completions
// API, sending images as data-URL image_url content parts.
type OpenAIVision struct {
	client *openai.Client
}

// NewOpenAIVision constructs an OpenAIVision bound to apiKey.
func NewOpenAIVision(apiKey string) *OpenAIVision {
	return &OpenAIVision{client: openai.NewClient(apiKey)}
}

func dataURL(img ports.ImageInput) string {
	return fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Bytes))
}

func (o *OpenAIVision) AnalyzeImage(ctx context.Context, img ports.ImageInput, prompt, preContext, modelID string) (ports.AnalyzeResult, error) {
	fullPrompt := prompt
	if preContext != "" {
		fullPrompt = preContext + "\n\n" + prompt
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: fullPrompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL(img)}},
				},
			},
		},
	})
	if err != nil {
		return ports.AnalyzeResult{OK: false, ErrorKind: string(apperr.Upstream503)}, apperr.Wrap(apperr.Upstream503, "openai analyze image", err)
	}
	if len(resp.Choices) == 0 {
		return ports.AnalyzeResult{OK: false, ErrorKind: string(apperr.Parse)}, apperr.New(apperr.Parse, "openai returned no choices")
	}

	return ports.AnalyzeResult{
		OK:      true,
		RawText: resp.Choices[0].Message.Content,
		ModelID: resp.Model,
		Usage: ports.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (o *OpenAIVision) RunToolLoop(ctx context.Context, userText, systemInstruction string, toolSchemas []ports.ToolSchema, modelID string) (ports.ToolLoopResult, error) {
	messages := []openai.ChatCompletionMessage{}
	if systemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemInstruction})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})

	history := []turn{{Role: "user", Blocks: []turnBlock{{Kind: "text", Text: userText}}}}
	return o.sendTurn(ctx, modelID, messages, toolSchemas, history)
}

func (o *OpenAIVision) ContinueToolLoop(ctx context.Context, prev ports.ToolLoopResult, toolResults []ports.ContentBlock) (ports.ToolLoopResult, error) {
	// prev's conversation already ends with its assistant turn (sendTurn
	// appends it), so only the tool results are added here.
	history := decodeConversation(prev.Conversation())

	resultBlocks := make([]turnBlock, 0, len(toolResults))
	for _, r := range toolResults {
		resultBlocks = append(resultBlocks, turnBlock{Kind: "toolResult", ToolUseID: r.ToolResultFor, ToolResult: r.ToolResult})
	}
	history = append(history, turn{Role: "tool", Blocks: resultBlocks})

	messages, err := buildOpenAIMessages(history)
	if err != nil {
		return ports.ToolLoopResult{}, err
	}

	return o.sendTurn(ctx, prev.ModelID, messages, nil, history)
}

func (o *OpenAIVision) sendTurn(ctx context.Context, modelID string, messages []openai.ChatCompletionMessage, toolSchemas []ports.ToolSchema, history []turn) (ports.ToolLoopResult, error) {
	req := openai.ChatCompletionRequest{Model: modelID, Messages: messages}
	if len(toolSchemas) > 0 {
		req.Tools = toOpenAITools(toolSchemas)
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ports.ToolLoopResult{}, apperr.Wrap(apperr.Upstream503, "openai tool loop turn", err)
	}
	if len(resp.Choices) == 0 {
		return ports.ToolLoopResult{}, apperr.New(apperr.Parse, "openai returned no choices")
	}

	choice := resp.Choices[0]
	blocks, assistantBlocks := decodeOpenAIMessage(choice.Message)
	history = append(history, turn{Role: "assistant", Blocks: assistantBlocks})

	result := ports.ToolLoopResult{
		Blocks:  blocks,
		ModelID: resp.Model,
		Usage: ports.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		StopReason: string(choice.FinishReason),
	}
	return result.WithConversation(encodeConversation(history)), nil
}

func (o *OpenAIVision) VerifyImages(ctx context.Context, images []ports.ImageInput, query, modelID string) (ports.VerifyResult, error) {
	parts := make([]openai.ChatMessagePart, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL(img)}})
	}
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: "Each image above is numbered in order starting from 0. Reply with a JSON array of the " +
			"zero-based indices of images that visually match this description: \"" + query + "\". " +
			"Reply with only the JSON array, e.g. [0,2].",
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return ports.VerifyResult{}, apperr.Wrap(apperr.Upstream503, "openai verify images", err)
	}
	if len(resp.Choices) == 0 {
		return ports.VerifyResult{}, apperr.New(apperr.Parse, "openai returned no choices")
	}

	text := resp.Choices[0].Message.Content
	indices := parseIndexArray(text)
	matched := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		matched[i] = struct{}{}
	}
	return ports.VerifyResult{MatchedIndices: matched, Raw: text}, nil
}

func toOpenAITools(schemas []ports.ToolSchema) []openai.Tool {
	out := make([]openai.Tool, len(schemas))
	for i, s := range schemas {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		}
	}
	return out
}

func decodeOpenAIMessage(msg openai.ChatCompletionMessage) ([]ports.ContentBlock, []turnBlock) {
	var blocks []ports.ContentBlock
	var history []turnBlock

	if msg.Content != "" {
		blocks = append(blocks, ports.ContentBlock{Kind: ports.BlockText, Text: msg.Content})
		history = append(history, turnBlock{Kind: "text", Text: msg.Content})
	}
	for _, call := range msg.ToolCalls {
		args, _ := extractJSONArgs(json.RawMessage(call.Function.Arguments))
		blocks = append(blocks, ports.ContentBlock{
			Kind:         ports.BlockToolCall,
			ToolCallID:   call.ID,
			ToolCallName: call.Function.Name,
			ToolCallArgs: args,
		})
		history = append(history, turnBlock{Kind: "toolUse", ToolUseID: call.ID, ToolName: call.Function.Name, ToolInput: args})
	}
	return blocks, history
}

func buildOpenAIMessages(history []turn) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case "user":
			for _, b := range t.Blocks {
				if b.Kind == "text" {
					messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: b.Text})
				}
			}
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			for _, b := range t.Blocks {
				switch b.Kind {
				case "text":
					msg.Content = b.Text
				case "toolUse":
					args, err := json.Marshal(b.ToolInput)
					if err != nil {
						return nil, apperr.Wrap(apperr.Parse, "re-encode tool use input", err)
					}
					msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
						ID:   b.ToolUseID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      b.ToolName,
							Arguments: string(args),
						},
					})
				}
			}
			messages = append(messages, msg)
		case "tool":
			for _, b := range t.Blocks {
				resultJSON, err := json.Marshal(b.ToolResult)
				if err != nil {
					return nil, apperr.Wrap(apperr.Parse, "re-encode tool result", err)
				}
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    string(resultJSON),
					ToolCallID: b.ToolUseID,
				})
			}
		}
	}
	return messages, nil
}
