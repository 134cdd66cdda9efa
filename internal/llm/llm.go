// Package llm implements the LLMPort from spec §4.3 against two real
// vision-capable providers: Anthropic's Messages API (internal/llm
// AnthropicVision) and OpenAI's Chat Completions vision call (OpenAIVision).
// Both translate the provider's own request/response shape into the
// provider-neutral ports types so internal/analysis, internal/bridge and
// internal/search never branch on provider identity.
package llm

import (
	"encoding/json"

	"github.com/maukemana/lumalens/internal/apperr"
	"github.com/maukemana/lumalens/internal/ports"
)

// turn is the provider-neutral conversation turn ports.ToolLoopResult's
// opaque state round-trips through: enough structure to replay a turn into
// either provider's native message types without coupling ports to either
// SDK.
type turn struct {
	Role   string      `json:"role"`
	Blocks []turnBlock `json:"blocks"`
}

type turnBlock struct {
	Kind       string         `json:"kind"` // "text" | "toolUse" | "toolResult"
	Text       string         `json:"text,omitempty"`
	ToolUseID  string         `json:"toolUseId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	ToolInput  map[string]any `json:"toolInput,omitempty"`
	ToolResult any            `json:"toolResult,omitempty"`
}

func toolSchemaToJSONSchema(tools []ports.ToolSchema) []map[string]any {
	out := make([]map[string]any, len(tools))
	for i, t := range tools {
		out[i] = map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		}
	}
	return out
}

// extractJSONArgs decodes a tool call's raw JSON input into a generic map,
// tolerating providers that hand back an empty object for no-arg tools.
func extractJSONArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperr.Wrap(apperr.Parse, "decode tool call arguments", err)
	}
	return args, nil
}
