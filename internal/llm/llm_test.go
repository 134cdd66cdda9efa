package llm

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maukemana/lumalens/internal/ports"
)

func TestParseIndexArray_ExtractsArrayFromSurroundingProse(t *testing.T) {
	indices := parseIndexArray("Sure, here you go: [0, 2, 5] — hope that helps.")
	assert.Equal(t, []int{0, 2, 5}, indices)
}

func TestParseIndexArray_EmptyArray(t *testing.T) {
	indices := parseIndexArray("[]")
	assert.Empty(t, indices)
}

func TestParseIndexArray_NoArrayReturnsNil(t *testing.T) {
	indices := parseIndexArray("no matches found")
	assert.Nil(t, indices)
}

func TestConversationRoundTrip_PreservesToolCallsAndResults(t *testing.T) {
	history := []turn{
		{Role: "user", Blocks: []turnBlock{{Kind: "text", Text: "find fun photos"}}},
		{Role: "assistant", Blocks: []turnBlock{{Kind: "toolUse", ToolUseID: "call1", ToolName: "searchByKeywords", ToolInput: map[string]any{"keywords": []any{"fun"}}}}},
		{Role: "user", Blocks: []turnBlock{{Kind: "toolResult", ToolUseID: "call1", ToolResult: []map[string]any{{"id": "img1"}}}}},
	}

	encoded := encodeConversation(history)
	decoded := decodeConversation(encoded)

	require.Len(t, decoded, 3)
	assert.Equal(t, "user", decoded[0].Role)
	assert.Equal(t, "find fun photos", decoded[0].Blocks[0].Text)
	assert.Equal(t, "searchByKeywords", decoded[1].Blocks[0].ToolName)
	assert.Equal(t, "call1", decoded[2].Blocks[0].ToolUseID)
}

func TestBuildOpenAIMessages_AssignsRolesPerTurnKind(t *testing.T) {
	history := []turn{
		{Role: "user", Blocks: []turnBlock{{Kind: "text", Text: "hello"}}},
		{Role: "assistant", Blocks: []turnBlock{{Kind: "toolUse", ToolUseID: "c1", ToolName: "getAllImages", ToolInput: map[string]any{}}}},
		{Role: "tool", Blocks: []turnBlock{{Kind: "toolResult", ToolUseID: "c1", ToolResult: []any{}}}},
	}

	messages, err := buildOpenAIMessages(history)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, openai.ChatMessageRoleUser, messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, messages[1].Role)
	require.Len(t, messages[1].ToolCalls, 1)
	assert.Equal(t, "getAllImages", messages[1].ToolCalls[0].Function.Name)
	assert.Equal(t, openai.ChatMessageRoleTool, messages[2].Role)
	assert.Equal(t, "c1", messages[2].ToolCallID)
}

func TestDecodeOpenAIMessage_SplitsTextAndToolCalls(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Content: "here are your results",
		ToolCalls: []openai.ToolCall{
			{ID: "c1", Function: openai.FunctionCall{Name: "searchImages", Arguments: `{"keywords":["sunset"]}`}},
		},
	}

	blocks, history := decodeOpenAIMessage(msg)
	require.Len(t, blocks, 2)
	assert.Equal(t, ports.BlockText, blocks[0].Kind)
	assert.Equal(t, ports.BlockToolCall, blocks[1].Kind)
	assert.Equal(t, "searchImages", blocks[1].ToolCallName)
	require.Len(t, history, 2)
}

func TestToOpenAITools_CarriesNameDescriptionAndParameters(t *testing.T) {
	schemas := []ports.ToolSchema{
		{Name: "searchImages", Description: "search", Parameters: map[string]any{"type": "object"}},
	}
	tools := toOpenAITools(schemas)
	require.Len(t, tools, 1)
	assert.Equal(t, "searchImages", tools[0].Function.Name)
}
