package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maukemana/lumalens/internal/ports"
	"github.com/maukemana/lumalens/internal/search"
	"github.com/maukemana/lumalens/internal/store"
)

func seedEngine(t *testing.T) *search.Engine {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Initialize())

	for i := 0; i < 15; i++ {
		_, err := s.PutImage(store.ImageRecord{
			SourceImageKey: "k" + string(rune('a'+i)),
			AlbumKey:       "X",
			AlbumName:      "Camp",
			AlbumPath:      "/camp",
			AlbumHierarchy: []string{"camp"},
			Description:    "children having fun outdoors",
			Keywords:       []string{"fun", "outdoor"},
		}, store.HandlingSkip)
		require.NoError(t, err)
	}
	return search.New(s, nil, nil, search.VerifyConfig{})
}

func TestAsk_ExecutesToolCallAndPaginates(t *testing.T) {
	mock := ports.NewMockLLM()
	mock.ToolLoopFunc = func(userText, systemInstruction string, tools []ports.ToolSchema, modelID string) (ports.ToolLoopResult, error) {
		return ports.ToolLoopResult{
			Blocks: []ports.ContentBlock{
				{Kind: ports.BlockToolCall, ToolCallID: "call1", ToolCallName: "searchByKeywords", ToolCallArgs: map[string]any{"keywords": []any{"fun"}}},
			},
		}, nil
	}

	b := New(mock, seedEngine(t), "model-x", "")
	res, err := b.Ask(context.Background(), "find fun photos", 1, 10)
	require.NoError(t, err)

	assert.Len(t, res.Results, 10)
	assert.Equal(t, 15, res.Pagination.TotalItems)
	assert.Equal(t, 2, res.Pagination.TotalPages)
	assert.NotEmpty(t, res.FinalText, "no final text from the model means the bridge must request a follow-up summary")
}

func TestAsk_SecondPage(t *testing.T) {
	mock := ports.NewMockLLM()
	mock.ToolLoopFunc = func(userText, systemInstruction string, tools []ports.ToolSchema, modelID string) (ports.ToolLoopResult, error) {
		return ports.ToolLoopResult{
			Blocks: []ports.ContentBlock{
				{Kind: ports.BlockToolCall, ToolCallID: "call1", ToolCallName: "getAllImages", ToolCallArgs: map[string]any{}},
			},
		}, nil
	}

	b := New(mock, seedEngine(t), "model-x", "")
	res, err := b.Ask(context.Background(), "show everything", 2, 10)
	require.NoError(t, err)
	assert.Len(t, res.Results, 5)
	assert.Equal(t, 2, res.Pagination.Page)
}

func TestAsk_FinalTextFromFirstTurnSkipsFollowUp(t *testing.T) {
	mock := ports.NewMockLLM()
	mock.ToolLoopFunc = func(userText, systemInstruction string, tools []ports.ToolSchema, modelID string) (ports.ToolLoopResult, error) {
		return ports.ToolLoopResult{
			Blocks: []ports.ContentBlock{
				{Kind: ports.BlockToolCall, ToolCallID: "call1", ToolCallName: "searchByKeywords", ToolCallArgs: map[string]any{"keywords": []any{"fun"}}},
				{Kind: ports.BlockText, Text: "Here are some fun photos."},
			},
		}, nil
	}

	b := New(mock, seedEngine(t), "model-x", "")
	res, err := b.Ask(context.Background(), "find fun photos", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "Here are some fun photos.", res.FinalText)
	assert.Equal(t, 0, mock.ToolLoopCalls-1) // sanity: exactly one tool-loop call recorded
}
