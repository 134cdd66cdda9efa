// Package bridge implements the ConversationalBridge from spec §4.9: a
// stable tool schema exposed to the LLM, an ask loop that executes returned
// tool calls against the SearchEngine, and pagination of the merged
// results.
package bridge

import (
	"context"

	"github.com/maukemana/lumalens/internal/ports"
	"github.com/maukemana/lumalens/internal/search"
	"github.com/maukemana/lumalens/internal/store"
)

const defaultPageSize = 10

// Pagination describes one page of a larger result set.
type Pagination struct {
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// AskResult is Ask's return value, per spec §4.9 step 4.
type AskResult struct {
	FinalText     string
	Results       []store.ImageRecord
	Pagination    Pagination
	OriginalQuery string
}

// Bridge wires an LLMPort's tool-calling chat to a SearchEngine.
type Bridge struct {
	LLM          ports.LLMPort
	Engine       *search.Engine
	ModelID      string
	SystemPrompt string
}

// New constructs a Bridge.
func New(llm ports.LLMPort, engine *search.Engine, modelID, systemPrompt string) *Bridge {
	if systemPrompt == "" {
		systemPrompt = "You are a helpful assistant that finds photos from a library using the provided search tools. Prefer the most specific tool available."
	}
	return &Bridge{LLM: llm, Engine: engine, ModelID: modelID, SystemPrompt: systemPrompt}
}

// Ask runs one turn of the ask loop described in spec §4.9.
func (b *Bridge) Ask(ctx context.Context, userText string, page, pageSize int) (AskResult, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if page <= 0 {
		page = 1
	}

	turn, err := b.LLM.RunToolLoop(ctx, userText, b.SystemPrompt, toolSchemas(), b.ModelID)
	if err != nil {
		return AskResult{}, err
	}

	var merged []store.ImageRecord
	var toolResults []ports.ContentBlock
	sawToolCall := false
	finalText := ""

	for _, block := range turn.Blocks {
		switch block.Kind {
		case ports.BlockText:
			finalText = block.Text
		case ports.BlockToolCall:
			sawToolCall = true
			records, execErr := b.executeTool(ctx, block.ToolCallName, block.ToolCallArgs, userText)
			if execErr != nil {
				records = nil
			}
			merged = append(merged, records...)
			toolResults = append(toolResults, ports.ContentBlock{
				Kind:          ports.BlockToolResult,
				ToolResultFor: block.ToolCallID,
				ToolResult:    records,
			})
		}
	}

	if sawToolCall && finalText == "" {
		follow, err := b.LLM.ContinueToolLoop(ctx, turn, toolResults)
		if err == nil {
			for _, block := range follow.Blocks {
				if block.Kind == ports.BlockText {
					finalText = block.Text
				}
			}
		}
	}

	merged = dedupeByID(merged)
	pageItems, pagination := paginate(merged, page, pageSize)

	return AskResult{
		FinalText:     finalText,
		Results:       pageItems,
		Pagination:    pagination,
		OriginalQuery: userText,
	}, nil
}

func (b *Bridge) executeTool(ctx context.Context, name string, args map[string]any, originalQuery string) ([]store.ImageRecord, error) {
	crit := criteriaFromArgs(name, args)
	outcome, err := b.Engine.Search(ctx, crit, originalQuery)
	if err != nil {
		return nil, err
	}
	out := make([]store.ImageRecord, len(outcome.Results))
	for i, r := range outcome.Results {
		out[i] = r.Record
	}
	return out, nil
}

func criteriaFromArgs(toolName string, args map[string]any) search.Criteria {
	crit := search.Criteria{
		Keywords:           stringSlice(args["keywords"]),
		NegativeKeywords:   stringSlice(args["negativeKeywords"]),
		PeopleType:         stringVal(args["peopleType"]),
		Activity:           stringVal(args["activity"]),
		Mood:               stringVal(args["mood"]),
		Location:           stringVal(args["location"]),
		AlbumTerm:          stringVal(args["albumTerm"]),
		RequireAllKeywords: boolVal(args["requireAllKeywords"]),
		MaxResults:         intVal(args["maxResults"]),
	}
	if toolName == "getAllImages" && crit.MaxResults == 0 {
		crit.MaxResults = 1000
	}
	return crit
}

func stringVal(v any) string {
	s, _ := v.(string)
	return s
}

func boolVal(v any) bool {
	b, _ := v.(bool)
	return b
}

func intVal(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func dedupeByID(records []store.ImageRecord) []store.ImageRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]store.ImageRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

func paginate(items []store.ImageRecord, page, pageSize int) ([]store.ImageRecord, Pagination) {
	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return items[start:end], Pagination{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: totalPages}
}
