// Package ports defines the two capability boundaries spec §4.3 describes:
// LLMPort (vision analysis, tool-calling chat, batch visual verification)
// and PhotoHostPort (fetching images and album metadata from the photo
// host). Concrete implementations live in internal/llm and
// internal/photohost; internal/analysis, internal/bridge, and
// internal/batch only ever depend on these interfaces.
package ports

import "context"

// ContentBlockKind classifies one block of a tool-loop response.
type ContentBlockKind string

const (
	BlockText       ContentBlockKind = "text"
	BlockToolCall   ContentBlockKind = "toolCall"
	BlockToolResult ContentBlockKind = "toolResult"
)

// ContentBlock is one unit of a RunToolLoop response, per spec §4.3.
type ContentBlock struct {
	Kind ContentBlockKind
	Text string

	ToolCallID   string
	ToolCallName string
	ToolCallArgs map[string]any

	ToolResultFor string
	ToolResult    any
}

// ToolSchema describes one callable tool offered to the LLM during a
// RunToolLoop turn.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// Usage reports token accounting for a single LLM call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// AnalyzeResult is LLMPort.AnalyzeImage's return value.
type AnalyzeResult struct {
	Description string
	Keywords    []string
	ModelID     string
	Usage       Usage
	OK          bool
	RawText     string
	ErrorKind   string
}

// ToolLoopResult is LLMPort.RunToolLoop's return value: a turn's content
// blocks plus enough state to send a follow-up turn with tool results.
type ToolLoopResult struct {
	Blocks      []ContentBlock
	ModelID     string
	Usage       Usage
	StopReason  string
	conversation []map[string]any // opaque provider-specific turn history
}

// WithConversation attaches opaque provider conversation state to a turn.
// Real LLMPort implementations call this from RunToolLoop so a later
// ContinueToolLoop call can read it back via Conversation; callers outside
// internal/llm never construct or inspect this state.
func (r ToolLoopResult) WithConversation(conv []map[string]any) ToolLoopResult {
	r.conversation = conv
	return r
}

// Conversation returns the opaque provider conversation state attached by
// WithConversation.
func (r ToolLoopResult) Conversation() []map[string]any {
	return r.conversation
}

// VerifyResult is LLMPort.VerifyImages's return value: which batch indices
// the model judged a visual match for query.
type VerifyResult struct {
	MatchedIndices map[int]struct{}
	Raw            string
}

// ImageInput bundles normalized image bytes with their MIME type for a
// vision call.
type ImageInput struct {
	Bytes    []byte
	MimeType string
}

// LLMPort is the vision/chat capability boundary. Implementations vary by
// provider (Anthropic, OpenAI, or a test mock); callers never branch on
// provider identity.
type LLMPort interface {
	// AnalyzeImage asks the model to describe and tag one normalized image.
	AnalyzeImage(ctx context.Context, img ImageInput, prompt, preContext, modelID string) (AnalyzeResult, error)

	// RunToolLoop sends userText plus systemInstruction and the offered
	// toolSchemas, returning the model's first turn.
	RunToolLoop(ctx context.Context, userText, systemInstruction string, toolSchemas []ToolSchema, modelID string) (ToolLoopResult, error)

	// ContinueToolLoop sends toolResults back into prev's conversation and
	// returns the model's next turn.
	ContinueToolLoop(ctx context.Context, prev ToolLoopResult, toolResults []ContentBlock) (ToolLoopResult, error)

	// VerifyImages asks the model a batch yes/no visual-match question
	// against query.
	VerifyImages(ctx context.Context, images []ImageInput, query, modelID string) (VerifyResult, error)
}

// SourceImage is one image record as reported by the photo host, before
// normalization or analysis.
type SourceImage struct {
	SourceImageKey string
	Filename       string
	SourceURL      string
	Title          string
	Caption        string
}

// AlbumDetails is photo-host metadata about one album.
type AlbumDetails struct {
	Name      string
	Path      string
	Hierarchy []string
}

// PhotoHostPort is the capability boundary for talking to the photo host.
type PhotoHostPort interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
	ListAlbumImages(ctx context.Context, albumID string) ([]SourceImage, error)
	GetAlbumDetails(ctx context.Context, albumID string) (AlbumDetails, error)
}
