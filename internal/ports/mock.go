package ports

import (
	"context"
	"fmt"
	"sync"
)

// MockLLM is a deterministic LLMPort used by batch and search tests,
// grounded on the teacher's MockGeocodingService shape: canned responses
// keyed by an optional lookup function, with call counts exposed for
// assertions.
type MockLLM struct {
	mu sync.Mutex

	// AnalyzeFunc, when set, computes the response for AnalyzeImage.
	// Otherwise DefaultDescription/DefaultKeywords are returned.
	AnalyzeFunc       func(img ImageInput, prompt, preContext, modelID string) (AnalyzeResult, error)
	DefaultDescription string
	DefaultKeywords    []string

	ToolLoopFunc func(userText, systemInstruction string, tools []ToolSchema, modelID string) (ToolLoopResult, error)
	VerifyFunc   func(images []ImageInput, query, modelID string) (VerifyResult, error)

	AnalyzeCalls  int
	ToolLoopCalls int
	VerifyCalls   int
}

func NewMockLLM() *MockLLM {
	return &MockLLM{DefaultDescription: "a mock description", DefaultKeywords: []string{"mock"}}
}

func (m *MockLLM) AnalyzeImage(_ context.Context, img ImageInput, prompt, preContext, modelID string) (AnalyzeResult, error) {
	m.mu.Lock()
	m.AnalyzeCalls++
	fn := m.AnalyzeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(img, prompt, preContext, modelID)
	}
	return AnalyzeResult{
		Description: m.DefaultDescription,
		Keywords:    append([]string(nil), m.DefaultKeywords...),
		ModelID:     modelID,
		OK:          true,
	}, nil
}

func (m *MockLLM) RunToolLoop(_ context.Context, userText, systemInstruction string, tools []ToolSchema, modelID string) (ToolLoopResult, error) {
	m.mu.Lock()
	m.ToolLoopCalls++
	fn := m.ToolLoopFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(userText, systemInstruction, tools, modelID)
	}
	return ToolLoopResult{
		Blocks:     []ContentBlock{{Kind: BlockText, Text: fmt.Sprintf("mock reply to: %s", userText)}},
		ModelID:    modelID,
		StopReason: "end_turn",
	}, nil
}

func (m *MockLLM) ContinueToolLoop(_ context.Context, prev ToolLoopResult, toolResults []ContentBlock) (ToolLoopResult, error) {
	return ToolLoopResult{
		Blocks:     []ContentBlock{{Kind: BlockText, Text: "mock follow-up reply"}},
		ModelID:    prev.ModelID,
		StopReason: "end_turn",
	}, nil
}

func (m *MockLLM) VerifyImages(_ context.Context, images []ImageInput, query, modelID string) (VerifyResult, error) {
	m.mu.Lock()
	m.VerifyCalls++
	fn := m.VerifyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(images, query, modelID)
	}
	matched := make(map[int]struct{}, len(images))
	for i := range images {
		matched[i] = struct{}{}
	}
	return VerifyResult{MatchedIndices: matched}, nil
}

// MockPhotoHost is a deterministic PhotoHostPort backed by an in-memory
// album map, for batch and search tests.
type MockPhotoHost struct {
	mu      sync.Mutex
	Albums  map[string]AlbumDetails
	Images  map[string][]SourceImage // albumID -> images
	Bytes   map[string][]byte        // url -> image bytes
	FetchErr error
}

func NewMockPhotoHost() *MockPhotoHost {
	return &MockPhotoHost{
		Albums: make(map[string]AlbumDetails),
		Images: make(map[string][]SourceImage),
		Bytes:  make(map[string][]byte),
	}
}

func (m *MockPhotoHost) FetchImage(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	b, ok := m.Bytes[url]
	if !ok {
		return nil, fmt.Errorf("mock photo host: no bytes registered for %s", url)
	}
	return b, nil
}

func (m *MockPhotoHost) ListAlbumImages(_ context.Context, albumID string) ([]SourceImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Images[albumID], nil
}

func (m *MockPhotoHost) GetAlbumDetails(_ context.Context, albumID string) (AlbumDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Albums[albumID]
	if !ok {
		return AlbumDetails{}, fmt.Errorf("mock photo host: no album %s", albumID)
	}
	return d, nil
}
