package mock

import "github.com/poiesic/memvault/ai"

type MockProvider struct {
	embedder  *MockEmbedder
	extractor *MockExtractor
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedder:  NewMockEmbedder(),
		extractor: NewMockExtractor(),
	}
}

func NewMockProviderWithServices(embedder *MockEmbedder, extractor *MockExtractor) *MockProvider {
	return &MockProvider{
		embedder:  embedder,
		extractor: extractor,
	}
}

var _ ai.AIProvider = (*MockProvider)(nil)

func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *MockProvider) Extractor() ai.Extractor {
	return p.extractor
}

func (p *MockProvider) Close() error {
	return nil
}

func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

func (p *MockProvider) GetMockExtractor() *MockExtractor {
	return p.extractor
}
