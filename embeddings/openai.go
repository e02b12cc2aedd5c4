package embeddings

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// OpenAI embedding models.
const (
	// ModelTextEmbedding3Small is the small embedding model (1536 dims).
	ModelTextEmbedding3Small = "text-embedding-3-small"

	// ModelTextEmbedding3Large is the large embedding model (3072 dims).
	ModelTextEmbedding3Large = "text-embedding-3-large"
)

const defaultModel = ModelTextEmbedding3Small

// OpenAIProvider implements Provider using the OpenAI embeddings API.
//
// It also works with any OpenAI-compatible provider by setting WithBaseURL.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
	configured bool
}

var _ Provider = (*OpenAIProvider)(nil)

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
	limit      rate.Limit
	burst      int
}

// WithModel sets the embedding model name.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// WithDimensions sets the requested output vector dimensionality.
// Leave unset to use the model default.
func WithDimensions(dim int) OpenAIOption {
	return func(c *openAIConfig) { c.dimensions = dim }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = client }
}

// WithRateLimit throttles embedding requests to limit per second with the
// given burst.
func WithRateLimit(limit rate.Limit, burst int) OpenAIOption {
	return func(c *openAIConfig) {
		c.limit = limit
		c.burst = burst
	}
}

// NewOpenAIProvider creates a provider backed by the OpenAI embeddings
// API. An empty apiKey yields an unconfigured provider: Configured reports
// false and Embed returns ErrNotConfigured.
func NewOpenAIProvider(apiKey string, optFns ...OpenAIOption) *OpenAIProvider {
	cfg := openAIConfig{
		model:      defaultModel,
		httpClient: http.DefaultClient,
		limit:      rate.Inf,
	}
	for _, fn := range optFns {
		fn(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAIProvider{
		client:     &client,
		model:      cfg.model,
		dimensions: cfg.dimensions,
		limiter:    rate.NewLimiter(cfg.limit, cfg.burst),
		configured: apiKey != "",
	}
}

// Configured reports whether an API key was supplied.
func (p *OpenAIProvider) Configured() bool {
	return p.configured
}

// Embed returns the embedding for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if !p.configured {
		return nil, ErrNotConfigured
	}
	if text == "" {
		return nil, ErrEmptyInput
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := openai.EmbeddingNewParams{
		Model:          p.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contains no data")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
