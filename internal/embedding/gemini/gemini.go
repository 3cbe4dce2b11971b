package gemini

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// MaxBatch is the batchEmbedContents request limit.
const MaxBatch = 100

// Config configures the Gemini embeddings client.
type Config struct {
	APIKeyEnv  string
	Model      string
	Dimensions int
	BatchSize  int
	// TaskType is sent as the embedding task hint, e.g. RETRIEVAL_DOCUMENT.
	TaskType string
}

// Client embeds text with the Gemini API.
type Client struct {
	models    *genai.Models
	model     string
	dimension int
	batch     int
	taskType  string
}

// NewClient builds a client from the API key in cfg.APIKeyEnv.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GEMINI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatch {
		cfg.BatchSize = MaxBatch
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{
		models:    client.Models,
		model:     cfg.Model,
		dimension: cfg.Dimensions,
		batch:     cfg.BatchSize,
		taskType:  cfg.TaskType,
	}, nil
}

func (c *Client) Name() string   { return "gemini" }
func (c *Client) Dimension() int { return c.dimension }
func (c *Client) MaxBatch() int  { return c.batch }

// EmbedBatch sends all texts in one request and returns vectors in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}
	cfg := &genai.EmbedContentConfig{TaskType: c.taskType}
	if c.dimension > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(c.dimension))
	}
	resp, err := c.models.EmbedContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, e.Values)
	}
	return out, nil
}
