package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/secsage/vulnsage/internal/vector"
)

// Embed converts text into a vector of fixed dimensionality
// (vector.Dimension). Empty input is rejected before any network call.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	dim := int32(vector.Dimension)
	var values []float32
	err := c.withRetry(callCtx, func() error {
		resp, err := c.genai.Models.EmbedContent(callCtx, c.embedModel,
			genai.Text(text),
			&genai.EmbedContentConfig{OutputDimensionality: &dim})
		if err != nil {
			return err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
			return fmt.Errorf("empty embedding response")
		}
		values = resp.Embeddings[0].Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(values) != vector.Dimension {
		return nil, fmt.Errorf("embedding has dimension %d, want %d", len(values), vector.Dimension)
	}
	return values, nil
}

// EmbedMany embeds texts one by one and returns a slice aligned with the
// input order. A nil entry marks an input that failed; successful entries
// around it keep their positions, so callers can tell exactly which inputs
// succeeded. The call as a whole only fails when the context is done.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return vecs, err
		}
		vec, err := c.Embed(ctx, text)
		if err != nil {
			c.logger.Warn("embedding failed, slot left empty", "index", i, "error", err)
			continue
		}
		vecs[i] = vec
	}
	return vecs, nil
}
