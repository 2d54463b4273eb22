package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// maxOutputTokens caps answer length; retrieved context plus a concise
// answer fits comfortably under this.
const maxOutputTokens = 800

// Complete sends a prompt under the given system instruction and returns
// the generated text. Temperature is caller-supplied so deterministic test
// doubles and reproducible runs stay possible.
func (c *Client) Complete(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("cannot complete empty prompt")
	}
	if err := c.wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: maxOutputTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	var text string
	err := c.withRetry(callCtx, func() error {
		resp, err := c.genai.Models.GenerateContent(callCtx, c.genModel, genai.Text(prompt), cfg)
		if err != nil {
			return err
		}
		text = resp.Text()
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("empty completion response")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return text, nil
}
