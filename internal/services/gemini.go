package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"supportdesk/internal/config"
	"supportdesk/internal/utils"
)

// GeminiService wraps the generative backend. The streaming path is used by
// the reply pipeline; Complete is for the non-streaming suggestion-style
// calls and carries the retry budget, the streaming call does not.
type GeminiService struct {
	client *genai.Client
	config *config.Config
}

func NewGeminiService(ctx context.Context, cfg *config.Config) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{client: client, config: cfg}, nil
}

// moderationSettings is the fixed moderate threshold applied to every
// generation call. A blocked generation surfaces as a stream error upstream,
// not as a blocked-content marker.
func moderationSettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, len(categories))
	for i, cat := range categories {
		settings[i] = &genai.SafetySetting{
			Category:  cat,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		}
	}
	return settings
}

func (g *GeminiService) generateConfig(systemInstruction string) *genai.GenerateContentConfig {
	temp := g.config.GeminiTemperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(g.config.GeminiMaxOutputTokens),
		SafetySettings:  moderationSettings(),
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	return cfg
}

// Stream invokes the model in streaming mode, forwarding each token chunk to
// the sink as soon as it arrives while accumulating the full text. The
// accumulated text is returned only when the upstream stream signals natural
// completion; any upstream or sink error aborts with whatever error occurred
// and the caller must not persist.
func (g *GeminiService) Stream(
	ctx context.Context,
	systemInstruction string,
	history []*genai.Content,
	sink func(chunk string) error,
) (string, error) {
	cfg := g.generateConfig(systemInstruction)

	var full strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.config.GeminiModel, history, cfg) {
		if err != nil {
			return "", fmt.Errorf("gemini stream error: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			full.WriteString(part.Text)
			if err := sink(part.Text); err != nil {
				return "", fmt.Errorf("stream sink closed: %w", err)
			}
		}
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return full.String(), nil
}

// Complete performs a non-streaming generation with exponential backoff, up
// to three attempts. Only quota, overload and timeout errors are retried.
func (g *GeminiService) Complete(ctx context.Context, systemInstruction, prompt string) (string, error) {
	const maxRetries = 3
	cfg := g.generateConfig(systemInstruction)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			utils.LogInfo(ctx, "retrying generation",
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		resp, err := g.client.Models.GenerateContent(callCtx, g.config.GeminiModel, genai.Text(prompt), cfg)
		cancel()

		if err == nil && resp != nil {
			return responseText(resp), nil
		}
		lastErr = err

		if err != nil && !retryable(err) {
			return "", fmt.Errorf("gemini error: %w", err)
		}
	}

	return "", fmt.Errorf("gemini failed after %d retries: %w", maxRetries, lastErr)
}

func retryable(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"quota", "429", "RESOURCE_EXHAUSTED",
		"503", "UNAVAILABLE", "overloaded",
		"timeout", "deadline exceeded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func responseText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}
