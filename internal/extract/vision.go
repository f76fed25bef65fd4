package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	visionRetries = 3
	retryDelay    = time.Second
	noTextMarker  = "NO_TEXT_FOUND"
)

// VisionConfig configures the hosted vision-model OCR engine.
type VisionConfig struct {
	APIKey    string
	Model     string
	Providers []string
}

// Vision performs OCR by sending the image to an OpenRouter vision
// model. Selected by configuration when a local tesseract install is
// unavailable or produces poor results.
type Vision struct {
	cfg      VisionConfig
	client   *http.Client
	endpoint string
	log      *zap.SugaredLogger
}

func NewVision(log *zap.SugaredLogger, cfg VisionConfig) *Vision {
	return &Vision{cfg: cfg, client: &http.Client{}, endpoint: openRouterURL, log: log}
}

func (v *Vision) Name() string { return "vision" }

type visionMessage struct {
	Role    string          `json:"role"`
	Content []visionContent `json:"content"`
}

type visionContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *visionImageURL `json:"image_url,omitempty"`
}

type visionImageURL struct {
	URL string `json:"url"`
}

type providerPreferences struct {
	Order          []string `json:"order,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type visionRequest struct {
	Model       string               `json:"model"`
	Messages    []visionMessage      `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Provider    *providerPreferences `json:"provider,omitempty"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Recognize sends the PNG to the configured model and returns the raw
// extracted text. A model reply of NO_TEXT_FOUND is an empty success.
func (v *Vision) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	if v.cfg.APIKey == "" {
		return "", &OCRError{Engine: v.Name(), Err: fmt.Errorf("API key is required")}
	}
	if v.cfg.Model == "" {
		return "", &OCRError{Engine: v.Name(), Err: fmt.Errorf("model is required")}
	}

	prompt := "Perform OCR on this image. Return ONLY the raw extracted text with:\n" +
		"- No formatting\n" +
		"- No XML/HTML tags\n" +
		"- No markdown\n" +
		"- No explanations\n" +
		"If no text found, return '" + noTextMarker + "'"
	if lang != "" {
		prompt += "\nThe text language hint is: " + lang
	}

	req := visionRequest{
		Model: v.cfg.Model,
		Messages: []visionMessage{{
			Role: "user",
			Content: []visionContent{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &visionImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		Temperature: 0.1,
		MaxTokens:   2000,
		Provider:    v.providerPreferences(),
	}

	var lastErr error
	for attempt := 0; attempt < visionRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * retryDelay):
			case <-ctx.Done():
				return "", &OCRError{Engine: v.Name(), Err: ctx.Err()}
			}
		}

		text, err := v.request(ctx, req)
		if err == nil {
			return normalizeText(text), nil
		}
		if ctx.Err() != nil {
			return "", &OCRError{Engine: v.Name(), Err: ctx.Err()}
		}
		lastErr = err
		v.log.Debugw("vision ocr attempt failed", "attempt", attempt+1, "error", err)
	}
	return "", &OCRError{Engine: v.Name(), Err: fmt.Errorf("failed after %d attempts: %w", visionRetries, lastErr)}
}

func (v *Vision) providerPreferences() *providerPreferences {
	if len(v.cfg.Providers) == 0 {
		return nil
	}
	allowFallbacks := false
	return &providerPreferences{Order: v.cfg.Providers, AllowFallbacks: &allowFallbacks}
}

func (v *Vision) request(ctx context.Context, req visionRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+v.cfg.APIKey)
	httpReq.Header.Set("X-Title", "Sahayak")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s (type: %s)", parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in API response")
	}

	text := parsed.Choices[0].Message.Content
	if text == noTextMarker {
		return "", nil
	}
	return text, nil
}
