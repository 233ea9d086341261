package keywords

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reelrank/reelrank/internal/config"
)

var (
	ErrUpstream          = errors.New("keyword suggestion failed")
	ErrMalformedResponse = errors.New("keyword suggestion returned an unexpected result")
)

// Suggester is the hosted model behind keyword generation.
type Suggester interface {
	Suggest(ctx context.Context, req GenerateRequest) ([]string, error)
	Explain(ctx context.Context, req ExplainRequest) (string, error)
}

// GeminiClient calls the Gemini generateContent REST endpoint and asks for
// JSON output matching a fixed schema.
type GeminiClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
}

func NewGeminiClient(cfg config.LLMConfig) *GeminiClient {
	return &GeminiClient{
		client:  &http.Client{},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
	Temperature      float64        `json:"temperature"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

var keywordsSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"keywords": map[string]any{
			"type":  "ARRAY",
			"items": map[string]any{"type": "STRING"},
		},
	},
	"required": []string{"keywords"},
}

var explanationSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"explanation": map[string]any{"type": "STRING"},
	},
	"required": []string{"explanation"},
}

func (c *GeminiClient) Suggest(ctx context.Context, req GenerateRequest) ([]string, error) {
	prompt := fmt.Sprintf(`You are an expert in generating SEO-relevant keywords for short-form videos.

Based on the following input and platform, suggest a list of keywords that will help the video rank higher and get more views and likes.

Input Method: %s
Input Text: %s
Platform: %s

Make sure that the keywords are relevant for the specified platform.
Respond with a JSON object with a "keywords" field containing an array of keywords.`,
		req.InputMethod, req.InputText, platformName(req.Platform))

	var out struct {
		Keywords *[]string `json:"keywords"`
	}
	if err := c.generate(ctx, prompt, keywordsSchema, &out); err != nil {
		return nil, err
	}
	if out.Keywords == nil {
		return nil, ErrMalformedResponse
	}

	keywords := make([]string, 0, len(*out.Keywords))
	for _, k := range *out.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords, nil
}

func (c *GeminiClient) Explain(ctx context.Context, req ExplainRequest) (string, error) {
	prompt := fmt.Sprintf(`You are an expert in SEO and social media marketing.

Given the keyword %q, the platform %q, and the input method %q, explain how to apply the keyword effectively.
Give specific examples of how to work the keyword into the %s for %s to maximize its SEO impact and audience engagement.
Respond with a JSON object with an "explanation" field.`,
		req.Keyword, platformName(req.Platform), req.InputMethod, req.InputMethod, platformName(req.Platform))

	var out struct {
		Explanation string `json:"explanation"`
	}
	if err := c.generate(ctx, prompt, explanationSchema, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Explanation) == "" {
		return "", ErrMalformedResponse
	}
	return out.Explanation, nil
}

// generate runs one prompt and decodes the model's JSON answer into out.
func (c *GeminiClient) generate(ctx context.Context, prompt string, schema map[string]any, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
			Temperature:      0.7,
		},
	})
	if err != nil {
		return fmt.Errorf("marshaling generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out", ErrUpstream)
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error.Message != "" {
			return fmt.Errorf("%w: HTTP %d: %s", ErrUpstream, resp.StatusCode, errorResp.Error.Message)
		}
		return fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	var gen generateContentResponse
	if err := json.Unmarshal(respBody, &gen); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrMalformedResponse, err)
	}
	if len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return ErrMalformedResponse
	}

	text := gen.Candidates[0].Content.Parts[0].Text
	if err := json.Unmarshal([]byte(stripFence(text)), out); err != nil {
		return fmt.Errorf("%w: decoding model output: %v", ErrMalformedResponse, err)
	}
	return nil
}

// stripFence removes a surrounding ```json fence if the model added one.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
