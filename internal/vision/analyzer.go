package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultModel    = "gemini-2.5-flash"
	maxTitleLength  = 115
	truncateMarkAt  = 112
	requestTimeout  = 60 * time.Second
	maxRetryElapsed = 30 * time.Second
)

const analyzePrompt = `Analyze this image for stock photography submission. Generate:

1. TITLE (max 115 characters):
   - Descriptive and SEO-friendly
   - Highlight main subject and key elements
   - Professional tone
   - No colons or special characters

2. DESCRIPTION (2-3 sentences, max 200 characters):
   - Detailed description of what's in the image
   - Include colors, mood, composition, and setting
   - Mention potential use cases
   - Professional and engaging

Format your response EXACTLY as:
TITLE: [your title here]
DESCRIPTION: [your description here]`

const titleOnlyPrompt = `Analyze this image for stock photography submission. Generate ONLY a TITLE:

Requirements:
- Maximum 115 characters
- Descriptive and SEO-friendly
- Highlight main subject and key elements
- Professional tone
- No colons or special characters

Format your response EXACTLY as:
TITLE: [your title here]`

// Result is a generated title/description pair for one image.
type Result struct {
	Title       string
	Description string
}

// Analyzer calls the Gemini vision API to describe an image crop. All
// failures are soft: callers receive nil and fall back to the generic
// title policy.
type Analyzer struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewAnalyzer(apiKey string, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		apiKey:   apiKey,
		endpoint: fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", defaultModel),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger.With("component", "vision"),
	}
}

// Enabled reports whether an API key is configured.
func (a *Analyzer) Enabled() bool {
	return a.apiKey != ""
}

// Analyze generates a title/description pair from PNG image bytes. Returns
// nil when the analyzer is disabled, the call fails, or the response cannot
// be parsed.
func (a *Analyzer) Analyze(ctx context.Context, image []byte) *Result {
	text, err := a.generate(ctx, analyzePrompt, image)
	if err != nil {
		a.logger.Warn("image analysis failed", "error", err)
		return nil
	}

	result := parseResult(text)
	if result == nil {
		a.logger.Warn("could not parse title/description from response")
		return nil
	}

	a.logger.Info("generated content", "title", trimForLog(result.Title))
	return result
}

// AnalyzeTitle is the faster title-only variant. Returns "" on any failure.
func (a *Analyzer) AnalyzeTitle(ctx context.Context, image []byte) string {
	text, err := a.generate(ctx, titleOnlyPrompt, image)
	if err != nil {
		a.logger.Warn("title generation failed", "error", err)
		return ""
	}

	title := parseLabel(text, "TITLE:")
	if title == "" {
		a.logger.Warn("could not parse title from response")
	}
	return title
}

type generatePayload struct {
	Contents []payloadContent `json:"contents"`
}

type payloadContent struct {
	Parts []payloadPart `json:"parts"`
}

type payloadPart struct {
	Text       string           `json:"text,omitempty"`
	InlineData *payloadImageRef `json:"inline_data,omitempty"`
}

type payloadImageRef struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (a *Analyzer) generate(ctx context.Context, prompt string, image []byte) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("gemini API key not configured")
	}

	payload := generatePayload{
		Contents: []payloadContent{{
			Parts: []payloadPart{
				{Text: prompt},
				{InlineData: &payloadImageRef{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxRetryElapsed

	var text string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", a.apiKey)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := fmt.Errorf("gemini API status %d: %s", resp.StatusCode, respBody)
			switch resp.StatusCode {
			case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
				return apiErr
			default:
				return backoff.Permanent(apiErr)
			}
		}

		var parsed generateResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no content"))
		}

		text = parsed.Candidates[0].Content.Parts[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return text, nil
}

// parseResult extracts the labeled TITLE/DESCRIPTION lines. Both labels are
// required; a response missing either is a parse failure.
func parseResult(text string) *Result {
	title := parseLabel(text, "TITLE:")
	description := parseLabel(text, "DESCRIPTION:")
	if title == "" || description == "" {
		return nil
	}
	return &Result{Title: title, Description: description}
}

func parseLabel(text, label string) string {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToUpper(line), label) {
			continue
		}
		value := strings.TrimSpace(line[len(label):])
		value = strings.Trim(value, `"'`)
		if label == "TITLE:" {
			// Clip on runes so multi-byte titles stay valid UTF-8.
			if runes := []rune(value); len(runes) > maxTitleLength {
				value = string(runes[:truncateMarkAt]) + "..."
			}
		}
		return value
	}
	return ""
}

func trimForLog(s string) string {
	if len(s) > 50 {
		return s[:50]
	}
	return s
}
