// Package advisory calls the external scoring service that refines
// quantitative signals with a secondary conviction score. The call is always
// bounded by a timeout and failures degrade to the quantitative signal alone;
// this package never blocks a decision cycle beyond its budget.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tradepilot/internal/logger"
	"tradepilot/internal/types"
)

// ErrUnavailable classifies any transport, status, or parse failure. Callers
// treat it as a signal to fall back, never to abort.
var ErrUnavailable = errors.New("advisory service unavailable")

const systemPrompt = `You are a trading signal reviewer. Given normalized indicator scores for one symbol, respond with JSON only: {"score": <0-100 integer conviction>, "conviction": "<one sentence>"}.`

// Client talks to a chat-completions style endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int

	httpc *http.Client
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		Timeout:    timeout,
		MaxRetries: maxRetries,
		httpc:      &http.Client{Timeout: timeout},
	}
}

// RefineSignal sends the indicator snapshot and returns the refinement. The
// whole exchange, retries included, stays inside the client's timeout budget
// via the derived context.
func (c *Client) RefineSignal(ctx context.Context, symbol string, snapshot types.IndicatorSnapshot) (types.Refinement, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return types.Refinement{}, fmt.Errorf("%w: encode snapshot: %v", ErrUnavailable, err)
	}
	userPrompt := fmt.Sprintf("symbol=%s indicators=%s", symbol, payload)

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return types.Refinement{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(wait):
			}
		}
		content, status, err := c.complete(ctx, userPrompt)
		if err != nil {
			lastErr = err
			if retryableStatus(status) {
				continue
			}
			break
		}
		ref, err := parseRefinement(content)
		if err != nil {
			lastErr = err
			break
		}
		return ref, nil
	}
	return types.Refinement{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) complete(ctx context.Context, userPrompt string) (string, int, error) {
	url := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasSuffix(url, "/chat/completions") {
		url += "/chat/completions"
	}
	body := map[string]any{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0,
	}
	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		return "", resp.StatusCode, fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", resp.StatusCode, err
	}
	if len(r.Choices) == 0 {
		return "", resp.StatusCode, fmt.Errorf("empty choices")
	}
	return r.Choices[0].Message.Content, resp.StatusCode, nil
}

// parseRefinement tolerates fenced or prose-wrapped JSON from the model.
func parseRefinement(content string) (types.Refinement, error) {
	content = stripFences(content)
	doc := gjson.Parse(content)
	score := doc.Get("score")
	if !score.Exists() {
		// Some models nest the payload under a wrapper object.
		score = doc.Get("result.score")
	}
	if !score.Exists() {
		logger.Debugf("advisory: unparseable response: %.120s", content)
		return types.Refinement{}, fmt.Errorf("no score in response")
	}
	val := score.Float()
	if val < 0 {
		val = 0
	}
	if val > 100 {
		val = 100
	}
	return types.Refinement{
		Refined:    true,
		Score:      val,
		Conviction: strings.TrimSpace(doc.Get("conviction").String()),
	}, nil
}

// retryableStatus covers rate limiting and transient upstream failures. A
// zero status means the request never completed (transport error) and is
// retried too.
func retryableStatus(status int) bool {
	switch status {
	case 0, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	return strings.TrimSpace(s)
}
