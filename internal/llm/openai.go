package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Config holds connection settings for an OpenAI-compatible API.
type Config struct {
	APIKey     string
	APIURL     string
	ChatModel  string
	EmbedModel string
}

// Client talks to an OpenAI-compatible chat and embeddings API. Vectors are
// reduced to TargetDims before being returned.
type Client struct {
	client    *http.Client
	apiKey    string
	apiURL    string
	chatModel string
	embModel  string
	projector Projector
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.ChatModel == "" || cfg.EmbedModel == "" {
		return nil, errors.New("llm: chat and embedding models are required")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1"
	}
	return &Client{
		client:    &http.Client{Timeout: 60 * time.Second},
		apiKey:    cfg.APIKey,
		apiURL:    apiURL,
		chatModel: cfg.ChatModel,
		embModel:  cfg.EmbedModel,
		projector: NewBucketProjector(TargetDims),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Model: c.embModel, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal embedding request: %w", err)
	}
	body, err := c.post(ctx, "/embeddings", payload)
	if err != nil {
		return nil, err
	}
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("llm: decode embedding response: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("llm: empty embedding returned")
	}
	return c.projector.Project(resp.Data[0].Embedding), nil
}

func (c *Client) Summarize(ctx context.Context, title, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following web page in 2-3 sentences. Be factual and concise.\n\nTitle: %s\n\n%s",
		title, truncateChars(text, 6000))
	return c.chat(ctx, "You summarize web pages.", prompt)
}

func (c *Client) RewriteQuery(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(
		"Rewrite this question as a short keyword search query for finding a matching web page. Reply with the query only.\n\nQuestion: %s",
		question)
	out, err := c.chat(ctx, "You rewrite questions into search queries.", prompt)
	if err != nil {
		return "", err
	}
	out = strings.Trim(out, `"`)
	if out == "" {
		return question, nil
	}
	return out, nil
}

func (c *Client) BestMatch(ctx context.Context, question string, candidates []Candidate) (int, error) {
	if len(candidates) == 0 {
		return NoMatch, nil
	}
	var b strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, cand.Title, cand.URL, truncateChars(cand.Excerpt, 1000))
	}
	prompt := fmt.Sprintf(
		"Question: %s\n\nCandidate pages:\n%s\nWhich page best answers the question? Reply with the page number only, or 0 if none of them do.",
		question, b.String())

	out, err := c.chat(ctx, "You pick the page that best answers a question.", prompt)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.Trim(out, ".")))
	if err != nil {
		return 0, fmt.Errorf("llm: unparsable best-match reply %q", out)
	}
	if n == 0 {
		return NoMatch, nil
	}
	if n < 1 || n > len(candidates) {
		return 0, fmt.Errorf("llm: best-match reply %d out of range", n)
	}
	return n - 1, nil
}

func (c *Client) Answer(ctx context.Context, question string, page Candidate) (string, error) {
	prompt := fmt.Sprintf(
		"Answer the question using only the page below. If the page does not contain the answer, say so.\n\nQuestion: %s\n\nPage: %s (%s)\n\n%s",
		question, page.Title, page.URL, truncateChars(page.Excerpt, 6000))
	return c.chat(ctx, "You answer questions grounded in a single web page.", prompt)
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal chat request: %w", err)
	}
	body, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		return "", err
	}
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("llm: decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}
	return body, nil
}

func truncateChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up so the cut never splits a multi-byte rune.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
