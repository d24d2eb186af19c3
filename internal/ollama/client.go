// ABOUTME: HTTP client for the Ollama API used to translate natural language
// ABOUTME: Streams /api/chat responses, lists models from /api/tags, and probes reachability

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnreachable is returned when the Ollama server cannot be reached.
var ErrUnreachable = errors.New("ollama unreachable")

// maxBodySize caps non-streamed response bodies.
const maxBodySize = 4 << 20

// maxLineSize caps a single NDJSON line in a streamed chat response.
const maxLineSize = 1 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("ollama: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to one Ollama server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for baseURL. A nil httpClient uses http.DefaultClient;
// per-call deadlines come from the context.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "ollama"),
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// Chat sends a system and user message to model and returns the assistant's
// complete reply, accumulated from the streamed chunks.
func (c *Client) Chat(ctx context.Context, model, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: true,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshaling chat request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var (
		out  strings.Builder
		done bool
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return "", fmt.Errorf("ollama: invalid stream chunk %q", truncate(string(line), 120))
		}
		chunk := gjson.ParseBytes(line)
		if msg := chunk.Get("error"); msg.Exists() {
			return "", fmt.Errorf("ollama: %s", msg.String())
		}
		out.WriteString(chunk.Get("message.content").String())
		if chunk.Get("done").Bool() {
			done = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: reading chat stream: %v", ErrUnreachable, err)
	}
	if !done {
		c.logger.Warn("chat stream ended without done marker", "model", model, "chars", out.Len())
		if out.Len() == 0 {
			return "", fmt.Errorf("%w: chat stream ended early", ErrUnreachable)
		}
	}
	return out.String(), nil
}

// Ping checks that the server answers. The response body is discarded.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()
	return nil
}

// do performs a request and returns the response when the status is 2xx.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("ollama: creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: truncate(msg, 200)}
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
