// ABOUTME: Client subcommands that talk to a running bridge over HTTP
// ABOUTME: health, status, models, and send; a token is minted when auth is configured

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/engine-bridge/internal/auth"
	"github.com/2389/engine-bridge/internal/bridge"
	"github.com/2389/engine-bridge/internal/config"
	"github.com/2389/engine-bridge/internal/engine"
	"github.com/2389/engine-bridge/internal/status"
)

// apiClient calls the bridge API described by a config file.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// newAPIClient parses the shared client flags and resolves the bridge address.
func newAPIClient(name string, args []string) (*apiClient, []string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file path")
	url := fs.String("url", "", "bridge base URL (default from server.http_addr)")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg, _, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	c := &apiClient{
		baseURL: strings.TrimRight(*url, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	if c.baseURL == "" {
		c.baseURL = "http://" + cfg.Server.HTTPAddr
	}
	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, nil, err
		}
		if c.token, err = verifier.Generate("cli", 5*time.Minute); err != nil {
			return nil, nil, fmt.Errorf("generating token: %w", err)
		}
	}
	return c, fs.Args(), nil
}

// do performs a request and returns the status code and body.
func (c *apiClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func runHealth(ctx context.Context, args []string) error {
	c, _, err := newAPIClient("health", args)
	if err != nil {
		return err
	}

	code, _, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", code)
	}

	_, body, err := c.do(ctx, http.MethodGet, "/health/ready", nil)
	if err != nil {
		return err
	}
	fmt.Printf("healthy, %s\n", strings.TrimSpace(string(body)))
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	c, _, err := newAPIClient("status", args)
	if err != nil {
		return err
	}

	code, body, err := c.do(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return apiError(code, body)
	}

	var snap status.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}
	printStatus(snap)
	return nil
}

func printStatus(snap status.Snapshot) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	mark := func(ok bool) {
		if ok {
			green.Print("●")
		} else {
			red.Print("●")
		}
	}

	mark(snap.MCPConnected)
	fmt.Printf(" engine  %s", snap.Engine.State)
	if snap.Engine.Endpoint != "" {
		gray.Printf("  %s", snap.Engine.Endpoint)
	}
	if snap.Engine.LastError != "" {
		red.Printf("  %s", snap.Engine.LastError)
	}
	fmt.Println()

	mark(snap.OllamaAvailable)
	fmt.Print(" ollama  ")
	if snap.OllamaAvailable {
		fmt.Print("available")
	} else {
		fmt.Print("unavailable")
	}
	if snap.OllamaCheckedAt != nil {
		gray.Printf("  checked %s", snap.OllamaCheckedAt.Local().Format("15:04:05"))
	}
	fmt.Println()

	if len(snap.MessageHistory) == 0 {
		return
	}
	fmt.Printf("\nrecent history (last sequence %d)\n", snap.LastSequence)
	for _, e := range snap.MessageHistory {
		gray.Printf("  %6d %s ", e.Seq, e.Timestamp.Local().Format("15:04:05"))
		fmt.Printf("%-18s %s\n", e.Origin, truncate(string(e.Payload), 100))
	}
}

func runModels(ctx context.Context, args []string) error {
	c, _, err := newAPIClient("models", args)
	if err != nil {
		return err
	}

	_, body, err := c.do(ctx, http.MethodGet, "/api/models", nil)
	if err != nil {
		return err
	}

	var resp bridge.ModelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding models: %w", err)
	}
	if resp.Status == "error" {
		return fmt.Errorf("models: %s", resp.Message)
	}
	if resp.Status == "warning" {
		color.Yellow("warning: %s", resp.Message)
	}
	for _, m := range resp.Models {
		fmt.Println(m)
	}
	return nil
}

func runSend(ctx context.Context, args []string) error {
	c, rest, err := newAPIClient("send", args)
	if err != nil {
		return err
	}
	req, err := parseSendArgs(rest)
	if err != nil {
		return err
	}

	code, body, err := c.do(ctx, http.MethodPost, "/api/send-command", req)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return apiError(code, body)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(out.String())

	var reply engine.Reply
	if json.Unmarshal(body, &reply) == nil && !reply.OK() {
		return fmt.Errorf("engine error: %s", reply.ErrorMessage())
	}
	return nil
}

// parseSendArgs turns `<command> [json-params]` into a request body.
func parseSendArgs(args []string) (bridge.SendCommandRequest, error) {
	switch len(args) {
	case 1:
		return bridge.SendCommandRequest{Command: args[0]}, nil
	case 2:
		params := json.RawMessage(args[1])
		if !json.Valid(params) {
			return bridge.SendCommandRequest{}, fmt.Errorf("parameters are not valid JSON: %s", args[1])
		}
		return bridge.SendCommandRequest{Command: args[0], Parameters: params}, nil
	default:
		return bridge.SendCommandRequest{}, fmt.Errorf("usage: engine-bridge send <command> [json-params]")
	}
}

func apiError(code int, body []byte) error {
	var e struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("%s (%s, status %d)", e.Error, e.Kind, code)
	}
	return fmt.Errorf("status %d: %s", code, truncate(strings.TrimSpace(string(body)), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
