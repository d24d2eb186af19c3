// ABOUTME: HTTP handlers for status, models, connect, direct and natural-language commands
// ABOUTME: Validates request bodies before delegating and maps typed failures to status codes

package bridge

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

	"github.com/2389/engine-bridge/internal/auth"
	"github.com/2389/engine-bridge/internal/command"
	"github.com/2389/engine-bridge/internal/config"
	"github.com/2389/engine-bridge/internal/engine"
	"github.com/2389/engine-bridge/internal/history"
	"github.com/2389/engine-bridge/internal/ollama"
	"github.com/2389/engine-bridge/internal/translate"
)

const maxBodyBytes = 1 << 20

// Error kinds reported by the bridge itself.
const (
	kindValidation         = "validation"
	kindInternal           = "internal"
	kindBackendUnreachable = "backend_unreachable"
	kindBackendError       = "backend_error"
	kindCanceled           = "canceled"
)

var errEmptyBody = errors.New("request body is empty")

// ConnectRequest is the JSON request body for POST /api/connect.
type ConnectRequest struct {
	URL string `json:"url"`
}

// ConnectResponse is the JSON response for POST /api/connect and /api/disconnect.
type ConnectResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Kind      string `json:"kind,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
}

// ProcessNLRequest is the JSON request body for POST /api/process-nl.
type ProcessNLRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// ProcessNLResponse is the JSON response for POST /api/process-nl.
type ProcessNLResponse struct {
	Status           string               `json:"status"`
	Model            string               `json:"model,omitempty"`
	OllamaResponse   string               `json:"ollama_response,omitempty"`
	CommandExtracted *command.Command     `json:"command_extracted,omitempty"`
	Confidence       translate.Confidence `json:"confidence,omitempty"`
	Method           translate.Method     `json:"method,omitempty"`
	MCPResponse      json.RawMessage      `json:"mcp_response,omitempty"`
	Message          string               `json:"message,omitempty"`
	Kind             string               `json:"kind,omitempty"`
}

// SendCommandRequest is the JSON request body for POST /api/send-command.
type SendCommandRequest struct {
	Command    string          `json:"command"`
	Parameters json.RawMessage `json:"parameters"`
}

// ModelsResponse is the JSON response for GET /api/models.
type ModelsResponse struct {
	Status  string   `json:"status"`
	Models  []string `json:"models"`
	RawData string   `json:"raw_data,omitempty"`
	Message string   `json:"message,omitempty"`
	Kind    string   `json:"kind,omitempty"`
}

// CommandsResponse is the JSON response for GET /api/commands.
type CommandsResponse struct {
	Count    int            `json:"count"`
	Commands []command.Spec `json:"commands"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// handleStatus handles GET /api/status.
func (b *Bridge) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.status.Snapshot())
}

// handleModels handles GET /api/models. A response the client could only
// pattern-match is reported with status "warning" and the raw body; ?raw=1
// includes the raw body on every response.
func (b *Bridge) handleModels(w http.ResponseWriter, r *http.Request) {
	var withRaw bool
	if v := r.URL.Query().Get("raw"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			b.reject(w, r, fmt.Errorf("invalid raw parameter: %w", err))
			return
		}
		withRaw = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), b.cfg.ModelsTimeout)
	defer cancel()

	list, err := b.models.ListModels(ctx)
	if err != nil {
		code, kind := http.StatusBadGateway, kindBackendError
		switch {
		case r.Context().Err() != nil:
			code, kind = http.StatusServiceUnavailable, kindCanceled
		case errors.Is(err, ollama.ErrUnreachable):
			kind = kindBackendUnreachable
			b.status.Observe(false)
		}
		b.logger.Warn("listing models failed", "kind", kind, "error", err)
		writeJSON(w, code, ModelsResponse{
			Status:  "error",
			Models:  []string{},
			Message: err.Error(),
			Kind:    kind,
		})
		return
	}
	b.status.Observe(true)

	resp := ModelsResponse{Status: "success", Models: list.Models}
	if resp.Models == nil {
		resp.Models = []string{}
	}
	if withRaw {
		resp.RawData = list.Raw
	}
	switch {
	case list.Degraded:
		resp.Status = "warning"
		resp.RawData = list.Raw
		resp.Message = "model list recovered from an unexpected response"
	case len(resp.Models) == 0:
		resp.Status = "error"
		resp.Message = "No models available"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConnect handles POST /api/connect. An empty url selects the
// configured default endpoint.
func (b *Bridge) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		b.reject(w, r, err)
		return
	}
	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		endpoint = b.cfg.DefaultEngineURL
	}
	if err := config.ValidateEngineURL(endpoint); err != nil {
		b.reject(w, r, err)
		return
	}

	b.recordClient(r, map[string]any{
		"action": "connect",
		"url":    endpoint,
	})

	sess, err := b.engine.Connect(r.Context(), endpoint)
	if err != nil {
		code, kind := connectStatus(err)
		b.history.Append(history.OriginEngineInbound, map[string]any{
			"local":  true,
			"action": "connect",
			"status": engine.StatusError,
			"kind":   kind,
			"url":    endpoint,
			"error":  err.Error(),
		})
		writeJSON(w, code, ConnectResponse{Success: false, Message: err.Error(), Kind: kind})
		return
	}

	b.history.Append(history.OriginEngineInbound, map[string]any{
		"local":      true,
		"action":     "connect",
		"status":     engine.StatusSuccess,
		"url":        endpoint,
		"session_id": sess.ID,
		"protocol":   sess.Protocol,
	})
	writeJSON(w, http.StatusOK, ConnectResponse{
		Success:   true,
		Message:   "connected to " + endpoint,
		SessionID: sess.ID,
		Protocol:  sess.Protocol,
	})
}

// handleDisconnect handles POST /api/disconnect. It is idempotent.
func (b *Bridge) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	b.recordClient(r, map[string]any{"action": "disconnect"})
	b.engine.Disconnect()
	writeJSON(w, http.StatusOK, ConnectResponse{Success: true, Message: "disconnected"})
}

// handleSendCommand handles POST /api/send-command. The engine's reply
// frame is returned verbatim, including replies reporting an engine error.
func (b *Bridge) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req SendCommandRequest
	if err := decodeBody(w, r, &req); err != nil {
		b.reject(w, r, err)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		b.reject(w, r, err)
		return
	}

	b.recordClient(r, map[string]any{
		"command":    cmd.Name,
		"parameters": cmd.Parameters,
	})

	reply, err := b.dispatch.Execute(r.Context(), cmd, b.cfg.CommandTimeout)
	if err != nil {
		code, kind := dispatchStatus(err)
		b.sendJSONError(w, code, kind, err.Error())
		return
	}
	if !reply.OK() {
		b.logger.Warn("engine reported command error", "command", cmd.Name, "error", reply.ErrorMessage())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply.Raw)
}

// handleProcessNL handles POST /api/process-nl: translate, then execute.
func (b *Bridge) handleProcessNL(w http.ResponseWriter, r *http.Request) {
	var req ProcessNLRequest
	if err := decodeBody(w, r, &req); err != nil {
		b.reject(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		b.reject(w, r, translate.ErrEmptyText)
		return
	}

	res, err := b.translate.Translate(r.Context(), req.Text, req.Model)
	if err != nil {
		code, resp := b.translateFailure(err)
		writeJSON(w, code, resp)
		return
	}
	b.status.Observe(true)

	resp := ProcessNLResponse{
		Status:           "success",
		Model:            res.Model,
		OllamaResponse:   res.RawResponse,
		CommandExtracted: &res.Command,
		Confidence:       res.Confidence,
		Method:           res.Method,
	}

	reply, err := b.dispatch.Execute(r.Context(), res.Command, b.cfg.CommandTimeout)
	if err != nil {
		code, kind := dispatchStatus(err)
		resp.Status = "error"
		resp.Kind = kind
		resp.Message = err.Error()
		writeJSON(w, code, resp)
		return
	}
	if !reply.OK() {
		b.logger.Warn("engine reported command error", "command", res.Command.Name, "error", reply.ErrorMessage())
	}
	resp.MCPResponse = reply.Raw
	writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) translateFailure(err error) (int, ProcessNLResponse) {
	resp := ProcessNLResponse{Status: "error", Message: err.Error()}

	var te *translate.Error
	if !errors.As(err, &te) {
		if errors.Is(err, translate.ErrEmptyText) {
			resp.Kind = kindValidation
			return http.StatusBadRequest, resp
		}
		b.logger.Error("translation failed", "error", err)
		resp.Kind = kindInternal
		return http.StatusInternalServerError, resp
	}

	resp.Kind = string(te.Kind)
	resp.OllamaResponse = te.Raw
	switch te.Kind {
	case translate.KindBackendUnreachable:
		b.status.Observe(false)
		return http.StatusBadGateway, resp
	case translate.KindBackendError:
		// The backend answered, so reachability is unchanged.
		return http.StatusBadGateway, resp
	case translate.KindCanceled:
		return http.StatusServiceUnavailable, resp
	}
	b.status.Observe(true)
	return http.StatusUnprocessableEntity, resp
}

// handleCommands handles GET /api/commands.
func (b *Bridge) handleCommands(w http.ResponseWriter, r *http.Request) {
	specs := b.catalog.Specs()
	writeJSON(w, http.StatusOK, CommandsResponse{Count: len(specs), Commands: specs})
}

// handleHealth returns 200 OK if the server is alive.
func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once an engine session is live.
func (b *Bridge) handleReady(w http.ResponseWriter, r *http.Request) {
	info := b.engine.Info()
	if info.State != engine.StateConnected {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "engine %s", info.State)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (session %s)", info.SessionID)
}

// toCommand validates the request structurally. Absent or null parameters
// mean no parameters; anything other than an object is rejected.
func (req SendCommandRequest) toCommand() (command.Command, error) {
	name := strings.TrimSpace(req.Command)
	if name == "" {
		return command.Command{}, command.ErrEmptyName
	}

	params := map[string]any{}
	raw := bytes.TrimSpace(req.Parameters)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if raw[0] != '{' {
			return command.Command{}, errors.New("parameters must be a JSON object")
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return command.Command{}, fmt.Errorf("invalid parameters: %w", err)
		}
	}

	cmd := command.New(name, params)
	if err := cmd.Validate(); err != nil {
		return command.Command{}, err
	}
	return cmd, nil
}

// reject answers a malformed request with 400 and records it.
func (b *Bridge) reject(w http.ResponseWriter, r *http.Request, err error) {
	b.recordClient(r, map[string]any{
		"path":     r.URL.Path,
		"rejected": true,
		"kind":     kindValidation,
		"error":    err.Error(),
	})
	b.sendJSONError(w, http.StatusBadRequest, kindValidation, err.Error())
}

// recordClient appends a client_direct entry, tagged with the authenticated
// caller when there is one.
func (b *Bridge) recordClient(r *http.Request, payload map[string]any) {
	if sub := auth.SubjectFrom(r.Context()); sub != "" {
		payload["subject"] = sub
	}
	b.history.Append(history.OriginClientDirect, payload)
}

func connectStatus(err error) (int, string) {
	kind, ok := engine.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, kindInternal
	}
	switch kind {
	case engine.KindTimeout:
		return http.StatusGatewayTimeout, string(kind)
	case engine.KindCanceled:
		return http.StatusServiceUnavailable, string(kind)
	default:
		return http.StatusBadGateway, string(kind)
	}
}

func dispatchStatus(err error) (int, string) {
	kind, ok := engine.KindOf(err)
	if !ok {
		if errors.Is(err, command.ErrEmptyName) || errors.Is(err, command.ErrInvalidValue) {
			return http.StatusBadRequest, kindValidation
		}
		return http.StatusInternalServerError, kindInternal
	}
	switch kind {
	case engine.KindNotConnected:
		return http.StatusConflict, string(kind)
	case engine.KindTimeout:
		return http.StatusGatewayTimeout, string(kind)
	case engine.KindCanceled:
		return http.StatusServiceUnavailable, string(kind)
	default:
		return http.StatusBadGateway, string(kind)
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func (b *Bridge) sendJSONError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}
