// ABOUTME: Translates natural-language instructions into validated engine commands
// ABOUTME: Calls the LLM backend, parses its answer, checks it against the catalog, and records history

package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/engine-bridge/internal/auth"
	"github.com/2389/engine-bridge/internal/command"
	"github.com/2389/engine-bridge/internal/history"
	"github.com/2389/engine-bridge/internal/ollama"
)

// ErrEmptyText is returned when there is nothing to translate.
var ErrEmptyText = errors.New("text is required")

// Sentinels for errors.Is against *Error.
var (
	ErrBackendUnreachable = errors.New("llm backend unreachable")
	ErrBackendError       = errors.New("llm backend returned an error")
	ErrUnparseable        = errors.New("no command found in llm response")
	ErrInvalidCommand     = errors.New("llm proposed an invalid command")
)

// ErrorKind classifies translation failures.
type ErrorKind string

const (
	KindBackendUnreachable ErrorKind = "backend_unreachable"
	KindBackendError       ErrorKind = "backend_error"
	KindCanceled           ErrorKind = "canceled"
	KindUnparseable        ErrorKind = "unparseable"
	KindInvalidCommand     ErrorKind = "invalid_command"
)

// Error is a translation failure. Raw holds the LLM's answer when there was one.
type Error struct {
	Kind ErrorKind
	Raw  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("translate: %s: %v", e.Kind, e.Err)
	}
	return "translate: " + string(e.Kind)
}

func (e *Error) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case KindBackendUnreachable:
		sentinel = ErrBackendUnreachable
	case KindBackendError:
		sentinel = ErrBackendError
	case KindCanceled:
		sentinel = context.Canceled
	case KindUnparseable:
		sentinel = ErrUnparseable
	case KindInvalidCommand:
		sentinel = ErrInvalidCommand
	}
	return []error{sentinel, e.Err}
}

// Chatter is the LLM backend.
type Chatter interface {
	Chat(ctx context.Context, model, system, user string) (string, error)
}

// Recorder receives translation requests and LLM answers.
type Recorder interface {
	Append(origin history.Origin, payload any) history.Entry
}

// Result is a successful translation.
type Result struct {
	Model       string
	RawResponse string
	Command     command.Command
	Confidence  Confidence
	Method      Method
}

// Config configures a Translator.
type Config struct {
	Backend      Chatter
	Catalog      *command.Catalog
	Recorder     Recorder
	DefaultModel string
	// Timeout bounds each backend call (none if zero).
	Timeout time.Duration
	// RequestsPerSecond paces backend calls (unlimited if zero).
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// Translator turns text into commands. It never executes them.
type Translator struct {
	backend      Chatter
	catalog      *command.Catalog
	recorder     Recorder
	defaultModel string
	timeout      time.Duration
	limiter      *rate.Limiter
	prompt       string
	logger       *slog.Logger
}

// New creates a Translator. The system prompt is rendered once from the catalog.
func New(cfg Config) *Translator {
	if cfg.Catalog == nil {
		cfg.Catalog = command.Builtin()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	t := &Translator{
		backend:      cfg.Backend,
		catalog:      cfg.Catalog,
		recorder:     cfg.Recorder,
		defaultModel: cfg.DefaultModel,
		timeout:      cfg.Timeout,
		prompt:       SystemPrompt(cfg.Catalog),
		logger:       cfg.Logger.With("component", "translate"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return t
}

// Prompt returns the system prompt sent with every request.
func (t *Translator) Prompt() string {
	return t.prompt
}

// Translate asks model (or the default model) to turn text into a command.
func (t *Translator) Translate(ctx context.Context, text, model string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if model == "" {
		model = t.defaultModel
	}

	request := map[string]any{"text": text, "model": model}
	if sub := auth.SubjectFrom(ctx); sub != "" {
		request["subject"] = sub
	}
	t.record(history.OriginClientNLRequest, request)

	raw, err := t.chat(ctx, model, text)
	if err != nil {
		kind := backendKind(ctx, err)
		t.logger.Warn("llm backend call failed", "model", model, "kind", kind, "error", err)
		return nil, t.fail(&Error{Kind: kind, Err: err}, model)
	}

	outcome := Parse(raw, t.catalog)
	if outcome.Kind == OutcomeUnparseable {
		t.logger.Warn("no command in llm response", "model", model, "chars", len(raw))
		return nil, t.fail(&Error{Kind: KindUnparseable, Raw: raw}, model)
	}

	if err := t.catalog.Check(outcome.Command); err != nil {
		t.logger.Warn("llm proposed invalid command", "model", model, "command", outcome.Command.Name, "error", err)
		return nil, t.fail(&Error{Kind: KindInvalidCommand, Raw: raw, Err: err}, model)
	}

	res := &Result{
		Model:       model,
		RawResponse: raw,
		Command:     outcome.Command,
		Confidence:  outcome.Confidence(),
		Method:      outcome.Method(),
	}
	t.record(history.OriginLLMResponse, map[string]any{
		"model":      model,
		"raw":        raw,
		"command":    res.Command,
		"method":     res.Method,
		"confidence": res.Confidence,
	})
	t.logger.Info("translated instruction",
		"model", model,
		"command", res.Command.Name,
		"method", res.Method,
	)
	return res, nil
}

func (t *Translator) chat(ctx context.Context, model, text string) (string, error) {
	if t.backend == nil {
		return "", errors.New("no llm backend configured")
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}
	raw, err := t.backend.Chat(ctx, model, t.prompt, text)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return raw, err
}

// backendKind classifies a failed backend call. Only transport failures and
// expired deadlines mean the backend is unreachable; an HTTP error status
// means it answered.
func backendKind(ctx context.Context, err error) ErrorKind {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ollama.ErrUnreachable):
		return KindBackendUnreachable
	default:
		return KindBackendError
	}
}

// fail records the failure as the llm_response and returns err.
func (t *Translator) fail(err *Error, model string) error {
	payload := map[string]any{
		"model": model,
		"kind":  err.Kind,
		"error": err.Error(),
	}
	if err.Raw != "" {
		payload["raw"] = err.Raw
	}
	t.record(history.OriginLLMResponse, payload)
	return err
}

func (t *Translator) record(origin history.Origin, payload any) {
	if t.recorder != nil {
		t.recorder.Append(origin, payload)
	}
}
