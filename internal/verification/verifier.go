package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"greenfin/portal/portal-backend/pkg/llm"
)

var ErrNoJSON = errors.New("no JSON object in model response")

// Config holds the verifier limits
type Config struct {
	Timeout          time.Duration
	InvoiceTextLimit int
	MaxTokens        int
}

// Verifier decides whether a purchase qualifies for green credits
type Verifier struct {
	client llm.ChatClient
	config Config
	logger *zap.Logger
}

// NewVerifier creates a verifier. A nil client means no model is configured
// and every verdict comes from the keyword fallback.
func NewVerifier(client llm.ChatClient, config Config, logger *zap.Logger) *Verifier {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Verifier{
		client: client,
		config: config,
		logger: logger,
	}
}

// Enabled reports whether an external model is configured
func (v *Verifier) Enabled() bool {
	return v.client != nil
}

// Verify never fails: model errors degrade to the keyword fallback.
func (v *Verifier) Verify(ctx context.Context, req Request) Outcome {
	var out Outcome
	if v.client == nil {
		out = Outcome{Verdict: KeywordFallback(req.ProductName), Method: MethodFallback}
	} else {
		verdict, err := v.askModel(ctx, req)
		if err != nil {
			v.logger.Warn("Model verification failed, using keyword fallback",
				zap.String("product", req.ProductName),
				zap.Error(err))
			out = Outcome{
				Verdict:  KeywordFallback(req.ProductName),
				Method:   MethodFallback,
				Degraded: true,
				Cause:    err,
			}
		} else {
			out = Outcome{Verdict: verdict, Method: MethodAI}
		}
	}

	out.Verdict, out.Overridden = applyKeywordOverride(req.ProductName, out.Verdict)
	out.Verdict = normalize(out.Verdict)

	if out.Overridden {
		v.logger.Info("Keyword override approved product",
			zap.String("product", req.ProductName),
			zap.String("method", string(out.Method)))
	}
	return out
}

func (v *Verifier) askModel(ctx context.Context, req Request) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	invoiceText := truncateRunes(strings.TrimSpace(req.InvoiceText), v.config.InvoiceTextLimit)
	messages := []llm.Message{
		llm.System(buildSystemPrompt(invoiceText != "")),
		llm.User(buildUserPrompt(req, invoiceText)),
	}

	resp, err := v.client.Chat(ctx, messages, &llm.Options{Temperature: 0, MaxTokens: v.config.MaxTokens})
	if err != nil {
		return Verdict{}, fmt.Errorf("chat completion: %w", err)
	}

	raw, ok := extractJSONObject(resp.Content)
	if !ok {
		return Verdict{}, ErrNoJSON
	}

	var parsed modelVerdict
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Verdict{}, fmt.Errorf("parse model verdict: %w", err)
	}
	return parsed.toVerdict(), nil
}
