// Package classifier suggests a category and priority for a ticket description
// by asking a hosted language model. Every failure is logged and reported to
// the caller as "no suggestion"; errors never cross the package boundary.
package classifier

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/domain"
)

const (
	systemPrompt = "You are a helpful assistant that outputs JSON."
	// temperature is fixed for every provider and is not configurable.
	temperature = 0.3
)

// Completion is a single prompt sent to a provider.
type Completion struct {
	System      string
	Prompt      string
	Temperature float32
}

// Provider performs one text-completion round trip against an LLM vendor.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Completion) (string, error)
}

// Classifier maps ticket descriptions to suggested classifications.
// It is safe for concurrent use.
type Classifier struct {
	provider Provider
	logger   *zap.Logger
}

// New builds a classifier for the configured provider. A missing credential
// yields a disabled classifier that never calls out.
func New(ctx context.Context, cfg config.ClassifierConfig, logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	apiKey := cfg.APIKey()
	if apiKey == "" {
		logger.Warn("classifier api key not set; ai classification disabled",
			zap.String("provider", cfg.Provider))
		return &Classifier{logger: logger}, nil
	}

	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		provider = NewOpenAIProvider(apiKey, cfg.Model, cfg.OpenAIBaseURL, cfg.Timeout())
	case config.ProviderGemini:
		provider, err = NewGeminiProvider(ctx, apiKey, cfg.Model)
	case config.ProviderAnthropic:
		provider = NewAnthropicProvider(apiKey, cfg.Model, cfg.Timeout())
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}

	logger.Info("ai classification enabled", zap.String("provider", provider.Name()))
	return &Classifier{provider: provider, logger: logger}, nil
}

// NewWithProvider wraps an existing provider. A nil provider disables the classifier.
func NewWithProvider(provider Provider, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if provider == nil {
		logger.Warn("no classifier provider configured; ai classification disabled")
	}
	return &Classifier{provider: provider, logger: logger}
}

// Enabled reports whether Classify can reach a provider.
func (c *Classifier) Enabled() bool {
	return c != nil && c.provider != nil
}

// ProviderName returns the backing provider name, or "disabled".
func (c *Classifier) ProviderName() string {
	if !c.Enabled() {
		return "disabled"
	}
	return c.provider.Name()
}

// Classify asks the provider for a category and priority. The boolean is
// false when no suggestion is available for any reason.
func (c *Classifier) Classify(ctx context.Context, description string) (result domain.ClassificationResult, ok bool) {
	if !c.Enabled() {
		return domain.ClassificationResult{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("ai classification failed",
				zap.String("provider", c.provider.Name()),
				zap.Any("panic", r))
			result, ok = domain.ClassificationResult{}, false
		}
	}()

	raw, err := c.provider.Complete(ctx, Completion{
		System:      systemPrompt,
		Prompt:      BuildPrompt(description),
		Temperature: temperature,
	})
	if err != nil {
		c.logger.Error("ai classification failed",
			zap.String("provider", c.provider.Name()),
			zap.Error(err))
		return domain.ClassificationResult{}, false
	}

	parsed, err := ParseResponse(raw)
	if err != nil {
		c.logger.Error("ai classification failed",
			zap.String("provider", c.provider.Name()),
			zap.Error(err))
		return domain.ClassificationResult{}, false
	}
	return parsed, true
}

// Close releases provider resources, if any.
func (c *Classifier) Close() error {
	if !c.Enabled() {
		return nil
	}
	if closer, ok := c.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
