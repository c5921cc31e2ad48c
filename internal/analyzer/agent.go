package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama"
	"github.com/go-logr/logr"
)

const visionSystemPrompt = "You are a visual analysis assistant for video frames. " +
	"Always respond with a single JSON object and nothing else."

// AgentConfig locates the Ollama instance serving the vision model.
type AgentConfig struct {
	BaseURL string
	Port    int
	Model   string
}

// NewAgent initializes and returns a new vision agent backed by Ollama.
func NewAgent(ctx context.Context, cfg AgentConfig, logger *slog.Logger) (*agent.Agent, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Check if Ollama is reachable before wiring the provider.
	resp, err := http.Get(fmt.Sprintf("%s:%d/api/tags", cfg.BaseURL, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("ollama not reachable at %s:%d: %w", cfg.BaseURL, cfg.Port, err)
	}
	resp.Body.Close()

	// The provider and agent log through logr.
	logrLogger := logr.FromSlogHandler(logger.Handler())

	provider := ollama.NewProvider(&ollama.ProviderOpts{
		BaseURL: cfg.BaseURL,
		Port:    cfg.Port,
		Logger:  &logrLogger,
	})

	if err := provider.UseModel(ctx, &core.Model{ID: cfg.Model}); err != nil {
		return nil, fmt.Errorf("select vision model %q: %w", cfg.Model, err)
	}

	return agent.NewAgent(
		bootstrap.WithProvider(provider),
		bootstrap.WithSystemPrompt(visionSystemPrompt),
		bootstrap.WithLogger(&logrLogger),
	)
}
