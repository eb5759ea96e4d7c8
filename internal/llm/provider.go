package llm

import (
	"fmt"
	"os"

	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/errors"
)

// New builds the configured provider for the named model. An empty name
// uses cfg.Model. API keys come from ANTHROPIC_API_KEY or OPENAI_API_KEY.
func New(cfg *config.Config, name string) (Model, error) {
	if name == "" {
		name = cfg.Model
	}
	switch cfg.Provider {
	case config.ProviderAnthropic, "":
		return NewAnthropic(AnthropicConfig{
			APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL:   cfg.BaseURL,
			Model:     name,
			MaxTokens: cfg.MaxTokens,
		}), nil
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			BaseURL:   cfg.BaseURL,
			Model:     name,
			MaxTokens: cfg.MaxTokens,
		}), nil
	case config.ProviderScripted:
		return &Scripted{ModelName: name}, nil
	}
	return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown provider %q (want anthropic, openai or scripted)", cfg.Provider))
}

// Selector picks a model for a request.
type Selector struct {
	cfg *config.Config
}

func NewSelector(cfg *config.Config) *Selector {
	return &Selector{cfg: cfg}
}

// Default returns the configured model.
func (s *Selector) Default() (Model, error) {
	return New(s.cfg, "")
}

// Upgrade returns the upgrade model, or ok=false when none is configured or
// it is the same as current.
func (s *Selector) Upgrade(current string) (Model, bool, error) {
	name := s.cfg.UpgradeModel
	if name == "" || name == current {
		return nil, false, nil
	}
	m, err := New(s.cfg, name)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}
