package configuration

import (
	"github.com/reinhart/zostelAgent/internal/assistant"
	"github.com/reinhart/zostelAgent/internal/zostel"
)

// NewProvider builds the LLM provider selected by the config. Call
// ValidateLLM first.
func (c *Config) NewProvider() (assistant.LLMProvider, error) {
	if err := c.ValidateLLM(); err != nil {
		return nil, err
	}
	switch c.LLM.Provider {
	case "openai":
		return assistant.NewOpenAIProvider(c.LLM.OpenAIKey, c.LLM.Model), nil
	case "ollama":
		return assistant.NewOllamaProvider(c.LLM.OllamaHost, c.LLM.Model), nil
	case "anthropic":
		return assistant.NewAnthropicProvider(c.LLM.AnthropicKey, c.LLM.Model), nil
	default:
		return assistant.NewDeepSeekProvider(c.LLM.DeepSeekKey, c.LLM.DeepSeekBaseURL, c.LLM.Model), nil
	}
}

// OrchestratorOptions maps the agent settings onto assistant.Options.
func (c *Config) OrchestratorOptions() assistant.Options {
	rounds := c.Agent.MaxToolRounds
	if rounds == 0 {
		// Zero in the file means "no tool rounds", not "default".
		rounds = -1
	}
	return assistant.Options{
		Window:            c.Agent.Window,
		MaxToolRounds:     rounds,
		CompletionTimeout: c.Agent.CompletionTimeout,
		NotifyTimeout:     c.Agent.NotifyTimeout,
	}
}

// Directory returns the Zostel directory from LocationsPath, or the bundled
// one when no path is set.
func (c *Config) Directory() (*zostel.Directory, error) {
	if c.Agent.LocationsPath == "" {
		return zostel.DefaultDirectory(), nil
	}
	return zostel.LoadDirectory(c.Agent.LocationsPath)
}
