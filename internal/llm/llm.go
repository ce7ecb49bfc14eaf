package llm

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderStatic    = "static"
)

var ErrEmptyResponse = errors.New("model returned an empty response")

type Message struct {
	Role    string
	Content string
}

type Request struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

type Response struct {
	Text         string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

func (r Response) Usage() map[string]int {
	return map[string]int{"input_tokens": r.InputTokens, "output_tokens": r.OutputTokens}
}

type LLM interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Responses []string
}

func New(cfg Config) (LLM, error) {
	switch cfg.Provider {
	case ProviderAnthropic, "":
		return NewAnthropic(cfg.APIKey, cfg.BaseURL), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL), nil
	case ProviderOllama:
		return NewOllama(cfg.BaseURL)
	case ProviderStatic:
		return NewStatic(cfg.Responses...), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider '%s'", cfg.Provider)
	}
}
