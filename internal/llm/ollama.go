package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// Ollama runs generations against a local ollama server through langchaingo.
type Ollama struct {
	client *ollama.LLM
}

func NewOllama(serverURL string) (*Ollama, error) {
	opts := []ollama.Option{}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create ollama client: %w", err)
	}
	return &Ollama{client: client}, nil
}

func (o *Ollama) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if len(req.System) > 0 {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		msgType := schema.ChatMessageTypeAI
		if m.Role == RoleUser {
			msgType = schema.ChatMessageTypeHuman
		}
		messages = append(messages, llms.TextParts(msgType, m.Content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.Model != "" {
		callOpts = append(callOpts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := o.client.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		slog.Error("error calling ollama", "error", err)
		return Response{}, fmt.Errorf("ollama generation failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return Response{
		Text:         choice.Content,
		Model:        req.Model,
		StopReason:   choice.StopReason,
		InputTokens:  intInfo(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	}, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
