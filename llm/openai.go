package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTemperature matches the generation temperature the assistant has
// always used.
const DefaultTemperature = 0.7

// OpenAIOptions configures the OpenAI-backed client. BaseURL supports
// OpenAI-compatible gateways.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// OpenAI implements Client on the OpenAI chat-completions API.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
}

var _ Client = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI-backed client.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: temperature,
	}, nil
}

func (c *OpenAI) request(instruction, input string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	}
}

// Infer sends one chat completion and returns its text.
func (c *OpenAI) Infer(ctx context.Context, instruction, input string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(instruction, input))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends one chat completion in streaming mode, delivering content
// chunks to fn as they arrive.
func (c *OpenAI) Stream(ctx context.Context, instruction, input string, fn func(chunk string) error) error {
	req := c.request(instruction, input)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chat completion stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
}
