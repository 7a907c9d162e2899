package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAI_Validation(t *testing.T) {
	_, err := NewOpenAI(OpenAIOptions{Model: "gpt-4o"})
	assert.Error(t, err)

	_, err = NewOpenAI(OpenAIOptions{APIKey: "sk-test"})
	assert.Error(t, err)

	c, err := NewOpenAI(OpenAIOptions{APIKey: "sk-test", Model: "gpt-4o"})
	assert.NoError(t, err)
	assert.Equal(t, float32(DefaultTemperature), c.temperature)
}

func TestOpenAI_Infer(t *testing.T) {
	var gotReq openai.ChatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "paris"}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o"})
	require.NoError(t, err)

	out, err := c.Infer(context.Background(), "answer in one word", "capital of france?")
	assert.NoError(t, err)
	assert.Equal(t, "paris", out)

	// Instruction lands as the system message, input as the user message.
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, gotReq.Messages[0].Role)
	assert.Equal(t, "answer in one word", gotReq.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, gotReq.Messages[1].Role)
	assert.Equal(t, "capital of france?", gotReq.Messages[1].Content)
	assert.Equal(t, "gpt-4o", gotReq.Model)
}

func TestOpenAI_Infer_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = c.Infer(context.Background(), "instruction", "input")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAI_Infer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = c.Infer(context.Background(), "instruction", "input")
	assert.Error(t, err)
}

func TestOpenAI_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, content := range []string{"Hel", "lo", " world"} {
			chunk := openai.ChatCompletionStreamResponse{
				Choices: []openai.ChatCompletionStreamChoice{
					{Delta: openai.ChatCompletionStreamChoiceDelta{Content: content}},
				},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o"})
	require.NoError(t, err)

	var got string
	err = c.Stream(context.Background(), "instruction", "input", func(chunk string) error {
		got += chunk
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "Hello world", got)
}

func TestOpenAI_Stream_CallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunk := openai.ChatCompletionStreamResponse{
			Choices: []openai.ChatCompletionStreamChoice{
				{Delta: openai.ChatCompletionStreamChoiceDelta{Content: "chunk"}},
			},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o"})
	require.NoError(t, err)

	sentinel := fmt.Errorf("client went away")
	err = c.Stream(context.Background(), "instruction", "input", func(string) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
}
