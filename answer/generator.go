// Package answer generates the final response from a completed workflow
// run. It receives whatever context fields the run produced and adapts the
// system prompt to them: both sources, one, or neither each get their own
// instruction variant.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/mukesh145/pdf-knowledge-assistant/llm"
	"github.com/mukesh145/pdf-knowledge-assistant/log"
	"github.com/mukesh145/pdf-knowledge-assistant/workflow"
)

const basePrompt = "You are a helpful AI assistant that answers questions based on the provided context " +
	"and conversation history. Your goal is to provide accurate, clear, and helpful responses."

// Generator produces answers on the inference collaborator.
type Generator struct {
	client llm.Client
	logger log.Logger
}

// NewGenerator creates an answer generator on the given inference client.
func NewGenerator(client llm.Client, logger log.Logger) *Generator {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Generator{client: client, logger: logger}
}

// Generate produces the answer for a completed run.
func (g *Generator) Generate(ctx context.Context, state *workflow.QueryState) (string, error) {
	instruction, input := g.compose(state)
	answer, err := g.client.Infer(ctx, instruction, input)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	g.logger.Debug("run %s: generated %d chars", state.RunID, len(answer))
	return answer, nil
}

// GenerateStream produces the answer incrementally, calling fn once per
// content chunk.
func (g *Generator) GenerateStream(ctx context.Context, state *workflow.QueryState, fn func(chunk string) error) error {
	instruction, input := g.compose(state)
	if err := g.client.Stream(ctx, instruction, input, fn); err != nil {
		return fmt.Errorf("answer generation failed: %w", err)
	}
	return nil
}

// compose builds the instruction and input for one run. The instruction is
// the prompt variant for the available sources plus the conversation
// history; the input is the retrieved context plus the query.
func (g *Generator) compose(state *workflow.QueryState) (instruction, input string) {
	memory := ""
	if state.MemoryContext != nil {
		memory = strings.TrimSpace(*state.MemoryContext)
	}
	docs := ""
	if state.DocumentContext != nil {
		docs = strings.TrimSpace(*state.DocumentContext)
	}

	instruction = systemPrompt(docs != "", memory != "")
	if memory != "" {
		instruction += "\n\nPrevious conversation history:\n" + memory
	}

	input = state.NormalizedQuery
	if docs != "" {
		input = fmt.Sprintf("Context from knowledge base:\n%s\n\nUser query: %s", docs, state.NormalizedQuery)
	}
	return instruction, input
}

// systemPrompt picks the instruction variant for the available sources.
func systemPrompt(hasContext, hasMemory bool) string {
	switch {
	case hasContext && hasMemory:
		return basePrompt + "\n\n" +
			"You have access to both retrieved context from the knowledge base and previous " +
			"conversation history. Use both sources to provide a comprehensive answer. " +
			"If the context and conversation history are relevant, incorporate them into your response. " +
			"If the user's query refers to previous conversation, make sure to reference it appropriately."
	case hasContext:
		return basePrompt + "\n\n" +
			"You have access to retrieved context from the knowledge base. " +
			"Use this context to answer the user's query accurately. " +
			"If the context is relevant, base your answer on it. If not, provide a general helpful response."
	case hasMemory:
		return basePrompt + "\n\n" +
			"You have access to previous conversation history. " +
			"Use this history to provide context-aware responses. " +
			"If the user's query refers to previous conversation, reference it appropriately."
	default:
		return basePrompt + "\n\n" +
			"Answer the user's query to the best of your ability based on your general knowledge."
	}
}
