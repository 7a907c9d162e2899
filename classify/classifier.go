// Package classify implements the intent classifier: one inference call
// that decides, per query, whether document retrieval and whether past
// conversation memory are needed. The two flags are independent and both
// are required for routing, so any failure to produce them is an error —
// the classifier never falls back to guessed flags.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mukesh145/pdf-knowledge-assistant/llm"
	"github.com/mukesh145/pdf-knowledge-assistant/log"
	"github.com/mukesh145/pdf-knowledge-assistant/workflow"
)

// instruction is the task specification sent with every query. The model
// must answer with the bare JSON object and nothing else.
const instruction = `You classify a user query for a document question-answering assistant. Decide two independent booleans:

1. "requires_rag": true if answering the query needs information from internal or domain-specific documents that the assistant must look up, as opposed to general knowledge or chit-chat.
2. "requires_memory": true if correctly answering the query depends on earlier turns of the same conversation, for example pronoun references or follow-up questions.

Respond with ONLY a JSON object, nothing else: {"requires_rag": true, "requires_memory": false}`

// IntentClassifier implements workflow.Classifier on the inference
// collaborator.
type IntentClassifier struct {
	client llm.Client
	logger log.Logger
}

var _ workflow.Classifier = (*IntentClassifier)(nil)

// New creates an intent classifier on the given inference client.
func New(client llm.Client, logger log.Logger) *IntentClassifier {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &IntentClassifier{client: client, logger: logger}
}

type intentPayload struct {
	RequiresRAG    *bool `json:"requires_rag"`
	RequiresMemory *bool `json:"requires_memory"`
}

// Classify produces both intent flags for a normalized query. Transport
// errors, unparseable output and missing keys all surface as errors; the
// workflow engine treats them as terminal for the run.
func (c *IntentClassifier) Classify(ctx context.Context, query string) (workflow.Intent, error) {
	resp, err := c.client.Infer(ctx, instruction, query)
	if err != nil {
		return workflow.Intent{}, fmt.Errorf("inference call failed: %w", err)
	}

	var payload intentPayload
	cleaned := stripCodeFence(resp)
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return workflow.Intent{}, fmt.Errorf("unparseable classifier output %q: %w", resp, err)
	}
	if payload.RequiresRAG == nil || payload.RequiresMemory == nil {
		return workflow.Intent{}, fmt.Errorf("classifier output %q is missing a flag", resp)
	}

	intent := workflow.Intent{
		RequiresRAG:    *payload.RequiresRAG,
		RequiresMemory: *payload.RequiresMemory,
	}
	c.logger.Debug("classified query: rag=%t memory=%t", intent.RequiresRAG, intent.RequiresMemory)
	return intent, nil
}

// stripCodeFence removes a surrounding markdown code block, which some
// models wrap JSON answers in despite the instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}
