package snowflake

import (
	"encoding/json"
	"fmt"
)

const summaryInstruction = "This is my SQL query output. Write a data analysis summary of the results in plain English for business users in less than three lines:"

// CompletionMessage is one chat message of an inference request
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest asks Cortex inference for a streamed completion
type CompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []CompletionMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
	Stream      bool                `json:"stream"`
}

// SummaryPrompt embeds a stripped result in the summarization instruction
func SummaryPrompt(result map[string]interface{}) (string, error) {
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result for prompt: %w", err)
	}
	return summaryInstruction + "\n\n" + string(body), nil
}

// NewCompletionRequest builds a streamed single-turn completion request
func NewCompletionRequest(model, prompt string, temperature float64, maxTokens int) CompletionRequest {
	return CompletionRequest{
		Model:       model,
		Messages:    []CompletionMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	}
}
