package llm

import (
	"fmt"
	"strings"
)

// PolicyOracle adapts the Messages client to the optimizer's oracle
// interface: it returns the model's policy-tree JSON as raw text, with
// any wrapping stripped. Validation of the proposal happens upstream.
type PolicyOracle struct {
	Client    *Client
	MaxTokens int
}

// ProposePolicy asks the model for a candidate policy tree.
func (o *PolicyOracle) ProposePolicy(systemPrompt, userPrompt string) (string, error) {
	if !o.Client.Enabled() {
		return "", fmt.Errorf("LLM client not configured")
	}
	maxTokens := o.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	resp, err := o.Client.Complete(systemPrompt, userPrompt, maxTokens)
	if err != nil {
		return "", fmt.Errorf("oracle call: %w", err)
	}

	return extractJSON(resp)
}

// extractJSON strips markdown fences the model sometimes adds anyway and
// returns the outermost JSON object.
func extractJSON(resp string) (string, error) {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	start := strings.Index(resp, "{")
	end := strings.LastIndex(resp, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return resp[start : end+1], nil
}
