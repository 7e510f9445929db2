package shared

import "time"

// TokenUsage tracks the tokens consumed by a single LLM request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Add returns the element-wise sum of two usages. The model of u wins unless it is empty.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	model := u.Model
	if model == "" {
		model = o.Model
	}
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		Model:            model,
	}
}

// AgentMeta holds operational metadata for one generation call.
type AgentMeta struct {
	AgentName string
	Usage     TokenUsage
	Latency   time.Duration
}
