package models

// GenerationContext holds the parameters handed to the generation
// collaborator. The applier derives an effective context from a base context
// and the user's preference set; it is never persisted.
type GenerationContext struct {
	Model                string  `json:"model"`
	Temperature          float64 `json:"temperature"`
	MaxTokens            int     `json:"max_tokens"`
	SystemPromptAddition string  `json:"system_prompt_addition"`
}
