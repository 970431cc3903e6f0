package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL   time.Duration `envconfig:"CONVERSATION_TTL" default:"30m"`
	Tools struct {
		MaxCalls         int  `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"1"`
		StrictSequencing bool `envconfig:"CONVERSATION_STRICT_SEQUENCING" default:"false"`
	}
	// FollowUp sends tool results back to the model for a natural-language reply.
	// When false the turn ends with a short "executed successfully" note.
	FollowUp    bool          `envconfig:"CONVERSATION_FOLLOW_UP" default:"true"`
	TurnTimeout time.Duration `envconfig:"CONVERSATION_TURN_TIMEOUT" default:"45s"`

	// MaxHistory bounds the non-system messages sent to the model per call.
	MaxHistory int `envconfig:"CONVERSATION_MAX_HISTORY" default:"40"`
}

type ResponseModelConfig struct {
	APIKey      string  `envconfig:"GEMINI_API_KEY"`
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
	BaseURL     string  `envconfig:"RESPONSE_BASE_URL"`

	// ThinkingBudget is the Gemini thinking token budget; zero disables thinking.
	ThinkingBudget int32 `envconfig:"RESPONSE_THINKING_BUDGET" default:"1024"`
}

type ResponsePromptConfig struct {
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"FoodBot"`
	City         string `envconfig:"PROMPT_CITY" default:"Bengaluru"`
	Currency     string `envconfig:"PROMPT_CURRENCY" default:"INR"`
}

type DraftConfig struct {
	TTL time.Duration `envconfig:"DRAFT_TTL" default:"2h"`
	// ConfirmAttempts bounds order id regeneration on a duplicate key.
	ConfirmAttempts int `envconfig:"DRAFT_CONFIRM_ATTEMPTS" default:"3"`
}
