package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers.
//   - Persistence goes through the MessagesManager, never through this struct.
type AppState struct {
	ConversationID string
	History        []*schema.Message // mutated only inside Eino state handlers
	ToolRounds     int               // tool calls executed in this turn
	ToolCallIDSeq  int               // local sequence to synthesize tool_call_id when provider omits

	// LastTool is the most recent tool executed in this turn, used for the summary note.
	LastTool string
	// Outcome records how the turn ended, for metrics.
	Outcome TurnOutcome
	// Abort is set when the turn must end with an error instead of a reply.
	Abort error

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

type TurnOutcome string

const (
	OutcomeReply         TurnOutcome = "reply"
	OutcomeToolReply     TurnOutcome = "tool_reply"
	OutcomeToolFailed    TurnOutcome = "tool_failed"
	OutcomeProtocolError TurnOutcome = "protocol_error"
	OutcomeProviderError TurnOutcome = "provider_error"
)

// QueryInput represents the input for processing user queries.
// ConversationID is the user's phone number.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}

// TurnResult is the reply of one completed turn.
type TurnResult struct {
	Reply   string  `json:"reply"`
	CostUSD float64 `json:"-"`
}
