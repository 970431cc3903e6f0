package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/chative-food/server/internal/agent/graph/tools"
	"github.com/chative-food/server/internal/agent/model"
)

//go:embed template/persona.txt
var personaPrompt string

//go:embed template/ordering.txt
var orderingPrompt string

// RenderSystem renders the persona and tool policy messages that open every
// conversation. Rendering goes through the Eino prompt component so prompt
// callbacks fire.
func RenderSystem(ctx context.Context, config model.ResponsePromptConfig, phone string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(personaPrompt),
		schema.SystemMessage(orderingPrompt),
	)
	vars := map[string]any{
		"BusinessName": config.BusinessName,
		"City":         config.City,
		"Currency":     config.Currency,
		"Phone":        phone,

		"GetUser":           tools.ToolGetUser,
		"CreateUser":        tools.ToolCreateUser,
		"ListDishes":        tools.ToolListDishes,
		"GetRestaurant":     tools.ToolGetRestaurant,
		"InitiateOrder":     tools.ToolInitiateOrder,
		"UpdateTempOrder":   tools.ToolUpdateTempOrder,
		"ConfirmOrder":      tools.ToolConfirmOrder,
		"GeneratePaymentQR": tools.ToolGeneratePaymentQR,
		"GetOrdersByUser":   tools.ToolGetOrdersByUser,
		"GetOrder":          tools.ToolGetOrder,
		"UpdateOrderStatus": tools.ToolUpdateOrderStatus,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) != 2 {
		return nil, fmt.Errorf("system prompt render: expected 2 messages, got %d", len(msgs))
	}
	return msgs, nil
}
