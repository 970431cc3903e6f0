package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/chative-food/server/internal/agent/draft"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/payment"
	"github.com/chative-food/server/internal/store"
)

// ===================================
// Ordering Tools
// ===================================

type InitiateOrderInput struct {
	PhoneNumber  string `json:"phone_number,omitempty"`
	RestaurantID string `json:"restaurant_id,omitempty"`
}

type UpdateTempOrderInput struct {
	PhoneNumber    string              `json:"phone_number,omitempty"`
	SelectedDishes []domain.DishDetail `json:"selectedDishes"`
}

type DraftOutput struct {
	Message     string              `json:"message"`
	Items       []domain.DishDetail `json:"items"`
	TotalAmount float64             `json:"total_amount"`
}

type ConfirmOrderOutput struct {
	Message     string  `json:"message"`
	OrderID     string  `json:"order_id"`
	TotalAmount float64 `json:"total_amount"`
}

type OrderIDInput struct {
	OrderID string `json:"order_id"`
}

type OrderStatusInput struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type OrdersOutput struct {
	Orders []domain.Order `json:"orders"`
	Total  int            `json:"total"`
}

func initiateOrderTool(d *draft.Service) boundTool {
	return newTool(ToolInitiateOrder,
		"Step 1 of ordering. Start a new empty order for the user. Replaces any unconfirmed order in progress.",
		map[string]*schema.ParameterInfo{
			"phone_number":  phoneParam(),
			"restaurant_id": {Type: schema.String, Desc: "Optional restaurant the order is placed with."},
		},
		func(ctx context.Context, in *InitiateOrderInput) (*DraftOutput, error) {
			order, err := d.Initiate(ctx, orSession(ctx, in.PhoneNumber), in.RestaurantID)
			if err != nil {
				return nil, err
			}
			return &DraftOutput{Message: "Order initiated", Items: order.Items, TotalAmount: order.TotalAmount}, nil
		},
	)
}

func updateTempOrderTool(d *draft.Service) boundTool {
	return newTool(ToolUpdateTempOrder,
		"Step 2 of ordering. Add dishes to the order in progress. Can be called repeatedly; items accumulate.",
		map[string]*schema.ParameterInfo{
			"phone_number": phoneParam(),
			"selectedDishes": {
				Type:     schema.Array,
				Required: true,
				Desc:     "Dishes to add, with the unit price from listDishes.",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.Object,
					SubParams: map[string]*schema.ParameterInfo{
						"dishName": {Type: schema.String, Required: true},
						"quantity": {Type: schema.Integer, Required: true},
						"price":    {Type: schema.Number, Desc: "Unit price.", Required: true},
						"pic":      {Type: schema.String},
					},
				},
			},
		},
		func(ctx context.Context, in *UpdateTempOrderInput) (*DraftOutput, error) {
			order, err := d.AddItems(ctx, orSession(ctx, in.PhoneNumber), in.SelectedDishes)
			if err != nil {
				return nil, err
			}
			return &DraftOutput{
				Message:     fmt.Sprintf("Order updated, total is %.2f", order.TotalAmount),
				Items:       order.Items,
				TotalAmount: order.TotalAmount,
			}, nil
		},
	)
}

func confirmOrderTool(d *draft.Service) boundTool {
	return newTool(ToolConfirmOrder,
		"Step 3 of ordering. Confirm the order in progress after the user agrees to the summary. Returns the order id.",
		map[string]*schema.ParameterInfo{"phone_number": phoneParam()},
		func(ctx context.Context, in *PhoneInput) (*ConfirmOrderOutput, error) {
			order, err := d.Confirm(ctx, orSession(ctx, in.PhoneNumber))
			if err != nil {
				return nil, err
			}
			return &ConfirmOrderOutput{
				Message:     "Order confirmed",
				OrderID:     order.OrderID,
				TotalAmount: order.OrderDetails.TotalAmount,
			}, nil
		},
	)
}

func getOrderTool(s *store.Store) boundTool {
	return newTool(ToolGetOrder,
		"Retrieve order details by order id. Returns found=false when it does not exist.",
		map[string]*schema.ParameterInfo{"order_id": {Type: schema.String, Required: true}},
		func(ctx context.Context, in *OrderIDInput) (*LookupOutput[domain.Order], error) {
			o, err := s.OrderByOrderID(ctx, in.OrderID)
			if errors.Is(err, errx.ErrNotFound) {
				return &LookupOutput[domain.Order]{Found: false, Message: "Order not found"}, nil
			}
			if err != nil {
				return nil, err
			}
			return &LookupOutput[domain.Order]{Found: true, Record: o}, nil
		},
	)
}

func getOrdersByUserTool(s *store.Store) boundTool {
	return newTool(ToolGetOrdersByUser,
		"Retrieve all orders placed by a user.",
		map[string]*schema.ParameterInfo{"phone_number": phoneParam()},
		func(ctx context.Context, in *PhoneInput) (*OrdersOutput, error) {
			orders, err := s.Orders.Find(ctx, store.Filter{"customer_details.phone": orSession(ctx, in.PhoneNumber)})
			if err != nil {
				return nil, err
			}
			if orders == nil {
				orders = []domain.Order{}
			}
			return &OrdersOutput{Orders: orders, Total: len(orders)}, nil
		},
	)
}

func updateOrderStatusTool(s *store.Store) boundTool {
	return newTool(ToolUpdateOrderStatus,
		"Update the status of an order.",
		map[string]*schema.ParameterInfo{
			"order_id": {Type: schema.String, Required: true},
			"status": {
				Type:     schema.String,
				Required: true,
				Enum:     []string{string(domain.OrderPending), string(domain.OrderConfirmed), string(domain.OrderCancelled), string(domain.OrderCompleted)},
			},
		},
		func(ctx context.Context, in *OrderStatusInput) (*MessageOutput, error) {
			status := domain.OrderStatus(in.Status)
			if !status.Valid() {
				return nil, errx.Validation("status must be one of Pending, Confirmed, Cancelled, Completed")
			}
			o, err := s.Orders.Update(ctx, store.Filter{"order_id": in.OrderID}, store.Filter{"order_details.status": status})
			if err != nil {
				if errors.Is(err, errx.ErrNotFound) {
					return nil, errx.NotFound("Order %s not found", in.OrderID)
				}
				return nil, err
			}
			return &MessageOutput{Message: fmt.Sprintf("Order status updated to %s", o.OrderDetails.Status), ID: o.OrderID}, nil
		},
	)
}

func deleteOrderTool(s *store.Store) boundTool {
	return newTool(ToolDeleteOrder,
		"Delete an order by order id.",
		map[string]*schema.ParameterInfo{"order_id": {Type: schema.String, Required: true}},
		func(ctx context.Context, in *OrderIDInput) (*MessageOutput, error) {
			o, err := s.OrderByOrderID(ctx, in.OrderID)
			if err != nil {
				if errors.Is(err, errx.ErrNotFound) {
					return nil, errx.NotFound("Order %s not found", in.OrderID)
				}
				return nil, err
			}
			if err := s.Orders.DeleteByID(ctx, o.ID); err != nil {
				return nil, err
			}
			return &MessageOutput{Message: "Order deleted successfully", ID: in.OrderID}, nil
		},
	)
}

func generatePaymentQRTool(p *payment.Issuer) boundTool {
	return newTool(ToolGeneratePaymentQR,
		"Step 4 of ordering. Generate a UPI payment QR code for a confirmed order.",
		map[string]*schema.ParameterInfo{"order_id": {Type: schema.String, Required: true}},
		func(ctx context.Context, in *OrderIDInput) (*payment.Payment, error) {
			return p.Issue(ctx, in.OrderID)
		},
	)
}
