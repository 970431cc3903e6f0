package domain

import (
	"strings"
	"time"

	errx "github.com/chative-food/server/internal/core/error"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderConfirmed OrderStatus = "Confirmed"
	OrderCancelled OrderStatus = "Cancelled"
	OrderCompleted OrderStatus = "Completed"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderCancelled, OrderCompleted:
		return true
	}
	return false
}

type UPIStatus string

const (
	UPIPending   UPIStatus = "Pending"
	UPICompleted UPIStatus = "Completed"
	UPIFailed    UPIStatus = "Failed"
)

func (s UPIStatus) Valid() bool {
	switch s {
	case UPIPending, UPICompleted, UPIFailed:
		return true
	}
	return false
}

// DishDetail is one line item of a draft or order.
type DishDetail struct {
	DishName string  `json:"dishName" bson:"dish_name"`
	Quantity int     `json:"quantity" bson:"quantity"`
	Price    float64 `json:"price" bson:"price"`
	Pic      string  `json:"pic,omitempty" bson:"pic,omitempty"`
}

func (d DishDetail) Validate() error {
	if strings.TrimSpace(d.DishName) == "" {
		return errx.Validation("dish name is required")
	}
	if d.Quantity <= 0 {
		return errx.Validation("quantity for %q must be greater than zero", d.DishName)
	}
	if d.Price < 0 {
		return errx.Validation("price for %q must not be negative", d.DishName)
	}
	return nil
}

func (d DishDetail) Subtotal() float64 {
	return float64(d.Quantity) * d.Price
}

type OrderDetails struct {
	TotalAmount float64      `json:"total_amount" bson:"total_amount"`
	OrderDate   time.Time    `json:"order_date" bson:"order_date"`
	Status      OrderStatus  `json:"status" bson:"status"`
	DishDetails []DishDetail `json:"dish_details" bson:"dish_details"`
}

type DeliveryAddress struct {
	Address   string `json:"address" bson:"address"`
	Tag       string `json:"tag,omitempty" bson:"tag,omitempty"`
	GooglePin string `json:"google_pin,omitempty" bson:"google_pin,omitempty"`
}

type CustomerDetails struct {
	Name            string          `json:"name" bson:"name"`
	Email           string          `json:"email" bson:"email"`
	Phone           string          `json:"phone" bson:"phone"`
	DeliveryAddress DeliveryAddress `json:"delivery_address" bson:"delivery_address"`
}

type RestaurantDetails struct {
	RestoName   string   `json:"resto_name" bson:"resto_name"`
	Address     string   `json:"address" bson:"address"`
	GooglePin   string   `json:"google_pin,omitempty" bson:"google_pin,omitempty"`
	Branches    []Branch `json:"branches,omitempty" bson:"branches,omitempty"`
	DistanceKms float64  `json:"distance_kms,omitempty" bson:"distance_kms,omitempty"`
}

// Order is a confirmed purchase. Only the status fields change after creation.
type Order struct {
	ID                   string            `json:"id,omitempty" bson:"_id,omitempty"`
	OrderID              string            `json:"order_id" bson:"order_id"`
	OrderDetails         OrderDetails      `json:"order_details" bson:"order_details"`
	CustomerDetails      CustomerDetails   `json:"customer_details" bson:"customer_details"`
	RestaurantDetails    RestaurantDetails `json:"restaurant_details" bson:"restaurant_details"`
	UPIAcknowledgementID string            `json:"upi_acknowledgement_id" bson:"upi_acknowledgement_id"`
	UPIStatus            UPIStatus         `json:"upi_status" bson:"upi_status"`
	Timestamp            time.Time         `json:"timestamp" bson:"timestamp"`
}

func (o *Order) GetID() string   { return o.ID }
func (o *Order) SetID(id string) { o.ID = id }

func (o *Order) Validate() error {
	if o.OrderID == "" {
		return errx.Validation("order_id is required")
	}
	if !o.OrderDetails.Status.Valid() {
		return errx.Validation("order status %q is not valid", o.OrderDetails.Status)
	}
	if o.UPIStatus != "" && !o.UPIStatus.Valid() {
		return errx.Validation("upi status %q is not valid", o.UPIStatus)
	}
	if o.CustomerDetails.Phone != "" && !ValidCustomerPhone(o.CustomerDetails.Phone) {
		return errx.Validation("customer phone %q is not valid", o.CustomerDetails.Phone)
	}
	for _, d := range o.OrderDetails.DishDetails {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Chat is an append-only log of one completed turn.
type Chat struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty"`
	Phone     string    `json:"phone" bson:"phone"`
	Message   string    `json:"message" bson:"message"`
	Reply     string    `json:"reply" bson:"reply"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

func (c *Chat) GetID() string   { return c.ID }
func (c *Chat) SetID(id string) { c.ID = id }
