package domain

import "time"

// DraftOrder is the in-progress order a user builds before confirmation.
type DraftOrder struct {
	Phone        string       `json:"phone"`
	User         User         `json:"user"`
	RestaurantID string       `json:"restaurant_id,omitempty"`
	Items        []DishDetail `json:"items"`
	TotalAmount  float64      `json:"total_amount"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Clone returns a copy that shares no slices with d.
func (d *DraftOrder) Clone() *DraftOrder {
	if d == nil {
		return nil
	}
	c := *d
	c.Items = append([]DishDetail(nil), d.Items...)
	c.User.Addresses = append([]Address(nil), d.User.Addresses...)
	return &c
}
