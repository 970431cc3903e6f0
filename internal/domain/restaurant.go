package domain

import (
	"strings"

	errx "github.com/chative-food/server/internal/core/error"
)

type MenuItem struct {
	Dish        string  `json:"dish" bson:"dish"`
	PortionSize string  `json:"portion_size" bson:"portion_size"`
	Price       float64 `json:"price" bson:"price"`
	Pic         string  `json:"pic,omitempty" bson:"pic,omitempty"`
}

type Branch struct {
	Address   string `json:"address" bson:"address"`
	GooglePin string `json:"google_pin" bson:"google_pin"`
}

type Restaurant struct {
	ID        string     `json:"id,omitempty" bson:"_id,omitempty"`
	Name      string     `json:"name" bson:"name"`
	Address   string     `json:"address" bson:"address"`
	GooglePin string     `json:"google_pin" bson:"google_pin"`
	Menu      []MenuItem `json:"menu" bson:"menu"`
	Branches  []Branch   `json:"branches,omitempty" bson:"branches,omitempty"`
}

func (r *Restaurant) GetID() string   { return r.ID }
func (r *Restaurant) SetID(id string) { r.ID = id }

func (r *Restaurant) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return errx.Validation("restaurant name is required")
	}
	if strings.TrimSpace(r.Address) == "" {
		return errx.Validation("restaurant address is required")
	}
	for _, m := range r.Menu {
		if strings.TrimSpace(m.Dish) == "" {
			return errx.Validation("menu item dish is required")
		}
		if m.Price < 0 {
			return errx.Validation("menu item %q has a negative price", m.Dish)
		}
	}
	return nil
}

// Dish is one menu item flattened with its restaurant.
type Dish struct {
	Dish           string  `json:"dish" bson:"dish"`
	PortionSize    string  `json:"portion_size" bson:"portion_size"`
	Price          float64 `json:"price" bson:"price"`
	Pic            string  `json:"pic,omitempty" bson:"pic,omitempty"`
	RestaurantID   string  `json:"restaurant_id" bson:"restaurant_id"`
	RestaurantName string  `json:"restaurant_name" bson:"restaurant_name"`
	GooglePin      string  `json:"google_pin,omitempty" bson:"google_pin,omitempty"`
}

// FlattenMenus expands every restaurant into one Dish per menu item, preserving menu order.
func FlattenMenus(restaurants []Restaurant) []Dish {
	var dishes []Dish
	for _, r := range restaurants {
		for _, m := range r.Menu {
			dishes = append(dishes, Dish{
				Dish:           m.Dish,
				PortionSize:    m.PortionSize,
				Price:          m.Price,
				Pic:            m.Pic,
				RestaurantID:   r.ID,
				RestaurantName: r.Name,
				GooglePin:      r.GooglePin,
			})
		}
	}
	return dishes
}
