package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/schema"

	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/store"
)

// ===================================
// Restaurant & Dish Tools
// ===================================

type RestaurantInput struct {
	Data domain.Restaurant `json:"data"`
}

type RestaurantIDInput struct {
	RestaurantID string `json:"restaurant_id"`
}

type ListDishesInput struct {
	Query      string `json:"query,omitempty"`
	Restaurant string `json:"restaurant,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

type ListDishesOutput struct {
	Dishes []domain.Dish `json:"dishes"`
	Total  int           `json:"total"`
}

func createRestaurantTool(s *store.Store) boundTool {
	return newTool(ToolCreateRestaurant,
		"Create a new restaurant with its menu.",
		map[string]*schema.ParameterInfo{
			"data": {
				Type:     schema.Object,
				Required: true,
				SubParams: map[string]*schema.ParameterInfo{
					"name":       {Type: schema.String, Required: true},
					"address":    {Type: schema.String, Required: true},
					"google_pin": {Type: schema.String, Desc: "Map pin or lat,lng."},
					"menu": {
						Type: schema.Array,
						ElemInfo: &schema.ParameterInfo{
							Type: schema.Object,
							SubParams: map[string]*schema.ParameterInfo{
								"dish":         {Type: schema.String, Required: true},
								"portion_size": {Type: schema.String},
								"price":        {Type: schema.Number, Required: true},
								"pic":          {Type: schema.String, Desc: "Image URL."},
							},
						},
					},
					"branches": {
						Type: schema.Array,
						ElemInfo: &schema.ParameterInfo{
							Type: schema.Object,
							SubParams: map[string]*schema.ParameterInfo{
								"address":    {Type: schema.String, Required: true},
								"google_pin": {Type: schema.String},
							},
						},
					},
				},
			},
		},
		func(ctx context.Context, in *RestaurantInput) (*MessageOutput, error) {
			r := in.Data
			r.ID = ""
			if err := r.Validate(); err != nil {
				return nil, err
			}
			if err := s.Restaurants.Save(ctx, &r); err != nil {
				return nil, err
			}
			return &MessageOutput{Message: "Restaurant created successfully", ID: r.ID}, nil
		},
	)
}

func getRestaurantTool(s *store.Store) boundTool {
	return newTool(ToolGetRestaurant,
		"Retrieve restaurant details, including its menu, by restaurant id. Returns found=false when it does not exist.",
		map[string]*schema.ParameterInfo{
			"restaurant_id": {Type: schema.String, Required: true},
		},
		func(ctx context.Context, in *RestaurantIDInput) (*LookupOutput[domain.Restaurant], error) {
			r, err := s.Restaurants.FindByID(ctx, in.RestaurantID)
			if errors.Is(err, errx.ErrNotFound) {
				return &LookupOutput[domain.Restaurant]{Found: false, Message: "Restaurant not found"}, nil
			}
			if err != nil {
				return nil, err
			}
			return &LookupOutput[domain.Restaurant]{Found: true, Record: r}, nil
		},
	)
}

func listDishesTool(s *store.Store) boundTool {
	return newTool(ToolListDishes,
		"List available dishes across all restaurants with price, portion size and restaurant. Call this before suggesting dishes or quoting prices.",
		map[string]*schema.ParameterInfo{
			"query":       {Type: schema.String, Desc: "Optional case-insensitive dish name filter, e.g. pizza, biryani."},
			"restaurant":  {Type: schema.String, Desc: "Optional restaurant name filter."},
			"max_results": {Type: schema.Integer, Desc: "Maximum dishes to return (default 20)."},
		},
		func(ctx context.Context, in *ListDishesInput) (*ListDishesOutput, error) {
			dishes, err := s.Dishes(ctx)
			if err != nil {
				return nil, err
			}
			if in.MaxResults <= 0 {
				in.MaxResults = 20
			}

			query := strings.ToLower(in.Query)
			resto := strings.ToLower(in.Restaurant)
			matched := make([]domain.Dish, 0, len(dishes))
			for _, d := range dishes {
				if query != "" && !strings.Contains(strings.ToLower(d.Dish), query) {
					continue
				}
				if resto != "" && !strings.Contains(strings.ToLower(d.RestaurantName), resto) {
					continue
				}
				matched = append(matched, d)
			}
			total := len(matched)
			if len(matched) > in.MaxResults {
				matched = matched[:in.MaxResults]
			}
			return &ListDishesOutput{Dishes: matched, Total: total}, nil
		},
	)
}
