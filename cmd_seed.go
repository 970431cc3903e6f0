package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/store"
	logx "github.com/chative-food/server/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert a sample restaurant and user",
	Long:  "seed creates the store indexes and inserts sample data. Existing records are left untouched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		existing, err := a.store.Restaurants.FindOne(ctx, store.Filter{"name": sampleRestaurant.Name})
		switch {
		case err == nil:
			logx.Info().Str("id", existing.ID).Msg("Sample restaurant already present")
		case errors.Is(err, errx.ErrNotFound):
			r := sampleRestaurant
			if err := a.store.Restaurants.Save(ctx, &r); err != nil {
				return fmt.Errorf("save restaurant: %w", err)
			}
			logx.Info().Str("id", r.ID).Msg("Seeded restaurant")
		default:
			return err
		}

		u := sampleUser
		u.Normalize()
		if err := a.store.Users.Save(ctx, &u); err != nil {
			if !errors.Is(err, errx.ErrDuplicateKey) {
				return fmt.Errorf("save user: %w", err)
			}
			logx.Info().Str("phone", u.PhoneNumber).Msg("Sample user already present")
			return nil
		}
		logx.Info().Str("phone", u.PhoneNumber).Msg("Seeded user")
		return nil
	},
}

var sampleRestaurant = domain.Restaurant{
	Name:      "Pizza Palace",
	Address:   "100 Feet Road, Indiranagar, Bengaluru",
	GooglePin: "https://maps.google.com/?q=12.9719,77.6412",
	Menu: []domain.MenuItem{
		{Dish: "Margherita", PortionSize: "Medium", Price: 250},
		{Dish: "Farmhouse", PortionSize: "Medium", Price: 320},
		{Dish: "Garlic Bread", PortionSize: "4 pcs", Price: 120},
	},
}

var sampleUser = domain.User{
	Name:        "Priya",
	Email:       "priya@example.com",
	PhoneNumber: "+919589883539",
	Addresses:   []domain.Address{{Address: "12 MG Road, Bengaluru", Tag: "home"}},
}
