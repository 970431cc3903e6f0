package tools

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"

	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/store"
)

// ===================================
// User Tools
// ===================================

type PhoneInput struct {
	PhoneNumber string `json:"phone_number,omitempty"`
}

type LookupOutput[T any] struct {
	Found   bool   `json:"found"`
	Message string `json:"message,omitempty"`
	Record  *T     `json:"record,omitempty"`
}

type UserData struct {
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	PhoneNumber      string           `json:"phone_number"`
	DOB              string           `json:"dob,omitempty"`
	Addresses        []domain.Address `json:"addresses,omitempty"`
	FoodChoices      []string         `json:"food_choices,omitempty"`
	FoodPreferences  []string         `json:"food_preferences,omitempty"`
	Allergies        []string         `json:"allergies,omitempty"`
	HealthConditions []string         `json:"health_conditions,omitempty"`
	NonVegDays       []string         `json:"non_veg_days,omitempty"`
}

type UserInput struct {
	PhoneNumber string   `json:"phone_number,omitempty"`
	Data        UserData `json:"data"`
}

type MessageOutput struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func phoneParam() *schema.ParameterInfo {
	return &schema.ParameterInfo{
		Type: schema.String,
		Desc: "User phone number in +91XXXXXXXXXX format. Defaults to the current user when omitted.",
	}
}

func userDataParam(required bool) *schema.ParameterInfo {
	list := func(desc string) *schema.ParameterInfo {
		return &schema.ParameterInfo{Type: schema.Array, Desc: desc, ElemInfo: &schema.ParameterInfo{Type: schema.String}}
	}
	return &schema.ParameterInfo{
		Type:     schema.Object,
		Desc:     "User profile fields.",
		Required: true,
		SubParams: map[string]*schema.ParameterInfo{
			"name":         {Type: schema.String, Required: required},
			"email":        {Type: schema.String, Required: required},
			"phone_number": {Type: schema.String, Desc: "+91 followed by 10 digits.", Required: required},
			"dob":          {Type: schema.String, Desc: "Date of birth, YYYY-MM-DD."},
			"addresses": {
				Type: schema.Array,
				Desc: "Delivery addresses. The first one is used for orders.",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.Object,
					SubParams: map[string]*schema.ParameterInfo{
						"address": {Type: schema.String, Required: true},
						"tag":     {Type: schema.String, Desc: "e.g. home, work", Required: true},
					},
				},
			},
			"food_choices":      list("e.g. veg, non-veg, vegan"),
			"food_preferences":  list("Cuisines or dishes the user likes."),
			"allergies":         list("Known food allergies."),
			"health_conditions": list("Relevant health conditions."),
			"non_veg_days":      list("Weekdays (Monday..Sunday) the user eats non-veg."),
		},
	}
}

func getUserTool(s *store.Store) boundTool {
	return newTool(ToolGetUser,
		"Retrieve user details based on their phone number. Returns found=false when the user is not registered.",
		map[string]*schema.ParameterInfo{"phone_number": phoneParam()},
		func(ctx context.Context, in *PhoneInput) (*LookupOutput[domain.User], error) {
			phone := orSession(ctx, in.PhoneNumber)
			u, err := s.UserByPhone(ctx, phone)
			if errors.Is(err, errx.ErrNotFound) {
				return &LookupOutput[domain.User]{Found: false, Message: "User not found"}, nil
			}
			if err != nil {
				return nil, err
			}
			return &LookupOutput[domain.User]{Found: true, Record: u}, nil
		},
	)
}

func createUserTool(s *store.Store) boundTool {
	return newTool(ToolCreateUser,
		"Register a new user. Ask for name, email and at least one address before calling.",
		map[string]*schema.ParameterInfo{"data": userDataParam(true)},
		func(ctx context.Context, in *UserInput) (*MessageOutput, error) {
			d := in.Data
			u := &domain.User{
				Name:             d.Name,
				Email:            d.Email,
				PhoneNumber:      orSession(ctx, d.PhoneNumber),
				DOB:              d.DOB,
				Addresses:        d.Addresses,
				FoodChoices:      d.FoodChoices,
				FoodPreferences:  d.FoodPreferences,
				Allergies:        d.Allergies,
				HealthConditions: d.HealthConditions,
				NonVegDays:       d.NonVegDays,
			}
			u.Normalize()
			if err := u.Validate(); err != nil {
				return nil, err
			}
			if err := s.Users.Save(ctx, u); err != nil {
				if errors.Is(err, errx.ErrDuplicateKey) {
					return nil, errx.Validation("a user with phone %s already exists", u.PhoneNumber)
				}
				return nil, err
			}
			return &MessageOutput{Message: "User created successfully", ID: u.ID}, nil
		},
	)
}

func updateUserTool(s *store.Store) boundTool {
	return newTool(ToolUpdateUser,
		"Update fields of an existing user. Only the provided fields change; lists replace the stored list.",
		map[string]*schema.ParameterInfo{
			"phone_number": phoneParam(),
			"data":         userDataParam(false),
		},
		func(ctx context.Context, in *UserInput) (*MessageOutput, error) {
			phone := orSession(ctx, in.PhoneNumber)
			u, err := s.UserByPhone(ctx, phone)
			if err != nil {
				if errors.Is(err, errx.ErrNotFound) {
					return nil, errx.NotFound("User not found")
				}
				return nil, err
			}

			applyUserPatch(u, in.Data)
			u.Normalize()
			if err := u.Validate(); err != nil {
				return nil, err
			}
			if err := s.Users.Save(ctx, u); err != nil {
				if errors.Is(err, errx.ErrDuplicateKey) {
					return nil, errx.Validation("a user with phone %s already exists", u.PhoneNumber)
				}
				return nil, err
			}
			return &MessageOutput{Message: "User updated successfully", ID: u.ID}, nil
		},
	)
}

func applyUserPatch(u *domain.User, d UserData) {
	if d.Name != "" {
		u.Name = d.Name
	}
	if d.Email != "" {
		u.Email = d.Email
	}
	if d.PhoneNumber != "" {
		u.PhoneNumber = d.PhoneNumber
	}
	if d.DOB != "" {
		u.DOB = d.DOB
	}
	if d.Addresses != nil {
		u.Addresses = d.Addresses
	}
	if d.FoodChoices != nil {
		u.FoodChoices = d.FoodChoices
	}
	if d.FoodPreferences != nil {
		u.FoodPreferences = d.FoodPreferences
	}
	if d.Allergies != nil {
		u.Allergies = d.Allergies
	}
	if d.HealthConditions != nil {
		u.HealthConditions = d.HealthConditions
	}
	if d.NonVegDays != nil {
		u.NonVegDays = d.NonVegDays
	}
}

type DeleteUserInput struct {
	UserID      string `json:"user_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

func deleteUserTool(s *store.Store) boundTool {
	return newTool(ToolDeleteUser,
		"Delete a user by user id or phone number. Only call after the user explicitly asks to delete their account.",
		map[string]*schema.ParameterInfo{
			"user_id":      {Type: schema.String, Desc: "Stored user id."},
			"phone_number": phoneParam(),
		},
		func(ctx context.Context, in *DeleteUserInput) (*MessageOutput, error) {
			id := in.UserID
			if id == "" {
				u, err := s.UserByPhone(ctx, orSession(ctx, in.PhoneNumber))
				if err != nil {
					if errors.Is(err, errx.ErrNotFound) {
						return nil, errx.NotFound("User not found")
					}
					return nil, err
				}
				id = u.ID
			}
			if err := s.Users.DeleteByID(ctx, id); err != nil {
				if errors.Is(err, errx.ErrNotFound) {
					return nil, errx.NotFound("User not found")
				}
				return nil, err
			}
			return &MessageOutput{Message: "User deleted successfully", ID: id}, nil
		},
	)
}
