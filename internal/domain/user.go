package domain

import (
	"regexp"
	"strings"

	errx "github.com/chative-food/server/internal/core/error"
)

var (
	userPhonePattern     = regexp.MustCompile(`^\+91\d{10}$`)
	customerPhonePattern = regexp.MustCompile(`^\+\d{1,15}$`)
	emailPattern         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

var weekDays = map[string]bool{
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
}

type Address struct {
	Address string `json:"address" bson:"address"`
	Tag     string `json:"tag" bson:"tag"`
}

// User is keyed by PhoneNumber; ID is the storage identifier.
type User struct {
	ID               string    `json:"id,omitempty" bson:"_id,omitempty"`
	Name             string    `json:"name" bson:"name"`
	Email            string    `json:"email" bson:"email"`
	PhoneNumber      string    `json:"phone_number" bson:"phone_number"`
	DOB              string    `json:"dob,omitempty" bson:"dob,omitempty"`
	Addresses        []Address `json:"addresses" bson:"addresses"`
	FoodChoices      []string  `json:"food_choices,omitempty" bson:"food_choices,omitempty"`
	FoodPreferences  []string  `json:"food_preferences,omitempty" bson:"food_preferences,omitempty"`
	Allergies        []string  `json:"allergies,omitempty" bson:"allergies,omitempty"`
	HealthConditions []string  `json:"health_conditions,omitempty" bson:"health_conditions,omitempty"`
	NonVegDays       []string  `json:"non_veg_days,omitempty" bson:"non_veg_days,omitempty"`
}

func (u *User) GetID() string   { return u.ID }
func (u *User) SetID(id string) { u.ID = id }

// Normalize trims free-text fields in place.
func (u *User) Normalize() {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	u.PhoneNumber = strings.TrimSpace(u.PhoneNumber)
	for i := range u.Addresses {
		u.Addresses[i].Address = strings.TrimSpace(u.Addresses[i].Address)
		u.Addresses[i].Tag = strings.TrimSpace(u.Addresses[i].Tag)
	}
}

func (u *User) Validate() error {
	if u.Name == "" {
		return errx.Validation("name is required")
	}
	if !ValidUserPhone(u.PhoneNumber) {
		return errx.Validation("phone number %q must look like +91XXXXXXXXXX", u.PhoneNumber)
	}
	if u.Email == "" || !emailPattern.MatchString(u.Email) {
		return errx.Validation("email %q is not valid", u.Email)
	}
	for _, a := range u.Addresses {
		if a.Address == "" {
			return errx.Validation("address must not be empty")
		}
	}
	for _, d := range u.NonVegDays {
		if !weekDays[d] {
			return errx.Validation("non veg day %q must be a weekday name", d)
		}
	}
	return nil
}

// PrimaryAddress is the first saved address, used as the delivery address snapshot.
func (u *User) PrimaryAddress() Address {
	if len(u.Addresses) == 0 {
		return Address{}
	}
	return u.Addresses[0]
}

func ValidUserPhone(phone string) bool {
	return userPhonePattern.MatchString(phone)
}

func ValidCustomerPhone(phone string) bool {
	return customerPhonePattern.MatchString(phone)
}
