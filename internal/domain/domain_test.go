package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/chative-food/server/internal/core/error"
)

func validUser() User {
	return User{
		Name:        "Asha",
		Email:       "asha@example.com",
		PhoneNumber: "+919876543210",
		Addresses:   []Address{{Address: "12 MG Road", Tag: "home"}},
		NonVegDays:  []string{"Friday"},
	}
}

func TestUserValidate(t *testing.T) {
	u := validUser()
	require.NoError(t, u.Validate())

	cases := map[string]func(*User){
		"bad phone":     func(u *User) { u.PhoneNumber = "9876543210" },
		"short phone":   func(u *User) { u.PhoneNumber = "+91987654" },
		"missing name":  func(u *User) { u.Name = "" },
		"bad email":     func(u *User) { u.Email = "asha-at-example" },
		"bad weekday":   func(u *User) { u.NonVegDays = []string{"Funday"} },
		"empty address": func(u *User) { u.Addresses = []Address{{Tag: "work"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			u := validUser()
			mutate(&u)
			err := u.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errx.ErrValidation)
		})
	}
}

func TestUserNormalizeAndPrimaryAddress(t *testing.T) {
	u := User{Name: "  Ravi ", Email: " Ravi@Example.COM", Addresses: []Address{{Address: " a ", Tag: " home "}, {Address: "b"}}}
	u.Normalize()
	assert.Equal(t, "Ravi", u.Name)
	assert.Equal(t, "ravi@example.com", u.Email)
	assert.Equal(t, Address{Address: "a", Tag: "home"}, u.PrimaryAddress())
	assert.Equal(t, Address{}, (&User{}).PrimaryAddress())
}

func TestDishDetailValidate(t *testing.T) {
	assert.NoError(t, DishDetail{DishName: "Dosa", Quantity: 2, Price: 0}.Validate())
	assert.ErrorIs(t, DishDetail{DishName: "Dosa", Quantity: 0, Price: 10}.Validate(), errx.ErrValidation)
	assert.ErrorIs(t, DishDetail{DishName: "Dosa", Quantity: 1, Price: -1}.Validate(), errx.ErrValidation)
	assert.ErrorIs(t, DishDetail{DishName: " ", Quantity: 1, Price: 1}.Validate(), errx.ErrValidation)
	assert.InDelta(t, 240.0, DishDetail{DishName: "Dosa", Quantity: 2, Price: 120}.Subtotal(), 1e-9)
}

func TestOrderValidate(t *testing.T) {
	o := Order{OrderID: "x", OrderDetails: OrderDetails{Status: OrderConfirmed}, UPIStatus: UPIPending, CustomerDetails: CustomerDetails{Phone: "+919876543210"}}
	assert.NoError(t, o.Validate())

	o.OrderDetails.Status = "Shipped"
	assert.ErrorIs(t, o.Validate(), errx.ErrValidation)
}

func TestFlattenMenus(t *testing.T) {
	rs := []Restaurant{
		{ID: "r1", Name: "Udupi", GooglePin: "pin1", Menu: []MenuItem{{Dish: "Idli", Price: 40}, {Dish: "Vada", Price: 50}}},
		{ID: "r2", Name: "Empty"},
		{ID: "r3", Name: "Biryani House", Menu: []MenuItem{{Dish: "Biryani", Price: 250, PortionSize: "full"}}},
	}
	dishes := FlattenMenus(rs)
	require.Len(t, dishes, 3)
	assert.Equal(t, "Idli", dishes[0].Dish)
	assert.Equal(t, "r1", dishes[1].RestaurantID)
	assert.Equal(t, "Biryani House", dishes[2].RestaurantName)
	assert.Equal(t, "full", dishes[2].PortionSize)
}

func TestDraftClone(t *testing.T) {
	d := &DraftOrder{Phone: "+919876543210", Items: []DishDetail{{DishName: "Idli", Quantity: 1, Price: 40}}}
	c := d.Clone()
	c.Items[0].Quantity = 5
	assert.Equal(t, 1, d.Items[0].Quantity)
	assert.Nil(t, (*DraftOrder)(nil).Clone())
}
