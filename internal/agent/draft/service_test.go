package draft

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative-food/server/internal/agent/model"
	"github.com/chative-food/server/internal/agent/repo"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/store"
)

const phone = "+919589883539"

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s := store.NewMemory()
	require.NoError(t, s.Users.Save(context.Background(), &domain.User{
		Name:        "Priya",
		Email:       "priya@example.com",
		PhoneNumber: phone,
		Addresses:   []domain.Address{{Address: "4th Block, Jayanagar", Tag: "home"}, {Address: "Office", Tag: "work"}},
	}))
	return NewService(s, repo.NewMemoryDraftRepository(time.Hour), model.DraftConfig{ConfirmAttempts: 3}), s
}

func TestConfirmTotalsAndClearsDraft(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	_, err := svc.Initiate(ctx, phone, "")
	require.NoError(t, err)

	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Margherita Pizza", Quantity: 2, Price: 500}})
	require.NoError(t, err)
	d, err := svc.AddItems(ctx, phone, []domain.DishDetail{
		{DishName: "Garlic Bread", Quantity: 1, Price: 150},
		{DishName: "Coke", Quantity: 3, Price: 40.5},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1271.5, d.TotalAmount, 1e-9)

	order, err := svc.Confirm(ctx, phone)
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderID)
	assert.InDelta(t, 1271.5, order.OrderDetails.TotalAmount, 1e-9)
	assert.Len(t, order.OrderDetails.DishDetails, 3)
	assert.Equal(t, domain.OrderConfirmed, order.OrderDetails.Status)
	assert.Equal(t, domain.UPIPending, order.UPIStatus)
	assert.NotEmpty(t, order.UPIAcknowledgementID)
	assert.Equal(t, "4th Block, Jayanagar", order.CustomerDetails.DeliveryAddress.Address)

	_, err = svc.Get(ctx, phone)
	assert.ErrorIs(t, err, errx.ErrNoActiveDraft)

	stored, err := s.OrderByOrderID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.InDelta(t, 1271.5, stored.OrderDetails.TotalAmount, 1e-9)
}

func TestConfirmWithoutInitiate(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	_, err := svc.Confirm(ctx, phone)
	assert.ErrorIs(t, err, errx.ErrNoActiveDraft)

	orders, err := s.Orders.Find(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestInitiateUnknownUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Initiate(ctx, "+910000000000", "")
	assert.ErrorIs(t, err, errx.ErrNotFound)

	ok, err := svc.HasActive(ctx, "+910000000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInitiateUnknownRestaurant(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Initiate(context.Background(), phone, "nope")
	assert.ErrorIs(t, err, errx.ErrNotFound)
}

func TestReinitiateDiscardsPriorItems(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Initiate(ctx, phone, "")
	require.NoError(t, err)
	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Paneer Tikka", Quantity: 1, Price: 300}})
	require.NoError(t, err)

	_, err = svc.Initiate(ctx, phone, "")
	require.NoError(t, err)
	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Dal Makhani", Quantity: 2, Price: 200}})
	require.NoError(t, err)

	order, err := svc.Confirm(ctx, phone)
	require.NoError(t, err)
	require.Len(t, order.OrderDetails.DishDetails, 1)
	assert.Equal(t, "Dal Makhani", order.OrderDetails.DishDetails[0].DishName)
	assert.InDelta(t, 400.0, order.OrderDetails.TotalAmount, 1e-9)
}

func TestAddItemsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Idli", Quantity: 1, Price: 40}})
	assert.ErrorIs(t, err, errx.ErrNoActiveDraft)

	_, err = svc.Initiate(ctx, phone, "")
	require.NoError(t, err)
	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Idli", Quantity: 1, Price: 40}})
	require.NoError(t, err)

	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{
		{DishName: "Vada", Quantity: 2, Price: 50},
		{DishName: "Dosa", Quantity: 0, Price: 80},
	})
	assert.ErrorIs(t, err, errx.ErrValidation)

	d, err := svc.Get(ctx, phone)
	require.NoError(t, err)
	assert.Len(t, d.Items, 1)
	assert.InDelta(t, 40.0, d.TotalAmount, 1e-9)
}

func TestConfirmSnapshotsCustomer(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	_, err := svc.Initiate(ctx, phone, "")
	require.NoError(t, err)
	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Idli", Quantity: 1, Price: 40}})
	require.NoError(t, err)
	order, err := svc.Confirm(ctx, phone)
	require.NoError(t, err)

	u, err := s.UserByPhone(ctx, phone)
	require.NoError(t, err)
	u.Name = "Priya Renamed"
	u.Addresses = []domain.Address{{Address: "New Place", Tag: "home"}}
	require.NoError(t, s.Users.Save(ctx, u))

	stored, err := s.OrderByOrderID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "Priya", stored.CustomerDetails.Name)
	assert.Equal(t, "4th Block, Jayanagar", stored.CustomerDetails.DeliveryAddress.Address)
}

func TestConfirmSnapshotsRestaurant(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	r := &domain.Restaurant{Name: "Pizza Hub", Address: "Indiranagar", GooglePin: "12.97,77.64", Branches: []domain.Branch{{Address: "HSR"}}}
	require.NoError(t, s.Restaurants.Save(ctx, r))

	_, err := svc.Initiate(ctx, phone, r.ID)
	require.NoError(t, err)
	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Farmhouse", Quantity: 1, Price: 450}})
	require.NoError(t, err)
	order, err := svc.Confirm(ctx, phone)
	require.NoError(t, err)

	assert.Equal(t, "Pizza Hub", order.RestaurantDetails.RestoName)
	assert.Equal(t, "12.97,77.64", order.RestaurantDetails.GooglePin)
	assert.Empty(t, order.CustomerDetails.DeliveryAddress.GooglePin)
	assert.Equal(t, "4th Block, Jayanagar", order.CustomerDetails.DeliveryAddress.Address)
	assert.Len(t, order.RestaurantDetails.Branches, 1)
}

func TestPlaceLeavesChatDraftAlone(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	r := &domain.Restaurant{Name: "Pizza Hub", Address: "Indiranagar", GooglePin: "12.97,77.64"}
	require.NoError(t, s.Restaurants.Save(ctx, r))

	_, err := svc.Initiate(ctx, phone, "")
	require.NoError(t, err)
	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Idli", Quantity: 2, Price: 40}})
	require.NoError(t, err)

	order, err := svc.Place(ctx, phone, r.ID, []domain.DishDetail{{DishName: " Farmhouse ", Quantity: 2, Price: 450}})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderConfirmed, order.OrderDetails.Status)
	assert.InDelta(t, 900.0, order.OrderDetails.TotalAmount, 1e-9)
	assert.Equal(t, "Farmhouse", order.OrderDetails.DishDetails[0].DishName)
	assert.Equal(t, "Pizza Hub", order.RestaurantDetails.RestoName)
	assert.Empty(t, order.CustomerDetails.DeliveryAddress.GooglePin)

	d, err := svc.Get(ctx, phone)
	require.NoError(t, err)
	require.Len(t, d.Items, 1)
	assert.Equal(t, "Idli", d.Items[0].DishName)
	assert.InDelta(t, 80.0, d.TotalAmount, 1e-9)
}

func TestPlaceRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	_, err := svc.Place(ctx, phone, "", nil)
	assert.ErrorIs(t, err, errx.ErrValidation)

	_, err = svc.Place(ctx, "+14155550100", "", []domain.DishDetail{{DishName: "Idli", Quantity: 1, Price: 40}})
	assert.ErrorIs(t, err, errx.ErrNotFound)

	_, err = svc.Place(ctx, phone, "missing", []domain.DishDetail{{DishName: "Idli", Quantity: 1, Price: 40}})
	assert.ErrorIs(t, err, errx.ErrNotFound)

	orders, err := s.Orders.Find(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOrderIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		_, err := svc.Initiate(ctx, phone, "")
		require.NoError(t, err)
		_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Chai", Quantity: 1, Price: 10}})
		require.NoError(t, err)
		order, err := svc.Confirm(ctx, phone)
		require.NoError(t, err)
		require.False(t, seen[order.OrderID], "duplicate order id %s", order.OrderID)
		seen[order.OrderID] = true
	}
	assert.Len(t, seen, 1000)
}

func TestConfirmRetriesOnDuplicateKey(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)

	require.NoError(t, s.Orders.Save(ctx, &domain.Order{OrderID: "taken", OrderDetails: domain.OrderDetails{Status: domain.OrderConfirmed}}))

	ids := []string{"ack-1", "taken", "fresh"}
	svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	_, err := svc.Initiate(ctx, phone, "")
	require.NoError(t, err)
	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Chai", Quantity: 1, Price: 10}})
	require.NoError(t, err)

	order, err := svc.Confirm(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, "fresh", order.OrderID)
	assert.Equal(t, "ack-1", order.UPIAcknowledgementID)
}

func TestConfirmGivesUpAfterAttempts(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	require.NoError(t, s.Orders.Save(ctx, &domain.Order{OrderID: "taken", OrderDetails: domain.OrderDetails{Status: domain.OrderConfirmed}}))
	svc.newID = func() string { return "taken" }

	_, err := svc.Initiate(ctx, phone, "")
	require.NoError(t, err)
	_, err = svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: "Chai", Quantity: 1, Price: 10}})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, phone)
	assert.ErrorIs(t, err, errx.ErrDuplicateKey)

	ok, err := svc.HasActive(ctx, phone)
	require.NoError(t, err)
	assert.True(t, ok, "draft survives a failed confirmation")
}

func TestConcurrentAddItemsAccumulate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Initiate(ctx, phone, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddItems(ctx, phone, []domain.DishDetail{{DishName: fmt.Sprintf("Dish %d", i), Quantity: 2, Price: 10}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	d, err := svc.Get(ctx, phone)
	require.NoError(t, err)
	assert.Len(t, d.Items, 25)
	assert.InDelta(t, 500.0, d.TotalAmount, 1e-9)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	assert.ErrorIs(t, svc.Discard(ctx, phone), errx.ErrNoActiveDraft)

	_, err := svc.Initiate(ctx, phone, "")
	require.NoError(t, err)
	require.NoError(t, svc.Discard(ctx, phone))

	_, err = svc.Confirm(ctx, phone)
	assert.ErrorIs(t, err, errx.ErrNoActiveDraft)
}
