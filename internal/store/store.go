package store

import (
	"context"

	"github.com/chative-food/server/internal/domain"
)

const (
	UsersCollection       = "users"
	RestaurantsCollection = "restaurants"
	OrdersCollection      = "orders"
	ChatsCollection       = "chats"
)

// Entity is implemented by pointers to the persisted domain types.
type Entity interface {
	GetID() string
	SetID(id string)
}

type entityPtr[T any] interface {
	*T
	Entity
}

// Filter matches documents by field equality. Keys may use dotted paths
// such as "customer_details.phone".
type Filter map[string]any

type FindOptions struct {
	Skip  int64
	Limit int64
}

type FindOption func(*FindOptions)

// WithPage selects the 1-based page of the given size.
func WithPage(page, size int) FindOption {
	return func(o *FindOptions) {
		if page < 1 {
			page = 1
		}
		o.Skip = int64((page - 1) * size)
		o.Limit = int64(size)
	}
}

func findOptions(opts []FindOption) FindOptions {
	var o FindOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Repository is the persistence surface for one collection. Lookups that
// match nothing fail with errx.ErrNotFound.
type Repository[T any] interface {
	Find(ctx context.Context, filter Filter, opts ...FindOption) ([]T, error)
	FindOne(ctx context.Context, filter Filter) (*T, error)
	FindByID(ctx context.Context, id string) (*T, error)
	// Save inserts the entity, assigning an ID when empty, or replaces the stored one.
	Save(ctx context.Context, entity *T) error
	DeleteByID(ctx context.Context, id string) error
	// Update atomically applies set to the first document matching filter and returns it.
	Update(ctx context.Context, filter Filter, set Filter) (*T, error)
}

type DishCatalog interface {
	Dishes(ctx context.Context) ([]domain.Dish, error)
}

type Store struct {
	Users       Repository[domain.User]
	Restaurants Repository[domain.Restaurant]
	Orders      Repository[domain.Order]
	Chats       Repository[domain.Chat]

	catalog DishCatalog
}

// Dishes flattens every restaurant menu into a single catalog.
func (s *Store) Dishes(ctx context.Context) ([]domain.Dish, error) {
	return s.catalog.Dishes(ctx)
}

// UserByPhone is the canonical user lookup.
func (s *Store) UserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return s.Users.FindOne(ctx, Filter{"phone_number": phone})
}

// OrderByOrderID looks up by the public order id rather than the storage id.
func (s *Store) OrderByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.Orders.FindOne(ctx, Filter{"order_id": orderID})
}
