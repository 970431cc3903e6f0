// Package draft accumulates a user's in-progress order between
// initiateOrder and confirmOrder and converts it into a persisted Order.
package draft

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chative-food/server/internal/agent/model"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	"github.com/chative-food/server/internal/store"
	"github.com/chative-food/server/pkg/keylock"
	logx "github.com/chative-food/server/pkg/logger"
	"github.com/chative-food/server/pkg/metrics"
)

type Service struct {
	store    *store.Store
	drafts   model.DraftRepository
	locks    *keylock.Locker
	attempts int

	now   func() time.Time
	newID func() string
}

func NewService(s *store.Store, drafts model.DraftRepository, cfg model.DraftConfig) *Service {
	attempts := cfg.ConfirmAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Service{
		store:    s,
		drafts:   drafts,
		locks:    keylock.New(),
		attempts: attempts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Initiate starts an empty draft for phone, replacing any existing one.
func (s *Service) Initiate(ctx context.Context, phone, restaurantID string) (*domain.DraftOrder, error) {
	unlock, err := s.locks.Lock(ctx, phone)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := s.customer(ctx, phone, restaurantID)
	if err != nil {
		return nil, err
	}

	replaced, err := s.HasActive(ctx, phone)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	d := &domain.DraftOrder{
		Phone:        phone,
		User:         *user,
		RestaurantID: restaurantID,
		Items:        []domain.DishDetail{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.drafts.Put(ctx, d); err != nil {
		return nil, err
	}

	if replaced {
		logx.Debug().Str("phone", phone).Msg("replaced existing draft order")
	} else {
		metrics.DraftsOpen.Inc()
	}
	logx.Info().Str("phone", phone).Msg("order initiated")
	return d, nil
}

// AddItems appends items to the active draft. Nothing is written unless every item is valid.
func (s *Service) AddItems(ctx context.Context, phone string, items []domain.DishDetail) (*domain.DraftOrder, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, phone)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.active(ctx, phone)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		d.Items = append(d.Items, item)
		d.TotalAmount += item.Subtotal()
	}
	d.UpdatedAt = s.now().UTC()

	if err := s.drafts.Put(ctx, d); err != nil {
		return nil, err
	}
	logx.Info().Str("phone", phone).Int("items", len(d.Items)).Float64("total", d.TotalAmount).Msg("draft order updated")
	return d, nil
}

// Confirm persists the draft as a Confirmed order and deletes the draft.
func (s *Service) Confirm(ctx context.Context, phone string) (*domain.Order, error) {
	unlock, err := s.locks.Lock(ctx, phone)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.active(ctx, phone)
	if err != nil {
		return nil, err
	}
	if len(d.Items) == 0 {
		return nil, errx.Validation("order has no dishes yet")
	}

	order, err := s.persist(ctx, d)
	if err != nil {
		return nil, err
	}

	if err := s.drafts.Delete(ctx, phone); err != nil {
		// the order exists; a stale draft only expires later
		logx.Error().Err(err).Str("phone", phone).Str("order_id", order.OrderID).Msg("failed to delete confirmed draft")
	}
	metrics.DraftsOpen.Dec()
	return order, nil
}

func (s *Service) Get(ctx context.Context, phone string) (*domain.DraftOrder, error) {
	return s.active(ctx, phone)
}

// Discard drops the active draft, if any.
func (s *Service) Discard(ctx context.Context, phone string) error {
	unlock, err := s.locks.Lock(ctx, phone)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.drafts.Get(ctx, phone); err != nil {
		if errors.Is(err, errx.ErrNotFound) {
			return errx.NoActiveDraft(phone)
		}
		return err
	}
	if err := s.drafts.Delete(ctx, phone); err != nil {
		return err
	}
	metrics.DraftsOpen.Dec()
	return nil
}

// HasActive reports whether phone currently holds a draft.
func (s *Service) HasActive(ctx context.Context, phone string) (bool, error) {
	_, err := s.drafts.Get(ctx, phone)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errx.ErrNotFound):
		return false, nil
	}
	return false, err
}

// persist saves d as a Confirmed order, regenerating the order id on collision.
func (s *Service) persist(ctx context.Context, d *domain.DraftOrder) (*domain.Order, error) {
	resto, err := s.restaurantSnapshot(ctx, d.RestaurantID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	addr := d.User.PrimaryAddress()
	order := &domain.Order{
		OrderDetails: domain.OrderDetails{
			TotalAmount: d.TotalAmount,
			OrderDate:   now,
			Status:      domain.OrderConfirmed,
			DishDetails: append([]domain.DishDetail(nil), d.Items...),
		},
		CustomerDetails: domain.CustomerDetails{
			Name:  d.User.Name,
			Email: d.User.Email,
			Phone: d.User.PhoneNumber,
			DeliveryAddress: domain.DeliveryAddress{
				Address: addr.Address,
				Tag:     addr.Tag,
			},
		},
		RestaurantDetails:    resto,
		UPIAcknowledgementID: s.newID(),
		UPIStatus:            domain.UPIPending,
		Timestamp:            now,
	}

	for attempt := 1; ; attempt++ {
		order.ID = ""
		order.OrderID = s.newID()
		err = s.store.Orders.Save(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, errx.ErrDuplicateKey) || attempt >= s.attempts {
			return nil, err
		}
		logx.Warn().Str("phone", d.Phone).Int("attempt", attempt).Msg("order id collision, regenerating")
	}

	metrics.OrdersConfirmed.Inc()
	logx.Info().Str("phone", d.Phone).Str("order_id", order.OrderID).Float64("total", order.OrderDetails.TotalAmount).Msg("order confirmed")
	return order, nil
}

// Place confirms an order in one step without touching the chat draft.
// It holds the phone's lock for the whole call.
func (s *Service) Place(ctx context.Context, phone, restaurantID string, items []domain.DishDetail) (*domain.Order, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, phone)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := s.customer(ctx, phone, restaurantID)
	if err != nil {
		return nil, err
	}
	d := &domain.DraftOrder{
		Phone:        phone,
		User:         *user,
		RestaurantID: restaurantID,
	}
	for _, item := range items {
		d.Items = append(d.Items, item)
		d.TotalAmount += item.Subtotal()
	}
	return s.persist(ctx, d)
}

// customer loads the ordering user and checks the restaurant, when given, exists.
func (s *Service) customer(ctx context.Context, phone, restaurantID string) (*domain.User, error) {
	user, err := s.store.UserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, errx.ErrNotFound) {
			return nil, errx.NotFound("User not found")
		}
		return nil, err
	}

	if restaurantID != "" {
		if _, err := s.store.Restaurants.FindByID(ctx, restaurantID); err != nil {
			if errors.Is(err, errx.ErrNotFound) {
				return nil, errx.NotFound("Restaurant %s not found", restaurantID)
			}
			return nil, err
		}
	}
	return user, nil
}

func validateItems(items []domain.DishDetail) error {
	if len(items) == 0 {
		return errx.Validation("at least one dish is required")
	}
	for i := range items {
		items[i].DishName = strings.TrimSpace(items[i].DishName)
		if err := items[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) active(ctx context.Context, phone string) (*domain.DraftOrder, error) {
	d, err := s.drafts.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, errx.ErrNotFound) {
			return nil, errx.NoActiveDraft(phone)
		}
		return nil, err
	}
	return d, nil
}

func (s *Service) restaurantSnapshot(ctx context.Context, id string) (domain.RestaurantDetails, error) {
	if id == "" {
		return domain.RestaurantDetails{}, nil
	}
	r, err := s.store.Restaurants.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, errx.ErrNotFound) {
			return domain.RestaurantDetails{}, errx.NotFound("Restaurant %s not found", id)
		}
		return domain.RestaurantDetails{}, err
	}
	return domain.RestaurantDetails{
		RestoName: r.Name,
		Address:   r.Address,
		GooglePin: r.GooglePin,
		Branches:  append([]domain.Branch(nil), r.Branches...),
	}, nil
}
