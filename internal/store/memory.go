package store

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
)

// NewMemory returns a Store kept in process memory. Documents round-trip
// through bson so filters and updates behave like the Mongo backend.
func NewMemory() *Store {
	restaurants := newMemoryRepository[domain.Restaurant](RestaurantsCollection)
	return &Store{
		Users:       newMemoryRepository[domain.User](UsersCollection, "phone_number"),
		Restaurants: restaurants,
		Orders:      newMemoryRepository[domain.Order](OrdersCollection, "order_id"),
		Chats:       newMemoryRepository[domain.Chat](ChatsCollection),
		catalog:     memoryCatalog{restaurants: restaurants},
	}
}

type memoryRepository[T any, PT entityPtr[T]] struct {
	name   string
	unique []string

	mu   sync.RWMutex
	docs []bson.M
}

func newMemoryRepository[T any, PT entityPtr[T]](name string, unique ...string) *memoryRepository[T, PT] {
	return &memoryRepository[T, PT]{name: name, unique: unique}
}

func (r *memoryRepository[T, PT]) Find(ctx context.Context, filter Filter, opts ...FindOption) ([]T, error) {
	o := findOptions(opts)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		out     []T
		skipped int64
	)
	for _, doc := range r.docs {
		if !matches(doc, filter) {
			continue
		}
		if skipped < o.Skip {
			skipped++
			continue
		}
		if o.Limit > 0 && int64(len(out)) >= o.Limit {
			break
		}
		var v T
		if err := decode(doc, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *memoryRepository[T, PT]) FindOne(ctx context.Context, filter Filter) (*T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(filter); i >= 0 {
		var v T
		if err := decode(r.docs[i], &v); err != nil {
			return nil, err
		}
		return &v, nil
	}
	return nil, errx.NotFound("%s record not found", r.name)
}

func (r *memoryRepository[T, PT]) FindByID(ctx context.Context, id string) (*T, error) {
	return r.FindOne(ctx, Filter{"_id": id})
}

func (r *memoryRepository[T, PT]) Save(ctx context.Context, entity *T) error {
	e := PT(entity)
	if e.GetID() == "" {
		e.SetID(primitive.NewObjectID().Hex())
	}

	doc, err := encode(entity)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(doc, e.GetID()); err != nil {
		return err
	}

	if i := r.indexOf(Filter{"_id": e.GetID()}); i >= 0 {
		r.docs[i] = doc
		return nil
	}
	r.docs = append(r.docs, doc)
	return nil
}

func (r *memoryRepository[T, PT]) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(Filter{"_id": id})
	if i < 0 {
		return errx.NotFound("%s record %s not found", r.name, id)
	}
	r.docs = append(r.docs[:i], r.docs[i+1:]...)
	return nil
}

func (r *memoryRepository[T, PT]) Update(ctx context.Context, filter Filter, set Filter) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(filter)
	if i < 0 {
		return nil, errx.NotFound("%s record not found", r.name)
	}

	// Apply to a copy so a failed decode leaves the stored document untouched.
	updated, err := encode(r.docs[i])
	if err != nil {
		return nil, err
	}
	for path, value := range set {
		setPath(updated, path, value)
	}

	var v T
	if err := decode(updated, &v); err != nil {
		return nil, errx.Validation("update %s: %v", r.name, err.Error())
	}
	normalized, err := encode(&v)
	if err != nil {
		return nil, err
	}
	if err := r.checkUnique(normalized, PT(&v).GetID()); err != nil {
		return nil, err
	}
	r.docs[i] = normalized
	return &v, nil
}

func (r *memoryRepository[T, PT]) indexOf(filter Filter) int {
	for i, doc := range r.docs {
		if matches(doc, filter) {
			return i
		}
	}
	return -1
}

func (r *memoryRepository[T, PT]) checkUnique(doc bson.M, id string) error {
	for _, key := range r.unique {
		want, ok := lookup(doc, key)
		if !ok || fmt.Sprint(want) == "" {
			continue
		}
		for _, other := range r.docs {
			if fmt.Sprint(other["_id"]) == id {
				continue
			}
			if got, ok := lookup(other, key); ok && equal(got, want) {
				return errx.DuplicateKey("%s.%s %v already exists", r.name, key, want)
			}
		}
	}
	return nil
}

type memoryCatalog struct {
	restaurants Repository[domain.Restaurant]
}

func (c memoryCatalog) Dishes(ctx context.Context) ([]domain.Dish, error) {
	rs, err := c.restaurants.Find(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	return domain.FlattenMenus(rs), nil
}

func encode(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, errx.New(err, http.StatusInternalServerError, "encode document")
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, errx.New(err, http.StatusInternalServerError, "encode document")
	}
	return doc, nil
}

func decode(doc bson.M, v any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

func matches(doc bson.M, filter Filter) bool {
	for path, want := range filter {
		got, ok := lookup(doc, path)
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func lookup(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc bson.M, path string, value any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			next = bson.M{}
		}
		cur[part] = next
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func asMap(v any) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return bson.M(m), true
	case bson.D:
		return m.Map(), true
	}
	return nil, false
}
