package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
)

// NewMongo returns a Store over the given database.
func NewMongo(db *mongo.Database) *Store {
	restaurants := db.Collection(RestaurantsCollection)
	return &Store{
		Users:       newMongoRepository[domain.User](db.Collection(UsersCollection)),
		Restaurants: newMongoRepository[domain.Restaurant](restaurants),
		Orders:      newMongoRepository[domain.Order](db.Collection(OrdersCollection)),
		Chats:       newMongoRepository[domain.Chat](db.Collection(ChatsCollection)),
		catalog:     mongoCatalog{col: restaurants},
	}
}

// EnsureIndexes creates the unique indexes the store relies on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string]mongo.IndexModel{
		UsersCollection: {
			Keys:    bson.D{{Key: "phone_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		OrdersCollection: {
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		ChatsCollection: {
			Keys: bson.D{{Key: "phone", Value: 1}, {Key: "timestamp", Value: -1}},
		},
	}
	for name, model := range indexes {
		if _, err := db.Collection(name).Indexes().CreateOne(ctx, model); err != nil {
			return errx.WrapMongo(err)
		}
	}
	return nil
}

type mongoRepository[T any, PT entityPtr[T]] struct {
	col *mongo.Collection
}

func newMongoRepository[T any, PT entityPtr[T]](col *mongo.Collection) *mongoRepository[T, PT] {
	return &mongoRepository[T, PT]{col: col}
}

func (r *mongoRepository[T, PT]) Find(ctx context.Context, filter Filter, opts ...FindOption) ([]T, error) {
	o := findOptions(opts)

	findOpts := options.Find()
	if o.Skip > 0 {
		findOpts.SetSkip(o.Skip)
	}
	if o.Limit > 0 {
		findOpts.SetLimit(o.Limit)
	}

	cur, err := r.col.Find(ctx, bson.M(filter), findOpts)
	if err != nil {
		return nil, errx.WrapMongo(err)
	}
	defer cur.Close(ctx)

	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, errx.WrapMongo(err)
	}
	return out, nil
}

func (r *mongoRepository[T, PT]) FindOne(ctx context.Context, filter Filter) (*T, error) {
	var v T
	if err := r.col.FindOne(ctx, bson.M(filter)).Decode(&v); err != nil {
		return nil, errx.WrapMongo(err)
	}
	return &v, nil
}

func (r *mongoRepository[T, PT]) FindByID(ctx context.Context, id string) (*T, error) {
	return r.FindOne(ctx, Filter{"_id": id})
}

func (r *mongoRepository[T, PT]) Save(ctx context.Context, entity *T) error {
	e := PT(entity)
	if e.GetID() == "" {
		e.SetID(primitive.NewObjectID().Hex())
		_, err := r.col.InsertOne(ctx, entity)
		return errx.WrapMongo(err)
	}

	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": e.GetID()}, entity, options.Replace().SetUpsert(true))
	return errx.WrapMongo(err)
}

func (r *mongoRepository[T, PT]) DeleteByID(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errx.WrapMongo(err)
	}
	if res.DeletedCount == 0 {
		return errx.NotFound("%s record %s not found", r.col.Name(), id)
	}
	return nil
}

func (r *mongoRepository[T, PT]) Update(ctx context.Context, filter Filter, set Filter) (*T, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var v T
	err := r.col.FindOneAndUpdate(ctx, bson.M(filter), bson.M{"$set": bson.M(set)}, opts).Decode(&v)
	if err != nil {
		return nil, errx.WrapMongo(err)
	}
	return &v, nil
}

type mongoCatalog struct {
	col *mongo.Collection
}

func (c mongoCatalog) Dishes(ctx context.Context) ([]domain.Dish, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$menu"}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "dish", Value: "$menu.dish"},
			{Key: "portion_size", Value: "$menu.portion_size"},
			{Key: "price", Value: "$menu.price"},
			{Key: "pic", Value: "$menu.pic"},
			{Key: "restaurant_id", Value: "$_id"},
			{Key: "restaurant_name", Value: "$name"},
			{Key: "google_pin", Value: "$google_pin"},
		}}},
	}

	cur, err := c.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errx.WrapMongo(err)
	}
	defer cur.Close(ctx)

	var dishes []domain.Dish
	if err := cur.All(ctx, &dishes); err != nil {
		return nil, errx.WrapMongo(err)
	}
	return dishes, nil
}
