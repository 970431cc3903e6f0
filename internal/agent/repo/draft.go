package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chative-food/server/internal/agent/model"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
	logx "github.com/chative-food/server/pkg/logger"
)

// RedisDraftRepository stores each draft as one JSON value that expires after ttl.
type RedisDraftRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisDraftRepository(rdb redis.Cmdable, ttl time.Duration) *RedisDraftRepository {
	return &RedisDraftRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisDraftRepository) draftKey(phone string) string {
	return fmt.Sprintf("foodbot:draft:%s", phone)
}

func (r *RedisDraftRepository) Get(ctx context.Context, phone string) (*domain.DraftOrder, error) {
	key := r.draftKey(phone)
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to load draft from redis")
		}
		return nil, errx.WrapRedis(err)
	}

	var d domain.DraftOrder
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &d, nil
}

func (r *RedisDraftRepository) Put(ctx context.Context, draft *domain.DraftOrder) error {
	b, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	key := r.draftKey(draft.Phone)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to store draft in redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisDraftRepository) Delete(ctx context.Context, phone string) error {
	if err := r.rdb.Del(ctx, r.draftKey(phone)).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.DraftRepository = (*RedisDraftRepository)(nil)
