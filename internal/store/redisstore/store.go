package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/chat-history/internal/models"
	"go.uber.org/zap"
)

// generations outlive entries so a slow reader cannot see the counter reset
const generationTTL = 24 * time.Hour

var errStaleFill = errors.New("redisstore: conversation invalidated during fill")

// Store caches rendered conversations. Errors are logged and treated as misses;
// the database stays the source of truth.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func New(addr, password string, db int, ttl time.Duration, log *zap.Logger) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, ttl, log)
}

func NewFromClient(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{rdb: rdb, ttl: ttl, log: log}
}

func conversationKey(id string) string { return "conv:" + id }

func generationKey(id string) string { return "conv:" + id + ":gen" }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, bool) {
	raw, err := s.rdb.Get(ctx, conversationKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("redis get failed", zap.String("conversation_id", id), zap.Error(err))
		}
		return nil, false
	}
	var conv models.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		s.log.Warn("drop undecodable cache entry", zap.String("conversation_id", id), zap.Error(err))
		s.Invalidate(ctx, id)
		return nil, false
	}
	return &conv, true
}

func (s *Store) Generation(ctx context.Context, id string) (uint64, bool) {
	gen, err := s.rdb.Get(ctx, generationKey(id)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn("redis get generation failed", zap.String("conversation_id", id), zap.Error(err))
		return 0, false
	}
	return gen, true
}

// SetConversation writes conv only while its generation still equals gen. The check and
// the write run under WATCH, so an Invalidate racing the fill makes the fill a no-op.
func (s *Store) SetConversation(ctx context.Context, conv *models.Conversation, gen uint64) {
	raw, err := json.Marshal(conv)
	if err != nil {
		return
	}
	genKey := generationKey(conv.ID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, conversationKey(conv.ID), raw, s.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		s.log.Debug("skip stale cache fill", zap.String("conversation_id", conv.ID))
	default:
		s.log.Warn("redis set failed", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}

// Invalidate bumps the generation and drops the entry in one MULTI.
func (s *Store) Invalidate(ctx context.Context, id string) {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(id))
		pipe.Expire(ctx, generationKey(id), generationTTL)
		pipe.Del(ctx, conversationKey(id))
		return nil
	})
	if err != nil {
		s.log.Warn("redis invalidate failed", zap.String("conversation_id", id), zap.Error(err))
	}
}
