package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"doctools/internal/logger"
	"doctools/pkg/models"
)

// errNotFound is returned when a document id has no stored record.
var errNotFound = errors.New("record not found")

// RedisSink stores each record as a hash under prefix+id. An upsert replaces
// the previous hash atomically. Children are stored JSON encoded in the
// children field.
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// RedisOptions configures a RedisSink.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration // zero keeps records forever
}

// NewRedisSink connects to Redis and checks the connection.
func NewRedisSink(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  opts.Addr,
		Password:              opts.Password,
		DB:                    opts.DB,
		ContextTimeoutEnabled: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("NewRedisSink: redis at %s is offline: %w", opts.Addr, err)
	}

	return NewRedisSinkWithClient(client, opts.KeyPrefix, opts.TTL), nil
}

// NewRedisSinkWithClient wraps an existing client.
func NewRedisSinkWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    logger.WithComponent("redis"),
	}
}

func (s *RedisSink) Name() string {
	return "redis:" + s.prefix
}

func (s *RedisSink) key(id string) string {
	return s.prefix + id
}

func (s *RedisSink) Upsert(ctx context.Context, id string, record *models.Record) error {
	if id == "" {
		return fmt.Errorf("Upsert: document id is required")
	}

	key := s.key(id)
	fields := make([]interface{}, 0, 2*record.Len())
	for _, k := range record.Keys() {
		v, _ := record.Get(k)
		fields = append(fields, k, v)
	}
	if nested, ok := childrenJSON(record); ok {
		fields = append(fields, models.FieldChildren, nested)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields...)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Upsert %s: %w", key, err)
	}

	s.log.Debug().Str("key", key).Int("fields", record.Len()).Msg("Record stored")
	return nil
}

// childrenJSON encodes the record's children for string-valued stores.
func childrenJSON(record *models.Record) (string, bool) {
	children := record.Children()
	if len(children) == 0 {
		return "", false
	}
	data, err := json.Marshal(children)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// get returns the stored fields for id.
func (s *RedisSink) get(ctx context.Context, id string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", s.key(id), err)
	}
	if len(fields) == 0 {
		return nil, errNotFound
	}
	return fields, nil
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
