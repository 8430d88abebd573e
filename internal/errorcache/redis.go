package errorcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every Redis key written by RedisStore.
const DefaultKeyPrefix = "grandgold:errcache"

// maxUpdateAttempts bounds optimistic transaction retries in Update.
const maxUpdateAttempts = 10

// RedisStore keeps entries in Redis so several API replicas share suppression
// state. Each entry is a JSON string at <prefix>:entry:<key>; the set at
// <prefix>:keys indexes them for Clear and Len.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	log       *slog.Logger
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// NewRedisStore wraps an existing client. An empty prefix selects DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		log:       slog.With("component", "RedisStore"),
	}
}

func (s *RedisStore) entryKey(key string) string {
	return s.keyPrefix + ":entry:" + key
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + ":keys"
}

// Get retrieves the entry for key.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	return s.get(ctx, s.client, key)
}

func (s *RedisStore) get(ctx context.Context, c getter, key string) (Entry, bool, error) {
	data, err := c.Get(ctx, s.entryKey(key)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("failed to decode entry: %w", err)
	}
	return entry, true, nil
}

// Set stores entry under key.
func (s *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(key), data, 0)
	pipe.SAdd(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.entryKey(key))
	pipe.SRem(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// Update performs an optimistic WATCH/MULTI read-modify-write of one key.
// fn may run more than once if another writer touches the key meanwhile.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	entryKey := s.entryKey(key)

	txf := func(tx *redis.Tx) error {
		cur, ok, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}

		next, action := fn(cur, ok)
		if action == Keep {
			return nil
		}

		var data []byte
		if action == Put {
			data, err = json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to encode entry: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			switch action {
			case Put:
				pipe.Set(ctx, entryKey, data, 0)
				pipe.SAdd(ctx, s.indexKey(), key)
			case Remove:
				pipe.Del(ctx, entryKey)
				pipe.SRem(ctx, s.indexKey(), key)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, entryKey)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug("optimistic update lost, retrying", "key", key, "attempt", attempt+1)
			continue
		}
		return err
	}

	return ErrUpdateConflict
}

// Clear removes every entry tracked in the index set. Only the listed members
// leave the index, so an entry written between the listing and the delete
// stays indexed.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}

	if err := s.clearMembers(ctx, keys); err != nil {
		return err
	}

	s.log.Info("cleared error cache", "entries", len(keys))
	return nil
}

func (s *RedisStore) clearMembers(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	members := make([]any, len(keys))
	pipe := s.client.TxPipeline()
	for i, key := range keys {
		pipe.Del(ctx, s.entryKey(key))
		members[i] = key
	}
	pipe.SRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

// Len returns the number of indexed entries.
func (s *RedisStore) Len(ctx context.Context) (int64, error) {
	return s.client.SCard(ctx, s.indexKey()).Result()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ Store = (*RedisStore)(nil)
