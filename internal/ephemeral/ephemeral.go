// Package ephemeral stores state that is allowed to expire: presence and
// typing markers. Keys live in redis so every gateway node sees them; in
// self-contained mode an in-process map with a janitor stands in.
package ephemeral

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	PresenceTTL = 300 * time.Second
	TypingTTL   = 5 * time.Second
)

func PresenceKey(accountID int64) string {
	return fmt.Sprintf("presence:%d", accountID)
}

func TypingKey(channelID int64, accountID int64) string {
	return fmt.Sprintf("typing:%d:%d", channelID, accountID)
}

// TypingPattern matches every typing marker of one account, used to clear
// typing state on disconnect. Low cardinality, so a pattern scan is fine.
func TypingPattern(accountID int64) string {
	return fmt.Sprintf("typing:*:%d", accountID)
}

type localEntry struct {
	fields  map[string]string
	expires time.Time
}

type Store struct {
	sugar         *zap.SugaredLogger
	redisClient   *redis.Client
	selfContained bool

	mutex   sync.RWMutex
	hashmap map[string]localEntry
	stop    chan struct{}
}

func NewRedis(sugar *zap.SugaredLogger, redisClient *redis.Client) *Store {
	return &Store{sugar: sugar, redisClient: redisClient}
}

func NewLocal(sugar *zap.SugaredLogger) *Store {
	s := &Store{
		sugar:         sugar,
		selfContained: true,
		hashmap:       make(map[string]localEntry),
		stop:          make(chan struct{}),
	}
	go s.checkForLocalExpiredKeys()
	return s
}

func (s *Store) Close() {
	if s.selfContained {
		close(s.stop)
	}
}

func (s *Store) checkForLocalExpiredKeys() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mutex.Lock()
			for key, entry := range s.hashmap {
				if entry.expires.Before(time.Now()) {
					delete(s.hashmap, key)
				}
			}
			s.mutex.Unlock()
		}
	}
}

func (s *Store) SetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if s.selfContained {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		copied := make(map[string]string, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		s.hashmap[key] = localEntry{fields: copied, expires: time.Now().Add(ttl)}
		return nil
	}

	flat := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	if err := s.redisClient.HSet(ctx, key, flat...).Err(); err != nil {
		return err
	}
	return s.redisClient.Expire(ctx, key, ttl).Err()
}

// Refresh extends the expiry of an existing key without touching its fields.
// Refreshing a missing key is a no-op.
func (s *Store) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	if s.selfContained {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		entry, exists := s.hashmap[key]
		if exists && entry.expires.After(time.Now()) {
			entry.expires = time.Now().Add(ttl)
			s.hashmap[key] = entry
		}
		return nil
	}

	return s.redisClient.Expire(ctx, key, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s.selfContained {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		delete(s.hashmap, key)
		return nil
	}

	return s.redisClient.Del(ctx, key).Err()
}

// Get returns the key's fields, or nil if the key is missing or expired.
func (s *Store) Get(ctx context.Context, key string) (map[string]string, error) {
	if s.selfContained {
		s.mutex.RLock()
		defer s.mutex.RUnlock()

		entry, exists := s.hashmap[key]
		if !exists || entry.expires.Before(time.Now()) {
			return nil, nil
		}
		return entry.fields, nil
	}

	fields, err := s.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// Exists reports whether the key is present and unexpired.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	fields, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return fields != nil, nil
}

func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	if s.selfContained {
		s.mutex.RLock()
		defer s.mutex.RUnlock()

		var keys []string
		for key, entry := range s.hashmap {
			if entry.expires.Before(time.Now()) {
				continue
			}
			matched, err := path.Match(pattern, key)
			if err != nil {
				return nil, err
			}
			if matched {
				keys = append(keys, key)
			}
		}
		return keys, nil
	}

	var keys []string
	iter := s.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// DeleteByPattern clears every key matching pattern.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) error {
	keys, err := s.Scan(ctx, pattern)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
