package services

import (
	"context"
	"log"
	"strings"
	"time"

	"attune/internal/models"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
)

// PreferenceStore is the persistence contract the cache layer sits on
type PreferenceStore interface {
	Upsert(ctx context.Context, userID string, signal models.Signal) (UpsertOutcome, error)
	Get(ctx context.Context, userID string) (models.PreferenceSet, error)
	Reset(ctx context.Context, userID string) error
	Reinforce(ctx context.Context, userID, prefType, prefKey string) error
	Decay(ctx context.Context, userID, prefType, prefKey string) error
}

// Redis channel carrying cross-instance invalidation messages
const prefInvalidateChannel = "attune:preferences:invalidate"

// PreferenceCacheService is a per-process read-through/write-through cache
// over the preference store. Entries are immutable snapshots replaced
// wholesale, so concurrent readers never observe a half-written set; writes
// invalidate before returning, giving read-your-writes within the process.
// Sibling instances converge via the Redis fanout, bounded by the TTL either
// way.
type PreferenceCacheService struct {
	store      PreferenceStore
	cache      *cache.Cache
	ttl        time.Duration
	redis      *RedisService // optional
	instanceID string
	metrics    *Metrics
}

// NewPreferenceCacheService creates the cache layer. redisService may be nil;
// invalidation is then purely local and siblings rely on TTL expiry alone.
func NewPreferenceCacheService(store PreferenceStore, ttl time.Duration, redisService *RedisService, metrics *Metrics) *PreferenceCacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PreferenceCacheService{
		store:      store,
		cache:      cache.New(ttl, 2*ttl),
		ttl:        ttl,
		redis:      redisService,
		instanceID: uuid.New().String(),
		metrics:    metrics,
	}
}

// Get returns the user's preference set, read-through. Concurrent misses for
// the same user may each hit the store; the last population wins.
func (s *PreferenceCacheService) Get(ctx context.Context, userID string) (models.PreferenceSet, error) {
	if entry, found := s.cache.Get(userID); found {
		if set, ok := entry.(models.PreferenceSet); ok {
			if s.metrics != nil {
				s.metrics.CacheHits.Inc()
			}
			return set, nil
		}
		// Defensive: an entry of the wrong shape is treated like a store
		// failure would be, by forcing a fresh fetch.
		log.Printf("⚠️ [PREF-CACHE] Corrupt cache entry for user %s, discarding", userID)
		s.cache.Delete(userID)
	}

	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	set, err := s.store.Get(ctx, userID)
	if err != nil {
		return models.PreferenceSet{}, err
	}

	s.cache.Set(userID, set, s.ttl)
	return set, nil
}

// Upsert writes through to the store, then invalidates so the next read
// repopulates. Invalidate-not-refresh: a refresh would race with the other
// upserts of the same signal batch.
func (s *PreferenceCacheService) Upsert(ctx context.Context, userID string, signal models.Signal) (UpsertOutcome, error) {
	outcome, err := s.store.Upsert(ctx, userID, signal)
	if err != nil {
		return outcome, err
	}
	if outcome != UpsertRetained {
		s.Invalidate(ctx, userID)
	}
	return outcome, nil
}

// Reset clears the user's stored preferences and patterns, then invalidates
func (s *PreferenceCacheService) Reset(ctx context.Context, userID string) error {
	if err := s.store.Reset(ctx, userID); err != nil {
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

// Reinforce applies a positive-feedback bump through to the store
func (s *PreferenceCacheService) Reinforce(ctx context.Context, userID, prefType, prefKey string) error {
	if err := s.store.Reinforce(ctx, userID, prefType, prefKey); err != nil {
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

// Decay applies a negative-feedback decay through to the store
func (s *PreferenceCacheService) Decay(ctx context.Context, userID, prefType, prefKey string) error {
	if err := s.store.Decay(ctx, userID, prefType, prefKey); err != nil {
		return err
	}
	s.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the local entry and fans the invalidation out to sibling
// instances when Redis is configured
func (s *PreferenceCacheService) Invalidate(ctx context.Context, userID string) {
	s.cache.Delete(userID)

	if s.redis != nil {
		payload := s.instanceID + "|" + userID
		if err := s.redis.Publish(ctx, prefInvalidateChannel, payload); err != nil {
			log.Printf("⚠️ [PREF-CACHE] Failed to publish invalidation for user %s: %v", userID, err)
		}
	}
}

// ListenInvalidations consumes sibling invalidations until ctx is canceled.
// Run in a goroutine when Redis is configured.
func (s *PreferenceCacheService) ListenInvalidations(ctx context.Context) {
	if s.redis == nil {
		return
	}

	pubsub := s.redis.Subscribe(ctx, prefInvalidateChannel)
	defer pubsub.Close()

	log.Printf("📡 [PREF-CACHE] Listening for cache invalidations (instance %s)", s.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			instanceID, userID, found := strings.Cut(msg.Payload, "|")
			if !found || instanceID == s.instanceID {
				continue
			}
			s.cache.Delete(userID)
		case <-ctx.Done():
			return
		}
	}
}
