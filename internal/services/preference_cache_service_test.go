package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"attune/internal/models"
)

// fakeStore is an in-memory PreferenceStore for cache tests
type fakeStore struct {
	mu       sync.Mutex
	sets     map[string]models.PreferenceSet
	getCalls int
	failGets bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sets: make(map[string]models.PreferenceSet)}
}

func (f *fakeStore) put(userID, prefType, prefKey string, setting models.PreferenceSetting) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[userID]
	if !ok {
		set = models.PreferenceSet{}
		f.sets[userID] = set
	}
	if set[prefType] == nil {
		set[prefType] = make(map[string]models.PreferenceSetting)
	}
	set[prefType][prefKey] = setting
}

func (f *fakeStore) Upsert(ctx context.Context, userID string, signal models.Signal) (UpsertOutcome, error) {
	f.put(userID, signal.PreferenceType, signal.PreferenceKey, models.PreferenceSetting{
		Value:      signal.Value,
		Confidence: signal.Confidence,
	})
	return UpsertCreated, nil
}

func (f *fakeStore) Get(ctx context.Context, userID string) (models.PreferenceSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failGets {
		return nil, ErrStoreUnavailable
	}
	set, ok := f.sets[userID]
	if !ok {
		return models.PreferenceSet{}, nil
	}
	return set, nil
}

func (f *fakeStore) Reset(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sets, userID)
	return nil
}

func (f *fakeStore) Reinforce(ctx context.Context, userID, prefType, prefKey string) error {
	return nil
}

func (f *fakeStore) Decay(ctx context.Context, userID, prefType, prefKey string) error {
	return nil
}

func (f *fakeStore) gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func TestCacheHitAvoidsStore(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "style", "communication_style", models.PreferenceSetting{
		Value: models.StringValue("brief"), Confidence: 0.6,
	})
	svc := NewPreferenceCacheService(store, time.Minute, nil, nil)
	ctx := context.Background()

	first, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if _, ok := first.Lookup("style", "communication_style"); !ok {
		t.Fatal("expected cached preference present")
	}

	for i := 0; i < 5; i++ {
		if _, err := svc.Get(ctx, "u1"); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}

	if got := store.gets(); got != 1 {
		t.Errorf("expected 1 store read, got %d", got)
	}
}

func TestCacheReadYourWritesAfterUpsert(t *testing.T) {
	store := newFakeStore()
	svc := NewPreferenceCacheService(store, time.Minute, nil, nil)
	ctx := context.Background()

	// Prime the cache with the empty set
	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("prime: %v", err)
	}

	signal := models.Signal{
		PreferenceType: "format",
		PreferenceKey:  "response_format",
		Value:          models.StringValue("word_tree"),
		Confidence:     0.8,
	}
	if _, err := svc.Upsert(ctx, "u1", signal); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	set, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	setting, ok := set.Lookup("format", "response_format")
	if !ok {
		t.Fatal("upserted preference not visible on subsequent read")
	}
	if !setting.Value.IsString("word_tree") {
		t.Errorf("unexpected value: %+v", setting.Value)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	store := newFakeStore()
	svc := NewPreferenceCacheService(store, 20*time.Millisecond, nil, nil)
	ctx := context.Background()

	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("second get: %v", err)
	}

	if got := store.gets(); got != 2 {
		t.Errorf("expected 2 store reads across the TTL boundary, got %d", got)
	}
}

func TestCacheStoreErrorYieldsEmptySet(t *testing.T) {
	store := newFakeStore()
	store.failGets = true
	svc := NewPreferenceCacheService(store, time.Minute, nil, nil)

	set, err := svc.Get(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(set) != 0 {
		t.Errorf("expected empty set on failure, got %+v", set)
	}
}

func TestCacheFailureNotCached(t *testing.T) {
	store := newFakeStore()
	store.failGets = true
	svc := NewPreferenceCacheService(store, time.Minute, nil, nil)
	ctx := context.Background()

	svc.Get(ctx, "u1")

	// Store recovers; next read must go through, not serve a cached failure
	store.mu.Lock()
	store.failGets = false
	store.mu.Unlock()
	store.put("u1", "style", "response_speed", models.PreferenceSetting{
		Value: models.StringValue("efficient"), Confidence: 0.6,
	})

	set, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get after recovery: %v", err)
	}
	if _, ok := set.Lookup("style", "response_speed"); !ok {
		t.Error("expected fresh read after store recovery")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "style", "communication_style", models.PreferenceSetting{
		Value: models.StringValue("brief"), Confidence: 0.6,
	})
	svc := NewPreferenceCacheService(store, time.Minute, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				svc.Upsert(ctx, "u1", models.Signal{
					PreferenceType: "style",
					PreferenceKey:  "response_speed",
					Value:          models.StringValue("efficient"),
					Confidence:     0.6,
				})
				return
			}
			set, err := svc.Get(ctx, "u1")
			if err != nil {
				t.Errorf("concurrent get: %v", err)
				return
			}
			if _, ok := set.Lookup("style", "communication_style"); !ok {
				t.Error("concurrent get saw incomplete set")
			}
		}(i)
	}
	wg.Wait()
}

func TestCacheResetInvalidates(t *testing.T) {
	store := newFakeStore()
	store.put("u1", "style", "communication_style", models.PreferenceSetting{
		Value: models.StringValue("brief"), Confidence: 0.6,
	})
	svc := NewPreferenceCacheService(store, time.Minute, nil, nil)
	ctx := context.Background()

	if _, err := svc.Get(ctx, "u1"); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if err := svc.Reset(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	set, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get after reset: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("expected empty set after reset, got %+v", set)
	}
}
