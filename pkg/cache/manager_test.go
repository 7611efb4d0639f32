package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	// Ping to check connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	// Flush test DB before each test
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, 0)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.DefaultTTL() != DefaultTTL {
		t.Errorf("DefaultTTL() = %v, want %v", manager.DefaultTTL(), DefaultTTL)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, 0)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := CacheKey{
		Endpoint: "/t/42.json",
		Identity: "alice",
	}

	entry := &CacheEntry{
		Data:         []byte(`{"test": "data"}`),
		ETag:         `"abc123"`,
		Expires:      time.Now().Add(5 * time.Minute),
		LastModified: time.Now().Add(-1 * time.Hour),
		StatusCode:   200,
		Headers:      http.Header{"Content-Type": []string{"application/json"}},
		CachedAt:     time.Now(),
	}

	// Set entry
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Get entry
	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// Verify data
	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.ETag != entry.ETag {
		t.Errorf("ETag mismatch: got %s, want %s", retrieved.ETag, entry.ETag)
	}
	if retrieved.StatusCode != entry.StatusCode {
		t.Errorf("StatusCode mismatch: got %d, want %d", retrieved.StatusCode, entry.StatusCode)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := CacheKey{
		Endpoint: "/t/999999.json",
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := CacheKey{
		Endpoint: "/latest.json",
	}

	// Create already expired entry
	entry := &CacheEntry{
		Data:    []byte(`{"test": "data"}`),
		Expires: time.Now().Add(-1 * time.Hour), // Already expired
	}

	// Set should not cache expired entries
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Get should return cache miss
	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := CacheKey{
		Endpoint: "/latest.json",
	}

	entry := &CacheEntry{
		Data:    []byte(`{"test": "data"}`),
		Expires: time.Now().Add(5 * time.Minute),
	}

	// Set entry
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Verify it exists
	if _, err := manager.Get(ctx, key); err != nil {
		t.Fatalf("Get after Set failed: %v", err)
	}

	// Delete entry
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Verify it's gone
	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_UpdateTTL(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := CacheKey{
		Endpoint: "/latest.json",
	}

	// Create entry with initial TTL
	entry := &CacheEntry{
		Data:    []byte(`{"test": "data"}`),
		Expires: time.Now().Add(5 * time.Minute),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Update TTL to a new expiration time
	newExpires := time.Now().Add(10 * time.Minute)
	if err := manager.UpdateTTL(ctx, key, newExpires); err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}

	// Get entry and verify new expiration
	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after UpdateTTL failed: %v", err)
	}

	// Check that the new expires time is close to what we set
	diff := retrieved.Expires.Sub(newExpires)
	if diff < -1*time.Second || diff > 1*time.Second {
		t.Errorf("Expires time not updated correctly: got %v, want %v (diff: %v)",
			retrieved.Expires, newExpires, diff)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := CacheKey{
		Endpoint: "/latest.json",
	}

	err := manager.Set(ctx, key, nil)
	if err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func TestManager_LookupKeepsValidatedEntries(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/t/7.json", Identity: "alice"}
	entry := &CacheEntry{
		Data:    []byte(`{"id":7}`),
		ETag:    `"v1"`,
		Expires: time.Now().Add(50 * time.Millisecond),
	}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, fresh, err := manager.Lookup(ctx, key)
	if err != nil || !fresh || got.ETag != `"v1"` {
		t.Fatalf("Lookup() = %v, %v, %v; want fresh entry", got, fresh, err)
	}

	time.Sleep(100 * time.Millisecond)

	got, fresh, err = manager.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("Lookup() after expiry error = %v", err)
	}
	if fresh {
		t.Error("expired entry reported fresh")
	}
	if got.ETag != `"v1"` {
		t.Errorf("ETag = %q, want \"v1\"", got.ETag)
	}

	other := CacheKey{Endpoint: "/t/7.json", Identity: "bob"}
	if _, _, err := manager.Lookup(ctx, other); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Lookup() for other identity error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_UpdateTTL_StaleEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := CacheKey{Endpoint: "/t/42.json"}
	entry := &CacheEntry{
		Data:    []byte(`{"id":42}`),
		ETag:    `"v1"`,
		Expires: time.Now().Add(-time.Second),
	}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A 304 with max-age=0 refreshes to an already expired time.
	if err := manager.UpdateTTL(ctx, key, time.Now()); err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}

	got, fresh, err := manager.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("Lookup() after UpdateTTL error = %v, entry was dropped", err)
	}
	if fresh {
		t.Error("entry reported fresh")
	}
	if got.ETag != `"v1"` || string(got.Data) != `{"id":42}` {
		t.Errorf("entry = %+v, want original body and ETag", got)
	}
}
