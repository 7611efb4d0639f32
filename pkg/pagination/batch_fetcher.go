package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BatchConfig holds batch fetcher configuration
type BatchConfig struct {
	// MaxConcurrency is the maximum number of parallel lookups.
	// Every lookup still passes the client's rate governor, so raising
	// this does not raise the request rate.
	MaxConcurrency int
	// Timeout per lookup
	Timeout time.Duration
	Logger  zerolog.Logger
}

// DefaultBatchConfig returns defaults suited to a single forum client.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
		Logger:         zerolog.Nop(),
	}
}

// FetchFunc performs one independent lookup.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

type batchResult[K comparable, V any] struct {
	key   K
	value V
	err   error
}

// BatchFetcher runs independent lookups through a bounded worker pool.
type BatchFetcher[K comparable, V any] struct {
	fetch  FetchFunc[K, V]
	config BatchConfig
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[K comparable, V any](fetch FetchFunc[K, V], config BatchConfig) *BatchFetcher[K, V] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &BatchFetcher[K, V]{fetch: fetch, config: config}
}

// FetchAll looks up every key. Successful values are returned even when some
// lookups fail; the failures are joined into the returned error. Duplicate
// keys are looked up once.
func (bf *BatchFetcher[K, V]) FetchAll(ctx context.Context, keys []K) (map[K]V, error) {
	start := time.Now()
	log := bf.config.Logger

	unique := make([]K, 0, len(keys))
	seen := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}

	results := make(map[K]V, len(unique))
	if len(unique) == 0 {
		return results, nil
	}

	workers := bf.config.MaxConcurrency
	if workers > len(unique) {
		workers = len(unique)
	}

	queue := make(chan K, len(unique))
	for _, k := range unique {
		queue <- k
	}
	close(queue)

	out := make(chan batchResult[K, V], len(unique))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, queue, out, &wg, i)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	var errs []error
	for r := range out {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", r.key, r.err))
			continue
		}
		results[r.key] = r.value
	}

	if err := ctx.Err(); err != nil && len(results)+len(errs) < len(unique) {
		errs = append(errs, err)
	}

	log.Debug().
		Int("keys", len(unique)).
		Int("fetched", len(results)).
		Int("failed", len(errs)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	if len(errs) > 0 {
		return results, errors.Join(errs...)
	}
	return results, nil
}

// worker processes keys from the queue
func (bf *BatchFetcher[K, V]) worker(ctx context.Context, queue <-chan K, out chan<- batchResult[K, V], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for key := range queue {
		select {
		case <-ctx.Done():
			bf.config.Logger.Debug().
				Int("worker_id", workerID).
				Int("processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		keyCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		value, err := bf.fetch(keyCtx, key)
		cancel()

		if err != nil {
			bf.config.Logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Interface("key", key).
				Msg("Lookup failed")
		}
		out <- batchResult[K, V]{key: key, value: value, err: err}
		processed++
	}
}
