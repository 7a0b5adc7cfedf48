// Package worker runs station-scoped work concurrently while keeping the
// work for any single station strictly ordered.
package worker

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
)

type Job interface{}

type ProcessFunc func(ctx context.Context, job Job) error

// WorkerPool routes every job to a shard chosen by its key. Each shard is
// drained by exactly one goroutine, so jobs sharing a key run in submission
// order while different keys proceed in parallel.
type WorkerPool struct {
	numWorkers int
	shards     []chan Job
	processor  ProcessFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

func NewWorkerPool(numWorkers int, bufferSize int, processor ProcessFunc) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	shards := make([]chan Job, numWorkers)
	for i := range shards {
		shards[i] = make(chan Job, bufferSize)
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		shards:     shards,
		processor:  processor,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	jobs := wp.shards[id]
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := wp.processor(ctx, job); err != nil {
				slog.Warn("job failed", "worker", id, "error", err)
			}
		}
	}
}

// Submit blocks while the key's shard is full.
func (wp *WorkerPool) Submit(key string, job Job) {
	wp.shards[wp.shardFor(key)] <- job
}

// TrySubmit enqueues the job unless the key's shard is full.
func (wp *WorkerPool) TrySubmit(key string, job Job) bool {
	select {
	case wp.shards[wp.shardFor(key)] <- job:
		return true
	default:
		return false
	}
}

func (wp *WorkerPool) shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(wp.numWorkers))
}

func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		for _, ch := range wp.shards {
			close(ch)
		}
	})
	wp.wg.Wait()
}

// KeyedMutex hands out one mutex per key. Locks are never freed; the key
// space is the station registry, which is small and long lived.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its release function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
