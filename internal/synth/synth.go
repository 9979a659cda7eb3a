// Package synth implements the Synthesis Channel (spec §4.G): a bounded
// multi-producer/multi-consumer work queue, backed by one or more
// background workers that consult the Cache Manager before falling back
// to the Engine Client under the Retry Policy. Grounded on the teacher's
// Mouth processing loop (internal/speech/mouth.go processLoop/drain),
// generalized from a single-consumer priority queue into a worker pool
// with per-task result correlation.
package synth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/vvcache/internal/cachemanager"
	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
	"github.com/hammamikhairi/vvcache/internal/retrypolicy"
)

// QueueCapacity is the bounded work/result queue depth (spec §4.G).
const QueueCapacity = 100

// ShutdownDeadline bounds how long Close waits for in-flight workers to
// drain before returning (spec §4.G).
const ShutdownDeadline = 5 * time.Second

// Channel is the Synthesis Channel: a bounded task queue consumed by a
// pool of workers that synthesize on cache miss (spec §4.G).
type Channel struct {
	engine  domain.EngineClient
	retry   *retrypolicy.Policy
	cache   *cachemanager.Manager
	log     *logger.Logger
	workers int

	tasks   chan domain.SynthesisTask
	results chan domain.SynthesisResult

	mu      sync.Mutex
	waiters map[string]chan domain.SynthesisResult

	wg     sync.WaitGroup
	closed chan struct{}
}

// New constructs a Synthesis Channel with the given worker count and
// starts its background workers and result dispatcher.
func New(ctx context.Context, engine domain.EngineClient, retry *retrypolicy.Policy, cache *cachemanager.Manager, log *logger.Logger, workers int) *Channel {
	if workers <= 0 {
		workers = 1
	}

	c := &Channel{
		engine:  engine,
		retry:   retry,
		cache:   cache,
		log:     log,
		workers: workers,
		tasks:   make(chan domain.SynthesisTask, QueueCapacity),
		results: make(chan domain.SynthesisResult, QueueCapacity),
		waiters: make(map[string]chan domain.SynthesisResult),
		closed:  make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.workerLoop(ctx)
	}
	go c.dispatchLoop()

	return c
}

// Process enqueues req with a fresh task id, awaits the matching result,
// and returns it (spec §4.G). Caller cancellation aborts the await
// without cancelling the enqueued task; its result is later drained and
// discarded by dispatchLoop.
func (c *Channel) Process(ctx context.Context, req domain.VoiceRequest) (domain.SynthesisResult, error) {
	task := domain.SynthesisTask{ID: uuid.NewString(), Request: req, EnqueuedAt: time.Now()}

	waiter := make(chan domain.SynthesisResult, 1)
	c.mu.Lock()
	c.waiters[task.ID] = waiter
	c.mu.Unlock()

	select {
	case c.tasks <- task:
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, task.ID)
		c.mu.Unlock()
		return domain.SynthesisResult{}, ctx.Err()
	}

	select {
	case res := <-waiter:
		return res, nil
	case <-ctx.Done():
		// Leave the waiter registered; dispatchLoop drains and discards it
		// once the worker finishes, per spec §4.G cancellation semantics.
		return domain.SynthesisResult{}, ctx.Err()
	}
}

// workerLoop implements the per-task worker contract (spec §4.G).
func (c *Channel) workerLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case task, ok := <-c.tasks:
			if !ok {
				return
			}
			c.results <- c.handle(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) handle(ctx context.Context, task domain.SynthesisTask) domain.SynthesisResult {
	start := time.Now()
	key := cachemanager.Key(task.Request)

	if audio, ok := c.cache.Get(key); ok {
		return domain.SynthesisResult{TaskID: task.ID, AudioData: audio, FromCache: true, Success: true, Elapsed: time.Since(start)}
	}

	audio, err := c.synthesize(ctx, task.Request)
	if err != nil {
		c.log.Warn("synth: task %s failed: %v", task.ID, err)
		return domain.SynthesisResult{TaskID: task.ID, Success: false, ErrorMessage: err.Error(), Elapsed: time.Since(start)}
	}

	if err := c.cache.Put(ctx, key, audio, task.Request); err != nil {
		c.log.Warn("synth: task %s cache put failed: %v", task.ID, err)
	}

	return domain.SynthesisResult{TaskID: task.ID, AudioData: audio, FromCache: false, Success: true, Elapsed: time.Since(start)}
}

// synthesize runs audio_query then synthesize via the Engine Client,
// each call wrapped by the Retry Policy (spec §4.G step 2).
func (c *Channel) synthesize(ctx context.Context, req domain.VoiceRequest) ([]byte, error) {
	var queryJSON string
	_, err := c.retry.Do(ctx, func(ctx context.Context) ([]byte, error) {
		q, err := c.engine.AudioQuery(ctx, req)
		if err != nil {
			return nil, err
		}
		queryJSON = q
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	return c.retry.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return c.engine.Synthesize(ctx, queryJSON, req.SpeakerID)
	})
}

// dispatchLoop routes each worker result to its matching waiter, or
// discards it if the caller already abandoned the wait (spec §4.G).
func (c *Channel) dispatchLoop() {
	for res := range c.results {
		c.mu.Lock()
		waiter, ok := c.waiters[res.TaskID]
		delete(c.waiters, res.TaskID)
		c.mu.Unlock()

		if ok {
			waiter <- res
		}
	}
}

// Close stops accepting new tasks and waits up to ShutdownDeadline for
// workers to drain in-flight tasks (spec §4.G).
func (c *Channel) Close() {
	close(c.tasks)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ShutdownDeadline):
		c.log.Warn("synth: shutdown deadline exceeded, workers may still be running")
	}

	close(c.results)
}
