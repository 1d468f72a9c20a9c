package server

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultPoolSize is used when a pool is created with a non-positive size.
const DefaultPoolSize = 4

var (
	// ErrPoolTimeout is returned by Acquire when no slot frees up in time.
	ErrPoolTimeout = errors.New("timeout waiting for an analysis slot")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("pool is closed")
)

// Pool bounds the number of pipeline runs in flight. Each run holds one
// slot between Acquire and Release.
type Pool struct {
	slots   chan struct{}
	size    int
	timeout time.Duration

	mu     sync.Mutex
	closed bool

	metrics *poolMetrics
}

type poolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolStats is a snapshot of the pool counters.
type PoolStats struct {
	Size            int           `json:"pool_size"`
	InUse           int           `json:"slots_in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	WaitTime        time.Duration `json:"wait_time_ns"`
}

// NewPool returns a pool with size slots whose Acquire gives up after
// timeout.
func NewPool(size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &Pool{
		slots:   make(chan struct{}, size),
		size:    size,
		timeout: timeout,
		metrics: &poolMetrics{},
	}
	for i := 0; i < size; i++ {
		pool.slots <- struct{}{}
	}
	return pool
}

// Acquire waits for a free slot, the timeout, or ctx, whichever comes first.
func (p *Pool) Acquire(ctx context.Context) error {
	if p.isClosed() {
		return ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-p.slots:
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return ErrPoolTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by a successful Acquire.
func (p *Pool) Release() {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.slots <- struct{}{}
}

// Close makes every later Acquire fail. Runs holding a slot are not
// interrupted and may still Release.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolStats{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		WaitTime:        p.metrics.waitTime,
	}
}
