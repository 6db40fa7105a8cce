// Package workerpool implements the bounded fork-join worker pool (§5): N
// OS threads sized at process start, two scheduling disciplines
// (auto-chunked and one-task-per-unit), suspension only at the barrier.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs bounded, fork-join fan-out over an errgroup.Group, capping
// in-flight goroutines at N via the group's SetLimit — the idiomatic
// bounded fan-out the corpus reaches for over a hand-rolled channel pool.
type Pool struct {
	n int
}

// New builds a pool sized to N worker threads.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{n: n}
}

// AutoChunk partitions a job count J into N roughly equal contiguous
// ranges and runs fn once per range; it blocks until every range
// completes (the fork-join barrier). Used for C2, C3 and the simulator
// advance.
func (p *Pool) AutoChunk(ctx context.Context, jobs int, fn func(lo, hi int) error) error {
	if jobs == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	chunk := (jobs + p.n - 1) / p.n
	if chunk < 1 {
		chunk = 1
	}
	for lo := 0; lo < jobs; lo += chunk {
		lo := lo
		hi := lo + chunk
		if hi > jobs {
			hi = jobs
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			return fn(lo, hi)
		})
	}
	return g.Wait()
}

// OneTaskPerUnit runs one task per job id, capped at N concurrent tasks at
// any time. Used for C4, where per-vehicle wall time varies wildly and
// finer granularity improves load balance.
func (p *Pool) OneTaskPerUnit(ctx context.Context, jobs int, fn func(i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.n)
	for i := 0; i < jobs; i++ {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			return fn(i)
		})
	}
	return g.Wait()
}
