package group

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func BenchmarkBasicExecution(b *testing.B) {
	pool := newTestPool(b, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g := New(pool)
		for j := 0; j < 10; j++ {
			g.Go(func(ctx context.Context) error {
				return nil
			})
		}
		g.Wait()
	}
}

func BenchmarkExecutionWithErrors(b *testing.B) {
	pool := newTestPool(b, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g := New(pool, WithErrorMode(CollectAll))
		for j := 0; j < 10; j++ {
			g.Go(func(ctx context.Context) error {
				if j%2 == 0 {
					return errors.New("benchmark error")
				}
				return nil
			})
		}
		g.Wait()
	}
}

func BenchmarkHighConcurrency(b *testing.B) {
	pool := newTestPool(b, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g := New(pool)
		var counter atomic.Int32
		for j := 0; j < 1000; j++ {
			g.Go(func(ctx context.Context) error {
				counter.Add(1)
				return nil
			})
		}
		g.Wait()
	}
}
