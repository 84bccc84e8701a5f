// Package consumer drains the crawler Kafka topics into MySQL in batches.
package consumer

import (
	"context"
	"time"
)

// Batcher groups items and flushes them when the batch is full or the
// timeout passes, whichever comes first.
type Batcher[T any] struct {
	size    int
	timeout time.Duration
	items   chan T
	flush   func(ctx context.Context, batch []T)
}

func NewBatcher[T any](size int, timeout time.Duration, flush func(context.Context, []T)) *Batcher[T] {
	if size <= 0 {
		size = 100
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Batcher[T]{
		size:    size,
		timeout: timeout,
		items:   make(chan T, size*2),
		flush:   flush,
	}
}

// Add queues item, blocking while the buffer is full.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	select {
	case b.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run flushes batches until ctx ends, then flushes what is left.
func (b *Batcher[T]) Run(ctx context.Context) {
	var batch []T
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain what was already accepted.
			for {
				select {
				case item := <-b.items:
					batch = append(batch, item)
				default:
					if len(batch) > 0 {
						b.flush(context.WithoutCancel(ctx), batch)
					}
					return
				}
			}

		case item := <-b.items:
			batch = append(batch, item)
			if len(batch) >= b.size {
				b.flush(ctx, batch)
				batch = nil
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(b.timeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				b.flush(ctx, batch)
				batch = nil
			}
			timer.Reset(b.timeout)
		}
	}
}
