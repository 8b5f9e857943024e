package lock

import (
	"context"
	"sync"
)

type localLocker struct {
	opts Options

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates an in-process locker. Use it when a single instance owns the ledger.
func NewLocalLocker(opts Options) Locker {
	return &localLocker{
		opts:  opts.withDefaults(),
		slots: make(map[string]chan struct{}),
	}
}

func (l *localLocker) WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = normalizeKeys(keys)

	waitCtx, cancelWait := context.WithTimeout(ctx, l.opts.Wait)
	defer cancelWait()

	held := make([]string, 0, len(keys))
	defer func() {
		for _, k := range held {
			l.release(k)
		}
	}()

	for _, k := range keys {
		if err := l.acquire(waitCtx, k); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		held = append(held, k)
	}

	fnCtx, cancel := context.WithTimeout(ctx, l.opts.TTL)
	defer cancel()

	return fn(fnCtx)
}

func (l *localLocker) acquire(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		ch, busy := l.slots[key]
		if !busy {
			l.slots[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ErrLockNotAcquired
		}
	}
}

func (l *localLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.slots[key]; ok {
		close(ch)
		delete(l.slots, key)
	}
}
