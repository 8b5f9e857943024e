package lock

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker guards booking critical sections. fn runs while every key is held.
type Locker interface {
	WithLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// Options bound how long a lock lives and how long a caller waits for it.
type Options struct {
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Second
	}
	if o.Wait <= 0 {
		o.Wait = 2 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	return o
}

// normalizeKeys sorts and dedupes keys so that callers always acquire in the same order.
func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
