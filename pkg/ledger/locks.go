package ledger

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// customerLocks serializes mutations per customer inside one process.
// Idle customers hold no memory.
type customerLocks struct {
	mu      sync.Mutex
	holders map[string]*customerLock
}

type customerLock struct {
	semaphore *semaphore.Weighted
	refs      int
}

func newCustomerLocks() *customerLocks {
	return &customerLocks{holders: make(map[string]*customerLock)}
}

// acquire blocks until the customer's lock is held, timeout passes or ctx ends.
// The returned release may be called more than once.
func (locks *customerLocks) acquire(ctx context.Context, timeout time.Duration, customerID CustomerID) (func(), error) {
	key := customerID.String()
	locks.mu.Lock()
	holder, ok := locks.holders[key]
	if !ok {
		holder = &customerLock{semaphore: semaphore.NewWeighted(1)}
		locks.holders[key] = holder
	}
	holder.refs++
	locks.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := holder.semaphore.Acquire(waitCtx, 1); err != nil {
		locks.forget(key, holder)
		return nil, lockError(ctx, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			holder.semaphore.Release(1)
			locks.forget(key, holder)
		})
	}, nil
}

func (locks *customerLocks) forget(key string, holder *customerLock) {
	locks.mu.Lock()
	defer locks.mu.Unlock()
	holder.refs--
	if holder.refs == 0 {
		delete(locks.holders, key)
	}
}

func (locks *customerLocks) active() int {
	locks.mu.Lock()
	defer locks.mu.Unlock()
	return len(locks.holders)
}
