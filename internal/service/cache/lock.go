package cache

import (
	"context"
	"time"

	drepo "Farenheit/internal/domain/repository"
	pkgcache "Farenheit/pkg/cache"
)

const lockPrefix = "lock"

// Locker hands out stage locks backed by the cache's TryLock. With Redis the
// lock is shared by every instance; with the memory cache it is per process.
// Release is a no-op once the lock expired and was taken by another holder.
type Locker struct {
	svc pkgcache.Service
}

func NewLocker(svc pkgcache.Service) *Locker {
	return &Locker{svc: svc}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	k := pkgcache.GenerateKey(lockPrefix, key)
	token, ok, err := l.svc.TryLock(ctx, k, ttl)
	if err != nil || !ok {
		return func() {}, ok, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.svc.Unlock(ctx, k, token)
	}
	return release, true, nil
}

var _ drepo.Locker = (*Locker)(nil)
