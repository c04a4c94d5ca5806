package locking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

const defaultTimeout = 30 * time.Second

// CompanyLocker allows one intake run or lifecycle transition per company at
// a time within this process. Waiters give up after the timeout. Company
// names are compared exactly after trimming, the same way the workbook and
// folder stores name them.
type CompanyLocker struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func NewCompanyLocker(timeout time.Duration) *CompanyLocker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CompanyLocker{
		timeout: timeout,
		locks:   make(map[string]*semaphore.Weighted),
	}
}

func (l *CompanyLocker) Acquire(ctx context.Context, company string) (func(), error) {
	key := strings.TrimSpace(company)
	if key == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "acquire company lock", fmt.Errorf("company is required"))
	}
	sem := l.lockFor(key)

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.WrapError(domain.ErrLockTimeout, "acquire company lock", fmt.Errorf("%s: waited %s", company, l.timeout))
	}

	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}

func (l *CompanyLocker) lockFor(key string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.locks[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.locks[key] = sem
	}
	return sem
}
