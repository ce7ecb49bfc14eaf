package builder

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLocked(locks *appLocks, appId uuid.UUID, d time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()
	locks.Lock(appId)
	time.Sleep(d)
	_ = locks.Unlock(appId)
}

func TestAppLocks_SameAppRunsSequentially(t *testing.T) {
	locks := newAppLocks()
	appId := uuid.New()
	sleep := 200 * time.Millisecond

	wg := sync.WaitGroup{}
	wg.Add(2)
	start := time.Now()
	go runLocked(locks, appId, sleep, &wg)
	go runLocked(locks, appId, sleep, &wg)
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 2*sleep)
	assert.Zero(t, locks.size())
}

func TestAppLocks_DifferentAppsRunConcurrently(t *testing.T) {
	locks := newAppLocks()
	sleep := 200 * time.Millisecond

	wg := sync.WaitGroup{}
	wg.Add(2)
	start := time.Now()
	go runLocked(locks, uuid.New(), sleep, &wg)
	go runLocked(locks, uuid.New(), sleep, &wg)
	wg.Wait()

	assert.Less(t, time.Since(start), 2*sleep)
	assert.Zero(t, locks.size())
}

func TestAppLocks_UnlockWithoutLock(t *testing.T) {
	locks := newAppLocks()
	require.Error(t, locks.Unlock(uuid.New()))
}
