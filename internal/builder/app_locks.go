package builder

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// appLocks serializes generations for the same app. Entries are removed once no
// goroutine holds or waits on them.
type appLocks struct {
	edit    sync.Mutex
	waiters map[uuid.UUID]int
	mutexes map[uuid.UUID]*sync.Mutex
}

func newAppLocks() *appLocks {
	return &appLocks{
		waiters: make(map[uuid.UUID]int),
		mutexes: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *appLocks) Lock(appId uuid.UUID) {
	m.edit.Lock()

	mu := m.mutexes[appId]
	if mu == nil {
		mu = &sync.Mutex{}
		m.mutexes[appId] = mu
	}
	m.waiters[appId]++
	m.edit.Unlock()

	mu.Lock()
}

func (m *appLocks) Unlock(appId uuid.UUID) error {
	m.edit.Lock()
	defer m.edit.Unlock()

	mu := m.mutexes[appId]
	if mu == nil {
		return fmt.Errorf("app %v is not locked", appId)
	}

	mu.Unlock()
	m.waiters[appId]--

	if m.waiters[appId] == 0 {
		delete(m.mutexes, appId)
		delete(m.waiters, appId)
	}

	return nil
}

func (m *appLocks) size() int {
	m.edit.Lock()
	defer m.edit.Unlock()
	return len(m.mutexes)
}
