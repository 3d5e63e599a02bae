package session

import (
	"context"
	"sync"
)

var (
	registryMu sync.Mutex
	registry   = map[string]*Actor{}
)

// For returns the actor owning userKey, creating it on first use. The same
// key always maps to the same actor for the life of the process.
func For(userKey string) *Actor {
	registryMu.Lock()
	defer registryMu.Unlock()

	if a, ok := registry[userKey]; ok {
		return a
	}
	a := newActor(userKey)
	registry[userKey] = a
	return a
}

// ResumeSchedules re-arms persisted keep-alive wake-ups for every session
// stored before the last restart. Called once at startup.
func ResumeSchedules(ctx context.Context) error {
	keys, err := listSessionKeys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		For(key).resumeSchedule(ctx)
	}
	return nil
}

// CloseAll releases every actor's browser. Used by tests and shutdown.
func CloseAll() {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, a := range registry {
		a.stopTimer()
		a.driver.Close()
	}
	registry = map[string]*Actor{}
}
