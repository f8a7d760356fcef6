package device

import "sync"

// keyedMutex hands out one mutex per device identity. Entries are kept for
// the life of the process; the device population is small and bounded.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[key]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[key]*sync.Mutex)}
}

// Lock locks k and returns the matching unlock function.
func (m *keyedMutex) Lock(k key) func() {
	m.mu.Lock()
	l, ok := m.locks[k]
	if !ok {
		l = &sync.Mutex{}
		m.locks[k] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
