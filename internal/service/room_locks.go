package service

import (
	"sync"

	"pairchat/internal/domain"
)

// roomLocks is a keyed mutex. Entries are removed once no goroutine holds or
// waits for them.
type roomLocks struct {
	mu    sync.Mutex
	locks map[domain.RoomKey]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[domain.RoomKey]*roomLock)}
}

// lock blocks until the room is free and returns its unlock func
func (l *roomLocks) lock(roomKey domain.RoomKey) func() {
	l.mu.Lock()
	rl, ok := l.locks[roomKey]
	if !ok {
		rl = &roomLock{}
		l.locks[roomKey] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, roomKey)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
