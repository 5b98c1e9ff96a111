package store

import (
	"context"
	"sync"
	"time"
)

// studentLocks serializes writers per student id. Each student gets a
// one-slot channel acting as a mutex, so acquisition can respect both the
// caller's context and the configured bound. Writers for different students
// never contend with each other; readers never touch this at all.
type studentLocks struct {
	mu    sync.Mutex
	slots map[uint]chan struct{}
}

func newStudentLocks() *studentLocks {
	return &studentLocks{slots: make(map[uint]chan struct{})}
}

func (l *studentLocks) slot(studentID uint) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[studentID]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[studentID] = s
	}
	return s
}

// acquire blocks until the student's slot is free, the timeout elapses, or
// ctx is cancelled. On success the returned release must be called on every
// exit path.
func (l *studentLocks) acquire(ctx context.Context, studentID uint, timeout time.Duration) (release func(), err error) {
	s := l.slot(studentID)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-timer.C:
		return nil, errLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
