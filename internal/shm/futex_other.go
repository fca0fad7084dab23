//go:build unix && !linux

package shm

import (
	"sync/atomic"
	"time"
)

// pollInterval bounds an indefinite wait where no futex is available
const pollInterval = time.Millisecond

// futexWait polls *addr instead of blocking in the kernel
func futexWait(addr *uint32, val uint32, timeout time.Duration) error {
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	if timeout <= 0 || timeout > pollInterval {
		time.Sleep(pollInterval)
		return nil
	}
	time.Sleep(timeout)
	return errFutexTimeout
}

// futexWake is a no-op; pollers observe the new value on their own
func futexWake(addr *uint32, n int) (int, error) {
	return 0, nil
}
