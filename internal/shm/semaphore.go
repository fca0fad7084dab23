//go:build unix

package shm

import (
	"context"
	goerrors "errors"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff/v4"

	"github.com/bebsworthy/arcset/internal/errors"
)

// Semaphore file layout: magic, value, waiters, reserved.
const (
	semMagic       uint32 = 0x4d455341 // "ASEM"
	semSize               = 16
	semValueOffset        = 4
	semWaitOffset         = 8
)

var (
	// ErrStopped is returned by Wait when its stop predicate reports true
	ErrStopped = goerrors.New("semaphore wait stopped")

	errFutexTimeout = goerrors.New("futex timeout")
)

// WaitConfig bounds individual futex waits when a wait can be interrupted
type WaitConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultWaitConfig returns the intervals used when none are configured
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
	}
}

// Semaphore is a named counting semaphore shared between processes
type Semaphore struct {
	region  *Region
	value   *uint32
	waiters *uint32
	wait    WaitConfig
}

// CreateSemaphore exclusively creates a semaphore at path holding initial
func CreateSemaphore(path string, initial uint32, perm os.FileMode) (*Semaphore, error) {
	region, err := CreateRegion(path, semSize, perm)
	if err != nil {
		return nil, err
	}

	s := newSemaphore(region)
	atomic.StoreUint32(s.value, initial)
	atomic.StoreUint32(s.waiters, 0)
	atomic.StoreUint32(s.magic(), semMagic)
	return s, nil
}

// OpenSemaphore opens an existing semaphore at path
func OpenSemaphore(path string) (*Semaphore, error) {
	region, err := OpenRegion(path, semSize)
	if err != nil {
		return nil, err
	}

	s := newSemaphore(region)
	if atomic.LoadUint32(s.magic()) != semMagic {
		region.Close()
		return nil, errors.ResourceError(errors.CodeInvalidLayout,
			fmt.Sprintf("%s is not a semaphore", path), nil)
	}
	return s, nil
}

func newSemaphore(region *Region) *Semaphore {
	mem := region.Bytes()
	return &Semaphore{
		region:  region,
		value:   (*uint32)(unsafe.Pointer(&mem[semValueOffset])),
		waiters: (*uint32)(unsafe.Pointer(&mem[semWaitOffset])),
		wait:    DefaultWaitConfig(),
	}
}

func (s *Semaphore) magic() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.region.Bytes()[0]))
}

// SetWaitConfig changes the backoff intervals of bounded waits
func (s *Semaphore) SetWaitConfig(cfg WaitConfig) {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultWaitConfig().InitialInterval
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	s.wait = cfg
}

// Path returns the semaphore's OS name
func (s *Semaphore) Path() string {
	return s.region.Path()
}

// Value returns the current count
func (s *Semaphore) Value() uint32 {
	return atomic.LoadUint32(s.value)
}

// TryWait takes one permit if one is available
func (s *Semaphore) TryWait() bool {
	for {
		v := atomic.LoadUint32(s.value)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.value, v, v-1) {
			return true
		}
	}
}

// Wait takes one permit, blocking until one is available.
//
// It returns ctx.Err() once ctx is done and ErrStopped once stop reports
// true; both are checked before every sleep, and no permit is held when
// either is returned. With neither a cancellable ctx nor stop it blocks
// indefinitely.
func (s *Semaphore) Wait(ctx context.Context, stop func() bool) error {
	bounded := ctx.Done() != nil || stop != nil

	var bo *backoff.ExponentialBackOff
	if bounded {
		bo = backoff.NewExponentialBackOff()
		bo.InitialInterval = s.wait.InitialInterval
		bo.MaxInterval = s.wait.MaxInterval
		bo.MaxElapsedTime = 0
		bo.Reset()
	}

	for {
		if s.TryWait() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if stop != nil && stop() {
			return ErrStopped
		}

		var timeout time.Duration
		if bounded {
			timeout = bo.NextBackOff()
		}

		atomic.AddUint32(s.waiters, 1)
		err := futexWait(s.value, 0, timeout)
		atomic.AddUint32(s.waiters, ^uint32(0))

		if err != nil && !goerrors.Is(err, errFutexTimeout) {
			return errors.InternalError(errors.CodeUnknown, "semaphore wait failed on "+s.Path(), err)
		}
	}
}

// Post releases one permit and wakes one waiter if any
func (s *Semaphore) Post() error {
	atomic.AddUint32(s.value, 1)
	if atomic.LoadUint32(s.waiters) > 0 {
		if _, err := futexWake(s.value, 1); err != nil {
			return errors.InternalError(errors.CodeUnknown, "semaphore post failed on "+s.Path(), err)
		}
	}
	return nil
}

// WakeAll wakes every waiter without releasing a permit, so each one
// re-checks its context and stop predicate
func (s *Semaphore) WakeAll() error {
	if _, err := futexWake(s.value, math.MaxInt32); err != nil {
		return errors.InternalError(errors.CodeUnknown, "semaphore wake failed on "+s.Path(), err)
	}
	return nil
}

// Close releases this process's handle. The name is kept.
func (s *Semaphore) Close() error {
	return s.region.Close()
}
