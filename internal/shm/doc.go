// Package shm provides the cross-process primitives arcset is built on: named
// shared memory regions and named counting semaphores.
//
// A region is a regular file under a tmpfs directory (normally /dev/shm)
// mapped MAP_SHARED into every process that opens it. A semaphore is a tiny
// region holding a 32-bit counter and a waiter count; processes block on the
// counter with shared futex waits and are woken with futex wakes.
//
// Names are plain paths, so anything that can unlink a file can clean up
// after a crashed owner.
//
// Semaphore waits can be bounded: when a context or stop predicate is given,
// each futex wait is capped by an exponential backoff interval and the
// predicate is re-checked after every wake or timeout. A broadcast wake
// (WakeAll) makes every blocked process re-check immediately.
package shm
