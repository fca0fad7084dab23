//go:build unix

// Package channel implements the bounded multi-producer, single-consumer
// channel of candidate solutions shared between generator processes and the
// supervisor.
//
// The channel is one shared memory segment plus three named counting
// semaphores: mutex (1) serializes producers, free (capacity) counts empty
// slots and used (0) counts filled ones. The supervisor creates and destroys
// every object; generators attach and detach.
package channel

import (
	"context"
	goerrors "errors"
	"os"

	"go.uber.org/multierr"

	"github.com/bebsworthy/arcset/internal/config"
	"github.com/bebsworthy/arcset/internal/errors"
	"github.com/bebsworthy/arcset/internal/protocol"
	"github.com/bebsworthy/arcset/internal/shm"
)

// Options name and size a channel
type Options struct {
	Name         string
	Dir          string
	Capacity     int
	SlotCapacity int
	Perm         os.FileMode
	Wait         shm.WaitConfig
}

// DefaultOptions returns the options of the default channel
func DefaultOptions() Options {
	return Options{
		Name:         "arcset",
		Dir:          shm.DefaultDir,
		Capacity:     protocol.DefaultChannelCapacity,
		SlotCapacity: protocol.DefaultSlotCapacity,
		Perm:         0o600,
		Wait:         shm.DefaultWaitConfig(),
	}
}

// OptionsFromConfig builds options from the channel configuration section
func OptionsFromConfig(cfg config.ChannelConfig) Options {
	opts := DefaultOptions()
	opts.Name = cfg.Name
	opts.Dir = cfg.Dir
	opts.Capacity = cfg.Capacity
	opts.SlotCapacity = cfg.SlotCapacity
	opts.Wait = shm.WaitConfig{
		InitialInterval: cfg.WaitInitialInterval,
		MaxInterval:     cfg.WaitMaxInterval,
	}
	return opts
}

// Paths are the OS names of the objects making up a channel
type Paths struct {
	Segment string
	Mutex   string
	Free    string
	Used    string
}

// Paths returns the OS names for these options
func (o Options) Paths() Paths {
	dir := shm.ResolveDir(o.Dir)
	return Paths{
		Segment: shm.Path(dir, o.Name, "shm"),
		Mutex:   shm.Path(dir, o.Name, "sem.mutex"),
		Free:    shm.Path(dir, o.Name, "sem.free"),
		Used:    shm.Path(dir, o.Name, "sem.used"),
	}
}

// All lists the names in creation order
func (p Paths) All() []string {
	return []string{p.Segment, p.Mutex, p.Free, p.Used}
}

// Channel is a handle on a shared channel, either owning (from Create) or
// attached (from Attach)
type Channel struct {
	paths  Paths
	owner  bool
	closed bool

	region *shm.Region
	view   *segmentView
	mutex  *shm.Semaphore
	free   *shm.Semaphore
	used   *shm.Semaphore
}

// Stats is a point-in-time snapshot of the channel state
type Stats struct {
	Capacity     int
	SlotCapacity int
	Used         uint32
	Free         uint32
	WriteCursor  uint32
	ReadCursor   uint32
	Terminated   bool
	CreatorPID   uint32
}

// Create creates the segment and its semaphores exclusively and initializes
// them. On failure everything created so far is removed again.
func Create(opts Options) (*Channel, error) {
	if err := validateName(opts.Name); err != nil {
		return nil, err
	}

	layout, err := computeLayout(opts.Capacity, opts.SlotCapacity)
	if err != nil {
		return nil, err
	}
	if opts.Perm == 0 {
		opts.Perm = 0o600
	}

	ch := &Channel{paths: opts.Paths(), owner: true}

	ch.region, err = shm.CreateRegion(ch.paths.Segment, layout.size, opts.Perm)
	if err != nil {
		return nil, err
	}
	ch.view = newSegmentView(ch.region.Bytes(), layout)
	ch.view.initialize(os.Getpid())

	sems := []struct {
		target  **shm.Semaphore
		path    string
		initial uint32
	}{
		{&ch.mutex, ch.paths.Mutex, 1},
		{&ch.free, ch.paths.Free, layout.capacity},
		{&ch.used, ch.paths.Used, 0},
	}
	for _, s := range sems {
		sem, err := shm.CreateSemaphore(s.path, s.initial, opts.Perm)
		if err != nil {
			ch.release(true)
			return nil, err
		}
		sem.SetWaitConfig(opts.Wait)
		*s.target = sem
	}

	return ch, nil
}

// Attach opens an existing channel. Its geometry is read from the segment
// header; Capacity and SlotCapacity in opts are ignored.
func Attach(opts Options) (*Channel, error) {
	if err := validateName(opts.Name); err != nil {
		return nil, err
	}

	ch := &Channel{paths: opts.Paths()}

	var err error
	ch.region, err = shm.OpenRegion(ch.paths.Segment, HeaderSize)
	if err != nil {
		return nil, err
	}
	ch.view, err = openSegmentView(ch.region.Bytes())
	if err != nil {
		ch.release(false)
		return nil, err
	}

	sems := []struct {
		target **shm.Semaphore
		path   string
	}{
		{&ch.mutex, ch.paths.Mutex},
		{&ch.free, ch.paths.Free},
		{&ch.used, ch.paths.Used},
	}
	for _, s := range sems {
		sem, err := shm.OpenSemaphore(s.path)
		if err != nil {
			ch.release(false)
			return nil, err
		}
		sem.SetWaitConfig(opts.Wait)
		*s.target = sem
	}

	return ch, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.InternalError(errors.CodeInvalidLayout, "channel name cannot be empty", nil)
	}
	for _, r := range name {
		if r == '/' {
			return errors.InternalError(errors.CodeInvalidLayout, "channel name must not contain '/'", nil)
		}
	}
	return nil
}

// release closes every object acquired so far and, when unlink is set,
// removes the names. Failures are combined.
func (c *Channel) release(unlink bool) error {
	var err error

	if c.region != nil {
		err = multierr.Append(err, c.region.Close())
		if unlink {
			err = multierr.Append(err, shm.Unlink(c.paths.Segment))
		}
	}

	for _, s := range []*shm.Semaphore{c.mutex, c.free, c.used} {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Close())
		if unlink {
			err = multierr.Append(err, shm.Unlink(s.Path()))
		}
	}

	c.closed = true
	return err
}

// Destroy unmaps, closes and unlinks the segment and the semaphores. Every
// step is attempted; failures are combined with multierr and can be split
// with multierr.Errors. Only the creating handle may destroy.
func (c *Channel) Destroy() error {
	if !c.owner {
		return errors.ErrNotOwner
	}
	if c.closed {
		return errors.ErrClosed
	}
	return c.release(true)
}

// Detach unmaps and closes this process's view without removing any name
func (c *Channel) Detach() error {
	if c.closed {
		return errors.ErrClosed
	}
	return c.release(false)
}

// Paths returns the OS names backing the channel
func (c *Channel) Paths() Paths {
	return c.paths
}

// Owner reports whether this handle created the channel
func (c *Channel) Owner() bool {
	return c.owner
}

// Capacity returns the number of slots
func (c *Channel) Capacity() int {
	return int(c.view.capacity())
}

// SlotCapacity returns the number of edges a slot holds
func (c *Channel) SlotCapacity() int {
	return int(c.view.slotCapacity())
}

// Publish places edges into the next free slot.
//
// Edge lists longer than the slot capacity are dropped silently. Once the
// channel is terminating Publish returns errors.ErrTerminated without taking
// a slot, including when it was already blocked waiting for one.
func (c *Channel) Publish(ctx context.Context, edges []protocol.Edge) error {
	if c.closed {
		return errors.ErrClosed
	}
	if len(edges) > int(c.view.slotCapacity()) {
		return nil
	}
	if c.view.terminated() {
		return errors.ErrTerminated
	}

	stopWake := context.AfterFunc(ctx, func() {
		c.mutex.WakeAll()
		c.free.WakeAll()
	})
	defer stopWake()

	if err := c.mutex.Wait(ctx, c.view.terminated); err != nil {
		return waitError(err)
	}
	if err := c.free.Wait(ctx, c.view.terminated); err != nil {
		return multierr.Append(waitError(err), c.mutex.Post())
	}

	c.view.writeSlot(c.view.writeCursor(), edges)
	err := c.used.Post()
	c.view.advanceWriteCursor()

	return multierr.Append(err, c.mutex.Post())
}

// Consume takes the oldest filled slot, blocking until one is available or
// ctx is done. Only one consumer may call it.
func (c *Channel) Consume(ctx context.Context) (protocol.Solution, error) {
	if c.closed {
		return protocol.Solution{}, errors.ErrClosed
	}

	stopWake := context.AfterFunc(ctx, func() {
		c.used.WakeAll()
	})
	defer stopWake()

	if err := c.used.Wait(ctx, nil); err != nil {
		return protocol.Solution{}, err
	}

	s := c.view.readSlot(c.view.readCursor())
	c.view.advanceReadCursor()

	if err := c.free.Post(); err != nil {
		return s, err
	}
	return s, nil
}

// Terminate raises the terminate flag and wakes every process blocked on
// any of the semaphores so it can observe the flag
func (c *Channel) Terminate() error {
	if c.closed {
		return errors.ErrClosed
	}
	c.view.setTerminated()
	return multierr.Combine(c.mutex.WakeAll(), c.free.WakeAll(), c.used.WakeAll())
}

// Terminated reports whether the terminate flag is set
func (c *Channel) Terminated() bool {
	if c.closed {
		return true
	}
	return c.view.terminated()
}

// Stats returns a snapshot of the channel state
func (c *Channel) Stats() Stats {
	if c.closed {
		return Stats{Terminated: true}
	}
	return Stats{
		Capacity:     c.Capacity(),
		SlotCapacity: c.SlotCapacity(),
		Used:         c.used.Value(),
		Free:         c.free.Value(),
		WriteCursor:  c.view.writeCursor(),
		ReadCursor:   c.view.readCursor(),
		Terminated:   c.view.terminated(),
		CreatorPID:   c.view.creatorPID(),
	}
}

// waitError maps a semaphore wait failure onto the Publish contract
func waitError(err error) error {
	if goerrors.Is(err, shm.ErrStopped) {
		return errors.ErrTerminated
	}
	return err
}

// Unlink removes every name of the channel described by opts, continuing
// past failures. It is used to recover from a supervisor that died without
// tearing down.
func Unlink(opts Options) error {
	var err error
	for _, path := range opts.Paths().All() {
		err = multierr.Append(err, shm.Unlink(path))
	}
	return err
}
