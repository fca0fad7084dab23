package channel

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/bebsworthy/arcset/internal/errors"
	"github.com/bebsworthy/arcset/internal/protocol"
)

// Segment layout, host byte order:
//
//	0   magic [8]byte "ARCSET\0\0"
//	8   version
//	12  capacity
//	16  slot capacity (edges per slot)
//	20  write cursor
//	24  read cursor
//	28  terminate flag
//	32  creator pid
//	36  reserved up to HeaderSize
//	64  lengths [capacity]uint32, padded to 8 bytes
//	    data [capacity][2*slot capacity]int32
const (
	HeaderSize     = 64
	SegmentVersion = 1

	MaxCapacity     = 1 << 16
	MaxSlotCapacity = 1 << 20

	offMagic        = 0
	offVersion      = 8
	offCapacity     = 12
	offSlotCapacity = 16
	offWriteCursor  = 20
	offReadCursor   = 24
	offTerminate    = 28
	offCreatorPID   = 32
)

var segmentMagic = [8]byte{'A', 'R', 'C', 'S', 'E', 'T', 0, 0}

// segmentLayout gives the byte offsets of a segment with the given geometry
type segmentLayout struct {
	capacity     uint32
	slotCapacity uint32
	lengthsOff   int
	dataOff      int
	size         int
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// computeLayout validates the geometry and returns the offsets
func computeLayout(capacity, slotCapacity int) (segmentLayout, error) {
	if capacity < 1 || capacity > MaxCapacity {
		return segmentLayout{}, errors.InternalError(errors.CodeInvalidLayout,
			fmt.Sprintf("capacity must be between 1 and %d, got %d", MaxCapacity, capacity), nil)
	}
	if slotCapacity < 1 || slotCapacity > MaxSlotCapacity {
		return segmentLayout{}, errors.InternalError(errors.CodeInvalidLayout,
			fmt.Sprintf("slot capacity must be between 1 and %d, got %d", MaxSlotCapacity, slotCapacity), nil)
	}

	lengthsOff := HeaderSize
	dataOff := lengthsOff + align8(capacity*4)
	size := dataOff + capacity*2*slotCapacity*4

	return segmentLayout{
		capacity:     uint32(capacity),
		slotCapacity: uint32(slotCapacity),
		lengthsOff:   lengthsOff,
		dataOff:      dataOff,
		size:         size,
	}, nil
}

// segmentView gives typed access to a mapped segment
type segmentView struct {
	mem     []byte
	layout  segmentLayout
	lengths []uint32
	data    []int32
}

func newSegmentView(mem []byte, l segmentLayout) *segmentView {
	base := unsafe.Pointer(&mem[0])
	return &segmentView{
		mem:     mem,
		layout:  l,
		lengths: unsafe.Slice((*uint32)(unsafe.Add(base, l.lengthsOff)), l.capacity),
		data:    unsafe.Slice((*int32)(unsafe.Add(base, l.dataOff)), int(l.capacity)*2*int(l.slotCapacity)),
	}
}

// openSegmentView validates the header of an existing segment
func openSegmentView(mem []byte) (*segmentView, error) {
	if len(mem) < HeaderSize {
		return nil, errors.ResourceError(errors.CodeInvalidLayout,
			fmt.Sprintf("segment too small: %d bytes", len(mem)), nil)
	}

	var magic [8]byte
	copy(magic[:], mem[offMagic:offMagic+8])
	if magic != segmentMagic {
		return nil, errors.ResourceError(errors.CodeInvalidLayout, "bad segment magic", nil).
			WithDetails("magic", fmt.Sprintf("%q", magic[:]))
	}

	base := unsafe.Pointer(&mem[0])
	word := func(off int) uint32 {
		return atomic.LoadUint32((*uint32)(unsafe.Add(base, off)))
	}

	if v := word(offVersion); v != SegmentVersion {
		return nil, errors.ResourceError(errors.CodeInvalidLayout,
			fmt.Sprintf("unsupported segment version %d, want %d", v, SegmentVersion), nil)
	}

	l, err := computeLayout(int(word(offCapacity)), int(word(offSlotCapacity)))
	if err != nil {
		return nil, errors.ResourceError(errors.CodeInvalidLayout, "bad segment geometry", err)
	}
	if len(mem) < l.size {
		return nil, errors.ResourceError(errors.CodeInvalidLayout,
			fmt.Sprintf("segment is %d bytes, geometry needs %d", len(mem), l.size), nil)
	}

	return newSegmentView(mem, l), nil
}

func (v *segmentView) word(off int) *uint32 {
	return (*uint32)(unsafe.Add(unsafe.Pointer(&v.mem[0]), off))
}

// initialize writes a fresh header and marks every slot unwritten. The magic
// is written last so a concurrent opener never sees a half-built header.
func (v *segmentView) initialize(creatorPID int) {
	for i := range v.lengths {
		atomic.StoreUint32(&v.lengths[i], protocol.InfiniteCount)
	}
	for i := range v.data {
		v.data[i] = protocol.NoNode
	}

	atomic.StoreUint32(v.word(offVersion), SegmentVersion)
	atomic.StoreUint32(v.word(offCapacity), v.layout.capacity)
	atomic.StoreUint32(v.word(offSlotCapacity), v.layout.slotCapacity)
	atomic.StoreUint32(v.word(offWriteCursor), 0)
	atomic.StoreUint32(v.word(offReadCursor), 0)
	atomic.StoreUint32(v.word(offTerminate), 0)
	atomic.StoreUint32(v.word(offCreatorPID), uint32(creatorPID))
	copy(v.mem[offMagic:offMagic+8], segmentMagic[:])
}

func (v *segmentView) capacity() uint32     { return v.layout.capacity }
func (v *segmentView) slotCapacity() uint32 { return v.layout.slotCapacity }

func (v *segmentView) writeCursor() uint32 { return atomic.LoadUint32(v.word(offWriteCursor)) }
func (v *segmentView) readCursor() uint32  { return atomic.LoadUint32(v.word(offReadCursor)) }
func (v *segmentView) creatorPID() uint32  { return atomic.LoadUint32(v.word(offCreatorPID)) }

func (v *segmentView) advanceWriteCursor() {
	atomic.StoreUint32(v.word(offWriteCursor), (v.writeCursor()+1)%v.layout.capacity)
}

func (v *segmentView) advanceReadCursor() {
	atomic.StoreUint32(v.word(offReadCursor), (v.readCursor()+1)%v.layout.capacity)
}

func (v *segmentView) terminated() bool {
	return atomic.LoadUint32(v.word(offTerminate)) != 0
}

func (v *segmentView) setTerminated() {
	atomic.StoreUint32(v.word(offTerminate), 1)
}

// writeSlot stores edges into slot i, padding the rest with NoNode. The
// caller guarantees len(edges) <= slot capacity.
func (v *segmentView) writeSlot(i uint32, edges []protocol.Edge) {
	stride := 2 * int(v.layout.slotCapacity)
	slot := v.data[int(i)*stride : int(i+1)*stride]

	for j, e := range edges {
		slot[2*j] = e.From
		slot[2*j+1] = e.To
	}
	for j := 2 * len(edges); j < stride; j++ {
		slot[j] = protocol.NoNode
	}
	atomic.StoreUint32(&v.lengths[i], uint32(len(edges)))
}

// readSlot copies slot i out of shared memory
func (v *segmentView) readSlot(i uint32) protocol.Solution {
	count := atomic.LoadUint32(&v.lengths[i])
	n := count
	if n > v.layout.slotCapacity {
		n = v.layout.slotCapacity
	}

	stride := 2 * int(v.layout.slotCapacity)
	slot := v.data[int(i)*stride : int(i+1)*stride]

	edges := make([]protocol.Edge, 0, n)
	for j := 0; j < int(n); j++ {
		e := protocol.Edge{From: slot[2*j], To: slot[2*j+1]}
		if e.IsNone() {
			break
		}
		edges = append(edges, e)
	}
	return protocol.Solution{Count: count, Edges: edges}
}
