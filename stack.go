package corort

// pageSize is the rounding unit for stack region sizes, matching the
// typical Linux page size. Sizes are always rounded up to a multiple of
// this value.
const pageSize = 4096

// roundToPage rounds n up to the next multiple of pageSize.
func roundToPage(n int) int {
	if n <= 0 {
		return pageSize
	}
	if rem := n % pageSize; rem != 0 {
		n += pageSize - rem
	}
	return n
}

// StackRegion is a heap-backed scratch region standing in for a
// coroutine's execution stack (see "Machine context" in [doc]). It owns
// a byte slice rounded up to a page multiple and, when occupied, a back
// reference to the coroutine currently mapped to it.
type StackRegion struct {
	bytes    []byte
	occupant *Coroutine
}

// allocRegion allocates a private StackRegion of at least size bytes.
func allocRegion(size int) *StackRegion {
	size = roundToPage(size)
	return &StackRegion{bytes: make([]byte, size)}
}

// Bytes returns the region's scratch memory. Callers that want the
// shared-stack save/restore semantics of spec §4.2 to matter should treat
// this slice, and only this slice, as "the stack" for their coroutine.
func (r *StackRegion) Bytes() []byte { return r.bytes }

// Len returns the region's byte length (a page multiple).
func (r *StackRegion) Len() int { return len(r.bytes) }

// StackPool is a fixed-size array of same-length [StackRegion] values
// rotated among many coroutines via [StackPool.NextSlot]. The pool does
// no ownership transfer of its own: slot assignment is purely
// cursor-based, and correctness when two coroutines share a slot over
// time is guaranteed by the save/restore algorithm in [Coroutine.Resume].
type StackPool struct {
	regions []*StackRegion
	next    int
}

// NewStackPool allocates a pool of count regions, each regionSize bytes
// (rounded up to a page multiple).
func NewStackPool(count, regionSize int) *StackPool {
	if count <= 0 {
		count = 1
	}
	p := &StackPool{regions: make([]*StackRegion, count)}
	for i := range p.regions {
		p.regions[i] = allocRegion(regionSize)
	}
	return p
}

// NextSlot returns the next region in rotation order. Two distinct
// coroutines may be returned the same region at different times; the
// occupant back-reference on the region records who holds it now.
func (p *StackPool) NextSlot() *StackRegion {
	r := p.regions[p.next]
	p.next = (p.next + 1) % len(p.regions)
	return r
}

// Cap returns the number of regions in the pool.
func (p *StackPool) Cap() int { return len(p.regions) }
