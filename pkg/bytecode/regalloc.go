package bytecode

import "sort"

// registerAllocator hands out virtual registers for one function body.
//
// Freed registers go onto a free list kept in ascending order, and Alloc
// always prefers the lowest free index before growing the window. That makes
// allocation order a pure function of the request sequence, which keeps
// compiled output deterministic. Lifetimes are tracked linearly over the
// emitted instruction order; a register that crosses a branch simply stays
// live until the walk frees it.
//
// Parameters are pinned: NewRegisterAllocator reserves registers 0..arity-1
// up front and the compiler never frees them, so callers can always address
// parameter i at register i.
type registerAllocator struct {
	next int   // first never-allocated index
	free []int // freed indexes, ascending
	high int   // high watermark, becomes Function.NumRegisters
}

// newRegisterAllocator returns an allocator with the first arity registers
// already handed out (and never reusable) for parameters.
func newRegisterAllocator(arity int) *registerAllocator {
	return &registerAllocator{next: arity, high: arity}
}

// Alloc returns the lowest available register.
func (a *registerAllocator) Alloc() uint16 {
	if len(a.free) > 0 {
		reg := a.free[0]
		a.free = a.free[1:]
		return uint16(reg)
	}
	reg := a.next
	a.next++
	if a.next > a.high {
		a.high = a.next
	}
	return uint16(reg)
}

// AllocBlock returns the base of n consecutive fresh registers. Call
// arguments must be contiguous, so the block always comes from the top of
// the window rather than the free list.
func (a *registerAllocator) AllocBlock(n int) uint16 {
	base := a.next
	a.next += n
	if a.next > a.high {
		a.high = a.next
	}
	return uint16(base)
}

// Free returns a register to the free list, keeping it sorted ascending.
func (a *registerAllocator) Free(reg uint16) {
	r := int(reg)
	idx := sort.SearchInts(a.free, r)
	if idx < len(a.free) && a.free[idx] == r {
		return // already free
	}
	a.free = append(a.free, 0)
	copy(a.free[idx+1:], a.free[idx:])
	a.free[idx] = r
}

// FreeBlock returns n consecutive registers starting at base.
func (a *registerAllocator) FreeBlock(base uint16, n int) {
	for i := 0; i < n; i++ {
		a.Free(base + uint16(i))
	}
}

// MaxUsed returns the high watermark: the register window size the compiled
// function needs.
func (a *registerAllocator) MaxUsed() int { return a.high }
