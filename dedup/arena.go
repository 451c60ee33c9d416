package dedup

import (
	"github.com/grailbio/base/errors"
	"golang.org/x/sys/unix"
)

const (
	defaultScratchBytes = 2 << 30
	defaultResultBytes  = 512 << 20

	arenaAlign = 8
)

// arena is a fixed-capacity bump allocator over one contiguous block.
// There is no per-object free; the whole block is reclaimed by release.
type arena struct {
	buf    []byte
	used   int
	mapped bool
}

// newMmapArena maps an anonymous region outside the Go heap.  Use it for
// storage that is dropped wholesale before the engine is closed; nothing
// carved from it may be retained past release.
func newMmapArena(size int) (*arena, error) {
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.E(err, "dedup: cannot map arena of", size, "bytes")
	}
	// Transparent hugepages cut TLB misses on multi-GiB arenas.  The hint is
	// advisory and some kernels reject it.
	_ = unix.Madvise(buf, unix.MADV_HUGEPAGE)
	return &arena{buf: buf, mapped: true}, nil
}

// newHeapArena allocates from the Go heap.  Slices carved from it stay
// valid for as long as anything references them, even after the arena
// itself is dropped.
func newHeapArena(size int) *arena {
	return &arena{buf: make([]byte, size)}
}

// alloc returns an n-byte slice, or nil once capacity is exceeded.  The
// cursor advances in 8-byte steps so that consecutive allocations stay
// aligned.
func (a *arena) alloc(n int) []byte {
	aligned := (n + arenaAlign - 1) &^ (arenaAlign - 1)
	if aligned < n || a.used+aligned > len(a.buf) || a.used+aligned < 0 {
		return nil
	}
	b := a.buf[a.used : a.used+n : a.used+n]
	a.used += aligned
	return b
}

// copyBytes carves a copy of src from the arena, or returns nil once
// capacity is exceeded.
func (a *arena) copyBytes(src []byte) []byte {
	dst := a.alloc(len(src))
	if dst == nil {
		return nil
	}
	copy(dst, src)
	return dst
}

func (a *arena) bytesUsed() int { return a.used }

func (a *arena) capacity() int { return len(a.buf) }

// release reclaims the whole block.  Idempotent.
func (a *arena) release() {
	if a.mapped && a.buf != nil {
		// Failure here leaks address space but cannot corrupt state.
		_ = unix.Munmap(a.buf)
	}
	a.buf = nil
	a.used = 0
}
