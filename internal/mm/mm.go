// Package mm defines the contract the scheduler and trap dispatcher need
// from an address space: translating the fixed virtual addresses of the
// trampoline, trap-context and user-trap-buffer pages (internal/config)
// into the bytes backing them. Page-table format and the physical frame
// allocator are out of scope; this package models the address space as
// an opaque collaborator with a translate-and-fetch contract, the way
// internal/sbi models firmware as a four-call contract.
package mm

import (
	"fmt"
	"sync"

	"github.com/rvkern/kernel/internal/config"
)

// AddressSpace is the per-task (or per-hart, for the kernel's own space)
// view of memory the rest of the kernel needs: resolving a fixed virtual
// address to the backing byte slice for the trap context and user-trap
// buffer pages.
type AddressSpace interface {
	// Page returns the backing bytes for the page containing va. The
	// returned slice always has length config.PageSize.
	Page(va uint64) ([]byte, error)
}

// FlatSpace is a software model of an address space: every "virtual"
// page it knows about is backed by a real Go-heap page, keyed by its
// fixed virtual address. There is no translation beyond a map lookup,
// since this repo never executes real machine code in a separate
// address space — it reproduces the kernel's ownership and concurrency
// design, not an MMU.
type FlatSpace struct {
	mu    sync.Mutex
	pages map[uint64][]byte
}

// NewFlatSpace builds an address space with the trampoline, trap-context
// and user-trap-buffer pages pre-allocated at their fixed addresses.
func NewFlatSpace() *FlatSpace {
	fs := &FlatSpace{pages: make(map[uint64][]byte)}
	for _, va := range []uint64{config.Trampoline, config.TrapContext, config.UserTrapBuffer} {
		fs.pages[va] = make([]byte, config.PageSize)
	}
	return fs
}

// Page returns the backing bytes for the page containing va, allocating
// it on first use if va does not already name a known page.
func (fs *FlatSpace) Page(va uint64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	base := va &^ (config.PageSize - 1)
	page, ok := fs.pages[base]
	if !ok {
		return nil, fmt.Errorf("mm: unmapped page for va %#x", va)
	}
	return page, nil
}

// Map installs va as a known page, allocating backing storage for it.
// Used to give a newly spawned task its own trap-context and
// user-trap-buffer pages distinct from its parent's.
func (fs *FlatSpace) Map(va uint64) []byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	base := va &^ (config.PageSize - 1)
	page := make([]byte, config.PageSize)
	fs.pages[base] = page
	return page
}

// Unmap removes the page containing va, if any, reporting whether a
// page was actually present. Used by sys_munmap; the frame allocator
// that would reclaim physical pages is out of scope, so this only drops
// the kernel's own bookkeeping entry.
func (fs *FlatSpace) Unmap(va uint64) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	base := va &^ (config.PageSize - 1)
	if _, ok := fs.pages[base]; !ok {
		return false
	}
	delete(fs.pages, base)
	return true
}

// MapRange maps every page covering [va, va+length), returning the
// number of pages newly mapped.
func (fs *FlatSpace) MapRange(va, length uint64) int {
	start := va &^ (config.PageSize - 1)
	end := (va + length + config.PageSize - 1) &^ (config.PageSize - 1)
	n := 0
	for p := start; p < end; p += config.PageSize {
		fs.Map(p)
		n++
	}
	return n
}

// UnmapRange unmaps every page covering [va, va+length), returning the
// number of pages actually removed.
func (fs *FlatSpace) UnmapRange(va, length uint64) int {
	start := va &^ (config.PageSize - 1)
	end := (va + length + config.PageSize - 1) &^ (config.PageSize - 1)
	n := 0
	for p := start; p < end; p += config.PageSize {
		if fs.Unmap(p) {
			n++
		}
	}
	return n
}
