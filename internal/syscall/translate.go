package syscall

import (
	"fmt"

	"github.com/rvkern/kernel/internal/config"
	"github.com/rvkern/kernel/internal/task"
)

// translate resolves a (virtual address, length) pair against t's
// address space into a byte slice the caller can read or write
// directly. Buffers must fit within a single page: this repo models
// ownership and concurrency, not a real MMU, so there is no
// page-crossing scatter/gather (internal/mm's documented scope).
func translate(t *task.Task, va uint64, length int) ([]byte, error) {
	inner := t.Lock()
	space := inner.AddrSpace
	t.Unlock()

	page, err := space.Page(va)
	if err != nil {
		return nil, err
	}
	off := int(va & (config.PageSize - 1))
	if off+length > len(page) || length < 0 {
		return nil, fmt.Errorf("syscall: buffer at %#x/%d crosses a page boundary", va, length)
	}
	return page[off : off+length], nil
}
