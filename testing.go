package kernel

import (
	"context"

	"github.com/rvkern/kernel/internal/loader"
	"github.com/rvkern/kernel/internal/sbi"
)

// TestHarness wraps a booted Kernel with a BufferShim, for tests and
// embedders that want to exercise boot/shutdown without real SBI
// firmware. Grounded on the teacher's MockBackend: a test double
// satisfying the same contract as the real collaborator while recording
// what passed through it, generalized here from backend I/O to console
// output, timer programming and IPIs.
type TestHarness struct {
	*Kernel
	Shim *sbi.BufferShim
}

// NewTestHarness boots a single-hart kernel over a BufferShim with the
// given images, falling back to the built-in "init" image if images is
// nil.
func NewTestHarness(ctx context.Context, images map[string]loader.Image) (*TestHarness, error) {
	board := QEMUBoard()
	board.HartCount = 1

	shim := sbi.NewBufferShim()
	k, err := Boot(ctx, Config{
		Board:  board,
		Shim:   shim,
		Images: images,
	})
	if err != nil {
		return nil, err
	}
	return &TestHarness{Kernel: k, Shim: shim}, nil
}

// Console returns everything written to the harness's simulated UART
// console so far.
func (h *TestHarness) Console() string {
	return h.Shim.Console()
}
