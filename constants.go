package kernel

import "github.com/rvkern/kernel/internal/config"

// Re-export board/platform constants for the public API.
const (
	PageSize              = config.PageSize
	KernelStackSize       = config.KernelStackSize
	UserStackSize         = config.UserStackSize
	KernelHeapSize        = config.KernelHeapSize
	UserTrapQueueCapacity = config.UserTrapQueueCapacity
	DefaultPriority       = config.DefaultPriority
	MinPriority           = config.MinPriority
)

// Board re-exports internal/config.Board so callers can build or load a
// board profile without importing the internal package directly.
type Board = config.Board

// QEMUBoard re-exports internal/config.QEMUBoard.
func QEMUBoard() Board { return config.QEMUBoard() }

// LRVBoard re-exports internal/config.LRVBoard.
func LRVBoard() Board { return config.LRVBoard() }

// LoadBoard re-exports internal/config.LoadBoard.
func LoadBoard(path, fallback string) (Board, error) { return config.LoadBoard(path, fallback) }
