// Package config holds board/platform constants for the kernel core:
// page sizing, stack sizes, clock frequency, and the fixed virtual memory
// layout of the trampoline/trap-context/user-trap-buffer pages.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixed layout constants, independent of board. Matches the rCore-N
// memory map: trampoline is the top page of the address space, with
// trap context and the user-trap buffer immediately below it.
const (
	PageSize     = 0x1000
	PageSizeBits = 12

	KernelStackSize = 16 * 1024
	UserStackSize   = 16 * 1024
	KernelHeapSize  = 2 * 1024 * 1024

	// Trampoline sits at the top of the (simulated) virtual address space.
	Trampoline = ^uint64(0) - PageSize + 1
	// TrapContext is the page immediately below the trampoline.
	TrapContext = Trampoline - PageSize
	// UserTrapBuffer is the page immediately below the trap context page.
	UserTrapBuffer = TrapContext - PageSize

	// UserTrapQueueCapacity is N in spec §3: the bounded SPSC queue depth
	// backing each task's user-trap buffer.
	UserTrapQueueCapacity = 64

	// DefaultPriority is the priority assigned to a freshly created task.
	// The scheduler does not consult it (see DESIGN.md open-question log).
	DefaultPriority = 16
	MinPriority     = 2
)

// Board describes the per-board constants that do vary (clock rate, memory
// size, hart count), loaded from a YAML profile the way a deployment would
// select "qemu" vs "lrv" at boot. Grounded on rCore-N's board feature-gated
// config.rs constants, generalized into data instead of build tags.
type Board struct {
	Name       string `yaml:"name"`
	ClockFreq  uint64 `yaml:"clock_freq"`
	MemoryEnd  uint64 `yaml:"memory_end"`
	HartCount  int    `yaml:"hart_count"`
	PLICBase   uint64 `yaml:"plic_base"`
	PLICPriBit int    `yaml:"plic_priority_bits"`
}

// QEMUBoard is the default profile, mirroring rCore-N's board_qemu feature.
func QEMUBoard() Board {
	return Board{
		Name:       "qemu",
		ClockFreq:  12_500_000,
		MemoryEnd:  0x80800000,
		HartCount:  4,
		PLICBase:   0xc00_0000,
		PLICPriBit: 3,
	}
}

// LRVBoard mirrors rCore-N's board_lrv feature (the "Labeled RISC-V" board).
func LRVBoard() Board {
	return Board{
		Name:       "lrv",
		ClockFreq:  10_000_000,
		MemoryEnd:  0x100800000,
		HartCount:  2,
		PLICBase:   0xc00_0000,
		PLICPriBit: 3,
	}
}

// LoadBoard reads a board profile from a YAML file, falling back to the
// named built-in profile ("qemu" or "lrv") when path is empty.
func LoadBoard(path string, fallback string) (Board, error) {
	if path == "" {
		return builtinBoard(fallback), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Board{}, fmt.Errorf("config: read board profile: %w", err)
	}
	var b Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Board{}, fmt.Errorf("config: parse board profile: %w", err)
	}
	if b.HartCount <= 0 {
		b.HartCount = 1
	}
	return b, nil
}

func builtinBoard(name string) Board {
	switch name {
	case "lrv":
		return LRVBoard()
	default:
		return QEMUBoard()
	}
}
