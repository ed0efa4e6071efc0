package uapi

// Scause values, matching RISC-V supervisor cause encoding used by
// original_source/os/src/trap/mod.rs's cause table. The high bit marks an
// interrupt rather than an exception; these constants already fold that
// in so the dispatcher can switch on a single value.
const (
	ScauseUserEnvCall        uint64 = 8
	ScauseStoreFault         uint64 = 7
	ScauseStorePageFault     uint64 = 15
	ScauseLoadFault          uint64 = 5
	ScauseLoadPageFault      uint64 = 13
	ScauseInstructionFault   uint64 = 1
	ScauseInstructionPageFault uint64 = 12
	ScauseIllegalInstruction uint64 = 2

	interruptBit = uint64(1) << 63

	ScauseSupervisorTimer    uint64 = interruptBit | 5
	ScauseSupervisorExternal uint64 = interruptBit | 9
	ScauseSupervisorSoft     uint64 = interruptBit | 1
)

// Exit codes a task terminates with when a trap is fatal to it.
const (
	ExitOK             int32 = 0
	ExitPageFault      int32 = -2
	ExitIllegalInstruction int32 = -3
)

// Hart execution mode, used to encode a PLIC context id as hart*3+mode.
const (
	ModeMachine    = 0
	ModeSupervisor = 1
	ModeUser       = 2
)
