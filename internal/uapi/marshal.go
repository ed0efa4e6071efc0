package uapi

import "encoding/binary"

// Marshal converts a struct to bytes in a fixed, portable layout.
func Marshal(v interface{}) []byte {
	switch val := v.(type) {
	case *TaskContext:
		return marshalTaskContext(val)
	case *TrapContext:
		return marshalTrapContext(val)
	case *TrapRecord:
		return marshalTrapRecord(val)
	default:
		return nil
	}
}

// Unmarshal converts bytes back into a struct.
func Unmarshal(data []byte, v interface{}) error {
	switch val := v.(type) {
	case *TaskContext:
		return unmarshalTaskContext(data, val)
	case *TrapContext:
		return unmarshalTrapContext(data, val)
	case *TrapRecord:
		return unmarshalTrapRecord(data, val)
	default:
		return ErrInvalidType
	}
}

func marshalTaskContext(c *TaskContext) []byte {
	buf := make([]byte, 160)
	binary.LittleEndian.PutUint64(buf[0:8], c.RA)
	binary.LittleEndian.PutUint64(buf[8:16], c.SP)
	off := 16
	for i := 0; i < 12; i++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], c.S[i])
		off += 8
	}
	binary.LittleEndian.PutUint64(buf[off:off+8], c.Uie)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], c.Uip)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], c.Uepc)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], c.Utvec)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], c.Utval)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], c.Ucause)
	return buf
}

func unmarshalTaskContext(data []byte, c *TaskContext) error {
	if len(data) < 160 {
		return ErrInsufficientData
	}
	c.RA = binary.LittleEndian.Uint64(data[0:8])
	c.SP = binary.LittleEndian.Uint64(data[8:16])
	off := 16
	for i := 0; i < 12; i++ {
		c.S[i] = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}
	c.Uie = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	c.Uip = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	c.Uepc = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	c.Utvec = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	c.Utval = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	c.Ucause = binary.LittleEndian.Uint64(data[off : off+8])
	return nil
}

func marshalTrapContext(c *TrapContext) []byte {
	buf := make([]byte, 296)
	off := 0
	for i := 0; i < 32; i++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], c.X[i])
		off += 8
	}
	binary.LittleEndian.PutUint64(buf[off:off+8], c.Sstatus)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], c.Sepc)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], c.KernelSatp)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], c.KernelSP)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], c.TrapHandler)
	return buf
}

func unmarshalTrapContext(data []byte, c *TrapContext) error {
	if len(data) < 296 {
		return ErrInsufficientData
	}
	off := 0
	for i := 0; i < 32; i++ {
		c.X[i] = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}
	c.Sstatus = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	c.Sepc = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	c.KernelSatp = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	c.KernelSP = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	c.TrapHandler = binary.LittleEndian.Uint64(data[off : off+8])
	return nil
}

func marshalTrapRecord(r *TrapRecord) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], r.Cause)
	binary.LittleEndian.PutUint64(buf[8:16], r.Message)
	return buf
}

func unmarshalTrapRecord(data []byte, r *TrapRecord) error {
	if len(data) < 16 {
		return ErrInsufficientData
	}
	r.Cause = binary.LittleEndian.Uint64(data[0:8])
	r.Message = binary.LittleEndian.Uint64(data[8:16])
	return nil
}

// MarshalError is the error type returned by marshal/unmarshal failures.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

const (
	ErrInsufficientData MarshalError = "insufficient data for unmarshaling"
	ErrInvalidType      MarshalError = "invalid type for marshaling"
)
