// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

package bus

import (
	"encoding/binary"

	"github.com/WanDejun/riscv-emulator/internal/device"
)

// RAM is a flat byte-addressable backing store. Alignment is enforced by
// the bus before a request ever reaches RAM (see bus.go's naturallyAligned
// check and DESIGN.md's resolution of the §4.1/§9 alignment contradiction).
// Grounded on emul/memory.go's flat-array word store, generalized to
// byte/half/word/double access widths.
type RAM struct {
	bytes []byte
}

// NewRAM allocates size bytes of zeroed guest memory.
func NewRAM(size uint64) *RAM {
	return &RAM{bytes: make([]byte, size)}
}

// Load copies data into RAM starting at offset, for ELF segment placement.
func (r *RAM) Load(offset uint64, data []byte) {
	copy(r.bytes[offset:], data)
}

func (r *RAM) Read(offset uint64, width device.Width) (uint64, *device.Fault) {
	end := offset + uint64(width)
	if end > uint64(len(r.bytes)) {
		return 0, &device.Fault{}
	}
	switch width {
	case device.Byte:
		return uint64(r.bytes[offset]), nil
	case device.Halfword:
		return uint64(binary.LittleEndian.Uint16(r.bytes[offset:end])), nil
	case device.Word:
		return uint64(binary.LittleEndian.Uint32(r.bytes[offset:end])), nil
	case device.Doubleword:
		return binary.LittleEndian.Uint64(r.bytes[offset:end]), nil
	default:
		return 0, &device.Fault{}
	}
}

func (r *RAM) Write(offset uint64, width device.Width, value uint64) *device.Fault {
	end := offset + uint64(width)
	if end > uint64(len(r.bytes)) {
		return &device.Fault{}
	}
	switch width {
	case device.Byte:
		r.bytes[offset] = byte(value)
	case device.Halfword:
		binary.LittleEndian.PutUint16(r.bytes[offset:end], uint16(value))
	case device.Word:
		binary.LittleEndian.PutUint32(r.bytes[offset:end], uint32(value))
	case device.Doubleword:
		binary.LittleEndian.PutUint64(r.bytes[offset:end], value)
	default:
		return &device.Fault{}
	}
	return nil
}

func (r *RAM) Tick() {}

func (r *RAM) IRQ() bool { return false }
