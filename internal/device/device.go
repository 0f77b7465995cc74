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

// Package device defines the narrow interfaces that let the bus and the
// memory-mapped devices cooperate without back-pointers: the bus owns the
// devices and dispatches loads/stores to them, while a device that needs to
// touch guest memory or raise an interrupt is handed a Host instead of a
// pointer to the bus itself. See spec.md §9 ("Cyclic device↔bus references").
package device

// Width is an access width in bytes: 1, 2, 4, or 8.
type Width uint8

const (
	Byte     Width = 1
	Halfword Width = 2
	Word     Width = 4
	Doubleword Width = 8
)

// Fault is a guest-visible synchronous exception raised by a device or the
// bus itself (e.g. misaligned MMIO access, access to an unmapped range).
type Fault struct {
	Cause uint64 // exception code, e.g. load-access-fault (5)
	Tval  uint64 // mtval value: the faulting guest-physical address
}

func (f *Fault) Error() string {
	return "bus fault"
}

// Device is the capability set every memory-mapped peripheral presents to
// the bus: read and write a register at a device-local offset, advance one
// tick of device-internal state, and report whether its interrupt line is
// currently asserted. Devices that have no internal clock (Power, and VirtIO
// outside of a notify) implement Tick as a no-op.
type Device interface {
	Read(offset uint64, width Width) (uint64, *Fault)
	Write(offset uint64, width Width, value uint64) *Fault
	Tick()
	IRQ() bool
}

// Host is the mediator a device receives at construction time: the narrow
// slice of bus capability it is allowed (guest memory access plus the
// ability to tell an interrupt controller that one of its lines changed).
// Devices never hold a reference to the bus or to each other.
type Host interface {
	ReadPhys(gpa uint64, width Width) (uint64, *Fault)
	WritePhys(gpa uint64, width Width, value uint64) *Fault
	// RaiseIRQ and ClearIRQ notify the platform interrupt controller (PLIC)
	// that the source identified by irqID has asserted or deasserted.
	RaiseIRQ(irqID int)
	ClearIRQ(irqID int)
}
