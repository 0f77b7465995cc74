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

// Package bus implements the guest-physical address space: a sorted set of
// disjoint half-open ranges (spec.md §3), each backed by RAM or a
// memory-mapped device, plus fetch/load/store dispatch and fault reporting.
//
// Grounded on the teacher's emul/memory.go (translate-then-dispatch shape),
// generalized from MMU page translation — not needed here, spec.md has no
// supervisor paging — to range-table dispatch over independent device.Device
// implementations.
package bus

import (
	"fmt"
	"sort"

	"github.com/WanDejun/riscv-emulator/internal/device"
)

// Synchronous exception causes the bus itself can raise (spec.md §4.8).
const (
	CauseInstrAddrMisaligned = 0
	CauseInstrAccessFault    = 1
	CauseLoadAddrMisaligned  = 4
	CauseLoadAccessFault     = 5
	CauseStoreAddrMisaligned = 6
	CauseStoreAccessFault    = 7
)

type mapping struct {
	base uint64
	size uint64
	name string
	dev  device.Device
}

// IRQController is the subset of the PLIC a device's interrupt line reaches
// through the bus's Host implementation.
type IRQController interface {
	SetPending(irqID int)
	ClearPending(irqID int)
}

// Bus owns every mapped device and the RAM, and is the only thing devices
// reach guest memory or the interrupt controller through (spec.md §9).
type Bus struct {
	maps []mapping
	plic IRQController
}

// New returns an empty bus. Call Map for RAM and each device, then
// SetIRQController once the PLIC exists, before running any hart.
func New() *Bus {
	return &Bus{}
}

// SetIRQController wires the PLIC that RaiseIRQ/ClearIRQ forward to.
func (b *Bus) SetIRQController(plic IRQController) {
	b.plic = plic
}

// Map registers dev as the handler for [base, base+size). Panics on overlap
// with an existing mapping — an emulator-invariant violation per spec.md §7,
// not a guest-visible fault, so it is not returned as an error.
func (b *Bus) Map(name string, base, size uint64, dev device.Device) {
	for _, m := range b.maps {
		if base < m.base+m.size && m.base < base+size {
			panic(fmt.Sprintf("bus: range %s [%#x,%#x) overlaps existing mapping %s [%#x,%#x)",
				name, base, base+size, m.name, m.base, m.base+m.size))
		}
	}
	b.maps = append(b.maps, mapping{base: base, size: size, name: name, dev: dev})
	sort.Slice(b.maps, func(i, j int) bool { return b.maps[i].base < b.maps[j].base })
}

func (b *Bus) find(gpa uint64) *mapping {
	// Linear scan is fine: the address map has a handful of entries (spec.md §3).
	for i := range b.maps {
		m := &b.maps[i]
		if gpa >= m.base && gpa < m.base+m.size {
			return m
		}
	}
	return nil
}

func fault(cause, tval uint64) *device.Fault {
	return &device.Fault{Cause: cause, Tval: tval}
}

// naturallyAligned reports whether gpa is aligned to width. Both RAM and
// MMIO devices require natural alignment: this core has no misaligned-access
// extension, and the guest trap-handling tests deliberately trigger
// load/store-misaligned faults on ordinary RAM addresses (spec.md §9).
func naturallyAligned(gpa uint64, width device.Width) bool {
	return gpa&uint64(width-1) == 0
}

// Read performs a load of width bytes at gpa, returning a load fault
// (cause 4 misaligned, 5 access) on failure.
func (b *Bus) Read(gpa uint64, width device.Width) (uint64, *device.Fault) {
	if !naturallyAligned(gpa, width) {
		return 0, fault(CauseLoadAddrMisaligned, gpa)
	}
	m := b.find(gpa)
	if m == nil {
		return 0, fault(CauseLoadAccessFault, gpa)
	}
	v, f := m.dev.Read(gpa-m.base, width)
	if f != nil {
		f.Cause = CauseLoadAccessFault
		f.Tval = gpa
		return 0, f
	}
	return v, nil
}

// Write performs a store of width bytes at gpa, returning a store fault
// (cause 6 misaligned, 7 access) on failure.
func (b *Bus) Write(gpa uint64, width device.Width, value uint64) *device.Fault {
	if !naturallyAligned(gpa, width) {
		return fault(CauseStoreAddrMisaligned, gpa)
	}
	m := b.find(gpa)
	if m == nil {
		return fault(CauseStoreAccessFault, gpa)
	}
	if f := m.dev.Write(gpa-m.base, width, value); f != nil {
		f.Cause = CauseStoreAccessFault
		f.Tval = gpa
		return f
	}
	return nil
}

// Fetch performs an instruction fetch of 4 bytes at gpa, returning
// instruction-address-misaligned (0) or instruction-access-fault (1).
func (b *Bus) Fetch(gpa uint64) (uint32, *device.Fault) {
	if gpa&0x3 != 0 {
		return 0, fault(CauseInstrAddrMisaligned, gpa)
	}
	m := b.find(gpa)
	if m == nil {
		return 0, fault(CauseInstrAccessFault, gpa)
	}
	lo, f := m.dev.Read(gpa-m.base, device.Halfword)
	if f != nil {
		return 0, fault(CauseInstrAccessFault, gpa)
	}
	hi, f := m.dev.Read(gpa-m.base+2, device.Halfword)
	if f != nil {
		return 0, fault(CauseInstrAccessFault, gpa)
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

// Tick advances every mapped device's internal clock by one step. The core
// loop (machine.Step) calls it once per iteration, before the hart steps.
func (b *Bus) Tick() {
	for _, m := range b.maps {
		m.dev.Tick()
	}
}

// host is the device.Host implementation backed by a Bus, handed to devices
// at construction time.
type host struct {
	b *Bus
}

// Host returns the mediator devices use for memory access and interrupt
// raising. Calling this does not grant a back-pointer into Bus internals —
// only the ReadPhys/WritePhys/RaiseIRQ/ClearIRQ surface.
func (b *Bus) Host() device.Host {
	return &host{b: b}
}

func (h *host) ReadPhys(gpa uint64, width device.Width) (uint64, *device.Fault) {
	return h.b.Read(gpa, width)
}

func (h *host) WritePhys(gpa uint64, width device.Width, value uint64) *device.Fault {
	return h.b.Write(gpa, width, value)
}

func (h *host) RaiseIRQ(irqID int) {
	if h.b.plic != nil {
		h.b.plic.SetPending(irqID)
	}
}

func (h *host) ClearIRQ(irqID int) {
	if h.b.plic != nil {
		h.b.plic.ClearPending(irqID)
	}
}
