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

// Package hart implements the architectural state and fetch-decode-execute
// loop for one RV64IMF+Zicsr hart: general and floating registers, the CSR
// file, and the trap engine that stacks privilege around it.
//
// Struct shape and the Run/fetch/cycle-count loop are grounded on the
// teacher's emul/cpu.go (`gen`/`spr`/`pc`/`mode` become X/F/PC/Priv here);
// the per-instruction-class dispatch style mirrors emul/execute.go and
// emul/decode.go's one-method-per-opcode-group structure, generalized from
// WUT-4's 16-bit fixed-width encoding to RV64's variable-field R/I/S/B/U/J
// formats.
package hart

import (
	"fmt"
	"math"

	"github.com/WanDejun/riscv-emulator/internal/csr"
	"github.com/WanDejun/riscv-emulator/internal/device"
)

// Bus is the narrow memory/fetch surface the hart needs; internal/bus.Bus
// satisfies it.
type Bus interface {
	Read(gpa uint64, width device.Width) (uint64, *device.Fault)
	Write(gpa uint64, width device.Width, value uint64) *device.Fault
	Fetch(gpa uint64) (uint32, *device.Fault)
}

// TrapEvent is reported to an observer (debugger, tracer) whenever the hart
// enters a trap. Leaving a trap (MRET/SRET) is not reported.
type TrapEvent struct {
	Cause       uint64
	Interrupt   bool
	PC          uint64
	Tval        uint64
}

// Hart is one RV64IMF+Zicsr hardware thread's architectural state.
type Hart struct {
	X [32]uint64 // x0 is hardwired to zero; enforced in SetX.
	F [32]uint64 // single-precision values NaN-boxed into the low 32 bits.
	PC uint64
	Priv csr.Privilege
	CSR  *csr.File

	Bus Bus

	// Halted, when set, makes Step a no-op; Reset clears it. The hart never
	// sets it itself (EBREAK traps like any other exception); the core loop
	// halts independently on the Power sentinel.
	Halted bool

	// Retired counts instructions that completed (not traps); the core loop
	// compares it across a Step to tell whether that step trapped.
	Retired uint64

	// OnTrap, if set, is invoked whenever the trap engine delivers an
	// interrupt or exception — used by the debugger and tracer.
	OnTrap func(TrapEvent)
}

// New creates a hart reset to the given entry point, privilege Machine, and
// all CSRs at their post-reset values.
func New(bus Bus, entry uint64) *Hart {
	h := &Hart{
		Bus:  bus,
		CSR:  csr.New(),
		PC:   entry,
		Priv: csr.Machine,
	}
	return h
}

// Reset restores the hart to its post-reset state at the given entry point.
func (h *Hart) Reset(entry uint64) {
	h.X = [32]uint64{}
	h.F = [32]uint64{}
	h.PC = entry
	h.Priv = csr.Machine
	h.CSR.Reset()
	h.Halted = false
	h.Retired = 0
}

// GetX reads general register i; x0 always reads zero.
func (h *Hart) GetX(i uint32) uint64 {
	if i == 0 {
		return 0
	}
	return h.X[i]
}

// SetX writes general register i; writes to x0 are discarded (spec.md §4.9).
func (h *Hart) SetX(i uint32, v uint64) {
	if i == 0 {
		return
	}
	h.X[i] = v
}

// GetF32 reads float register i as a float32 (low 32 bits).
func (h *Hart) GetF32(i uint32) float32 {
	return math.Float32frombits(uint32(h.F[i]))
}

// SetF32 writes float register i, NaN-boxing the upper 32 bits to all-ones
// per the RISC-V F extension's single-precision storage convention.
func (h *Hart) SetF32(i uint32, v float32) {
	h.F[i] = uint64(math.Float32bits(v)) | 0xFFFFFFFF00000000
	h.CSR.SetFS(3) // Dirty
}

// Step samples pending interrupts, then executes exactly one instruction
// (which may itself trap). It is the unit the core loop and the debugger's
// single-step command both drive (spec.md §4.10).
func (h *Hart) Step() {
	if h.Halted {
		return
	}
	if cause, isInterrupt, ok := h.pendingInterrupt(); ok {
		h.enterTrap(cause, isInterrupt, 0)
		return
	}

	pc := h.PC
	raw, f := h.Bus.Fetch(pc)
	if f != nil {
		h.enterTrap(f.Cause, false, f.Tval)
		return
	}

	if err := h.execute(raw); err != nil {
		h.enterTrap(err.cause, false, err.tval)
		return
	}
	h.Retired++
}

// execErr is a synchronous exception raised while decoding or executing one
// instruction.
type execErr struct {
	cause uint64
	tval  uint64
}

func illegalInstruction(raw uint32) *execErr {
	return &execErr{cause: CauseIllegalInstruction, tval: uint64(raw)}
}

func (h *Hart) String() string {
	return fmt.Sprintf("pc=%#016x priv=%d %s", h.PC, h.Priv, h.CSR.String())
}
