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

// Package power implements the single write-triggered termination sentinel
// at guest-physical offset 0 (spec.md §4.3).
//
// Grounded on emul/execute.go's HLT opcode (VOP case 4): the same
// "privileged write flips a run/halt flag" shape, moved from an instruction
// into an MMIO device per the virt board's design.
package power

import "github.com/WanDejun/riscv-emulator/internal/device"

// ShutdownMagic is the only word value that terminates the run.
const ShutdownMagic = 0x5555

// Power is a one-register device: writing ShutdownMagic sets Halted.
type Power struct {
	Halted bool
}

func New() *Power { return &Power{} }

func (p *Power) Read(offset uint64, width device.Width) (uint64, *device.Fault) {
	return 0, nil
}

func (p *Power) Write(offset uint64, width device.Width, value uint64) *device.Fault {
	if offset == 0 && value == ShutdownMagic {
		p.Halted = true
	}
	return nil
}

func (p *Power) Tick() {}

func (p *Power) IRQ() bool { return false }
