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

// Package clint implements the core-local interruptor: a per-hart msip
// register, a per-hart mtimecmp, and the single global mtime counter
// (spec.md §4.4). This core supports one hart, so there is exactly one of
// each.
//
// Grounded on emul/cpu.go's `cycles` field (a monotonic counter advanced
// once per retired instruction), generalized into mtime; the MMIO register
// layout itself has no teacher analogue (WUT-4 has no timer device) and is
// taken directly from spec.md §4.4.
package clint

import "github.com/WanDejun/riscv-emulator/internal/device"

const (
	offMSIP     = 0x0
	offMTimecmp = 0x4000
	offMTime    = 0xBFF8
)

// MIPWriter is the narrow interface into the hart's CSR file CLINT needs:
// asserting/deasserting MTI and MSI (spec.md §9 — "devices mutate mip
// through a narrow... interface rather than direct CSR writes").
type MIPWriter interface {
	SetMTIPending(pending bool)
	SetMSIPending(pending bool)
}

// CLINT is the timer/software-interrupt controller for one hart.
type CLINT struct {
	mtime    uint64
	mtimecmp uint64
	msip     bool

	hart MIPWriter
}

// New returns a CLINT driving the MTI/MSI lines of hart.
func New(hart MIPWriter) *CLINT {
	return &CLINT{hart: hart}
}

func (c *CLINT) Read(offset uint64, width device.Width) (uint64, *device.Fault) {
	switch offset {
	case offMSIP:
		return boolU64(c.msip), nil
	case offMTimecmp:
		return c.mtimecmp, nil
	case offMTime:
		return c.mtime, nil
	}
	return 0, nil
}

func (c *CLINT) Write(offset uint64, width device.Width, value uint64) *device.Fault {
	switch offset {
	case offMSIP:
		c.msip = value&1 != 0
		c.hart.SetMSIPending(c.msip)
	case offMTimecmp:
		c.mtimecmp = value
		c.updateMTI()
	case offMTime:
		c.mtime = value
		c.updateMTI()
	}
	return nil
}

// Tick advances mtime by one, matching the core loop's one-tick-per-
// instruction ratio (DESIGN.md's resolution of spec.md §4.4's "Δ matches
// instruction retirement count scaled by a fixed ratio").
func (c *CLINT) Tick() {
	c.mtime++
	c.updateMTI()
}

func (c *CLINT) updateMTI() {
	c.hart.SetMTIPending(c.mtime >= c.mtimecmp)
}

func (c *CLINT) IRQ() bool { return false } // MTI/MSI reach the hart directly, not via PLIC.

// MTime returns the current counter value, for statistics and tests.
func (c *CLINT) MTime() uint64 { return c.mtime }

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
