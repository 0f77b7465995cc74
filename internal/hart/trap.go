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

package hart

import "github.com/WanDejun/riscv-emulator/internal/csr"

// Grounded on emul/cpu.go's raiseException/handleException (save-state,
// compute vector, jump shape); generalized from WUT-4's single fixed
// exception vector to RISC-V's mcause-coded, mtvec-addressed, privilege-
// stacking trap entry (spec.md §4.8).

// interruptPriority lists the standard mip/mie bits in the priority order
// spec.md §4.8 mandates: MEI > MSI > MTI > SEI > SSI > STI.
var interruptPriority = []struct {
	bit   uint
	cause uint64
}{
	{csr.MEIBit, CauseMEI},
	{csr.MSIBit, CauseMSI},
	{csr.MTIBit, CauseMTI},
	{csr.SEIBit, CauseSEI},
	{csr.SSIBit, CauseSSI},
	{csr.STIBit, CauseSTI},
}

// pendingInterrupt computes pending = mip & mie, gated on whether interrupts
// are globally enabled for the current privilege, and returns the
// highest-priority one if any (spec.md §4.8). This core only ever traps to
// M-mode (medeleg/mideleg are forced to zero), so the enable gate is simply
// mstatus.MIE when running in M-mode, and unconditionally enabled when
// running below M-mode (an interrupt always preempts U/S-mode execution).
func (h *Hart) pendingInterrupt() (cause uint64, isInterrupt bool, ok bool) {
	if h.Priv == csr.Machine && !h.CSR.MIEEnabled() {
		return 0, false, false
	}
	pending := h.CSR.Mip() & h.CSR.Mie()
	if pending == 0 {
		return 0, false, false
	}
	for _, p := range interruptPriority {
		if pending&(1<<p.bit) != 0 {
			return p.cause, true, true
		}
	}
	return 0, false, false
}

// enterTrap stacks privilege/mstatus, records cause/epc/tval, and redirects
// PC to the configured vector (spec.md §4.8 steps 1-6). This core never
// delegates (medeleg/mideleg are hardwired to zero), so every trap lands in
// M-mode regardless of the privilege that took it.
func (h *Hart) enterTrap(cause uint64, isInterrupt bool, tval uint64) {
	epc := h.PC

	mcause := cause
	if isInterrupt {
		mcause |= 1 << 63
	}
	h.CSR.Write(csr.Mcause, mcause)
	h.CSR.Write(csr.Mepc, epc)
	h.CSR.Write(csr.Mtval, tval)

	h.CSR.SetMPIE(h.CSR.MIEEnabled())
	h.CSR.SetMIE(false)
	h.CSR.SetMPP(h.Priv)
	h.Priv = csr.Machine

	h.PC = h.CSR.MtvecTarget(cause, isInterrupt)

	if h.OnTrap != nil {
		h.OnTrap(TrapEvent{Cause: cause, Interrupt: isInterrupt, PC: epc, Tval: tval})
	}
}

// execMret implements MRET (spec.md §4.8): restore PC/privilege/MIE from
// mepc/mstatus.MPP/mstatus.MPIE, and reset MPP to U (the least-privileged
// level, per the architectural "y" reset convention).
func (h *Hart) execMret() {
	h.PC = h.CSR.Read(csr.Mepc)
	h.CSR.SetMIE(h.CSR.MPIEEnabled())
	h.CSR.SetMPIE(true)
	h.Priv = h.CSR.MPP()
	h.CSR.SetMPP(csr.User)
}

// execSret is MRET's S-mode analogue. This core forces medeleg/mideleg to
// zero so no trap is ever delivered to S-mode by enterTrap, but SRET itself
// remains a legal instruction for guests that probe it directly.
func (h *Hart) execSret() {
	h.PC = h.CSR.Read(csr.Sepc)
	h.CSR.SetSIE(h.CSR.SPIEEnabled())
	h.CSR.SetSPIE(true)
	if h.CSR.Read(csr.Sstatus)&(1<<csr.MstatusSPPBit) != 0 {
		h.Priv = csr.Supervisor
	} else {
		h.Priv = csr.User
	}
}
