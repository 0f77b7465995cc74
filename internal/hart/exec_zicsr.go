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

// execSystem implements ECALL, EBREAK, and the six Zicsr instructions.
// nextPC is mutated only by MRET/SRET, which jump to the restored PC;
// ECALL/EBREAK return an execErr for trap entry, and CSR instructions always
// fall through to PC+4.
func (h *Hart) execSystem(raw uint32, nextPC *uint64) *execErr {
	f3 := funct3(raw)
	if f3 == 0 {
		switch raw >> 20 {
		case 0x0: // ECALL
			return &execErr{cause: ecallCause(h.Priv)}
		case 0x1: // EBREAK
			return &execErr{cause: CauseBreakpoint, tval: h.PC}
		case 0x302: // MRET
			h.execMret()
			*nextPC = h.PC
			return nil
		case 0x102: // SRET
			h.execSret()
			*nextPC = h.PC
			return nil
		case 0x105: // WFI: treated as a no-op that simply continues (spec.md
			// has no idle/power-saving state to model).
			return nil
		default:
			return illegalInstruction(raw)
		}
	}
	return h.execCSR(raw, f3)
}

func ecallCause(priv csr.Privilege) uint64 {
	switch priv {
	case csr.Machine:
		return CauseEcallFromM
	case csr.Supervisor:
		return CauseEcallFromS
	default:
		return CauseEcallFromU
	}
}

// execCSR implements CSRRW/S/C and their immediate forms with the
// read-before-write semantics of spec.md §4.9: the read is skipped when
// rd==x0 for the non-immediate forms is irrelevant to side effects (writes
// to x0 are simply discarded), but the *write* is skipped when it would be a
// no-op — rs1==x0 for S/C forms, uimm==0 for the immediate S/C forms — so
// that CSRRS/CSRRC x0 reads never do work a plain read shouldn't.
func (h *Hart) execCSR(raw uint32, f3 uint32) *execErr {
	addr := csrAddr(raw)
	destReg := rd(raw)

	var srcVal uint64
	var writes bool
	switch f3 {
	case 0x1, 0x2, 0x3: // CSRRW, CSRRS, CSRRC
		srcVal = h.GetX(rs1(raw))
		writes = f3 == 0x1 || rs1(raw) != 0
	case 0x5, 0x6, 0x7: // CSRRWI, CSRRSI, CSRRCI
		srcVal = uimm(raw)
		writes = f3 == 0x5 || srcVal != 0
	default:
		return illegalInstruction(raw)
	}

	// The permission check follows spec.md §4.9's simplified rule literally:
	// an IllegalRead is only possible when the result is actually reported
	// (rd != x0). But CSRRS/CSRRC's set/clear computation needs the current
	// value regardless of rd, so the register is still fetched whenever a
	// write that depends on it is about to happen.
	isSetOrClear := f3 == 0x2 || f3 == 0x3 || f3 == 0x6 || f3 == 0x7
	needsRead := destReg != 0
	if needsRead && csr.IllegalRead(addr, h.Priv) {
		return illegalInstruction(raw)
	}
	if writes && csr.IllegalWrite(addr, h.Priv) {
		return illegalInstruction(raw)
	}

	old := uint64(0)
	if needsRead || (writes && isSetOrClear) {
		old = h.CSR.Read(addr)
	}

	if writes {
		var newVal uint64
		switch f3 {
		case 0x1, 0x5: // write
			newVal = srcVal
		case 0x2, 0x6: // set
			newVal = old | srcVal
		case 0x3, 0x7: // clear
			newVal = old &^ srcVal
		}
		h.CSR.Write(addr, newVal)
	}

	h.SetX(destReg, old)
	return nil
}
