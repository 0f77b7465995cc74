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

// Opcodes (bits 6:0). Grounded on emul/execute.go's per-opcode-group
// dispatch shape, re-keyed from WUT-4's opcode field to RISC-V's.
const (
	opLUI     = 0x37
	opAUIPC   = 0x17
	opJAL     = 0x6f
	opJALR    = 0x67
	opBranch  = 0x63
	opLoad    = 0x03
	opStore   = 0x23
	opImm     = 0x13
	opImm32   = 0x1b
	opOp      = 0x33
	opOp32    = 0x3b
	opMiscMem = 0x0f
	opSystem  = 0x73
	opLoadFP  = 0x07
	opStoreFP = 0x27
	opFP      = 0x53
)

// execute decodes raw and dispatches it to the instruction-class handler for
// its opcode, advancing PC by 4 unless the handler itself branched or
// jumped. Returns a non-nil execErr for any synchronous exception.
func (h *Hart) execute(raw uint32) *execErr {
	op := opcode(raw)
	nextPC := h.PC + 4

	var err *execErr
	switch op {
	case opLUI:
		h.SetX(rd(raw), uint64(immU(raw)))
	case opAUIPC:
		h.SetX(rd(raw), h.PC+uint64(immU(raw)))
	case opJAL:
		h.SetX(rd(raw), nextPC)
		nextPC = h.PC + uint64(immJ(raw))
	case opJALR:
		target := (h.GetX(rs1(raw)) + uint64(immI(raw))) &^ 1
		h.SetX(rd(raw), nextPC)
		nextPC = target
	case opBranch:
		taken, target, berr := h.execBranch(raw)
		if berr != nil {
			return berr
		}
		if taken {
			nextPC = target
		}
	case opLoad:
		err = h.execLoad(raw)
	case opStore:
		err = h.execStore(raw)
	case opImm:
		h.execOpImm(raw)
	case opImm32:
		err = h.execOpImm32(raw)
	case opOp:
		if funct7(raw) == 0x01 {
			h.execMulDiv(raw)
		} else {
			err = h.execOp(raw)
		}
	case opOp32:
		if funct7(raw) == 0x01 {
			h.execMulDivW(raw)
		} else {
			err = h.execOp32(raw)
		}
	case opMiscMem:
		// FENCE, FENCE.I: no-op (spec.md §4.9) — single hart, no caches to flush.
	case opSystem:
		err = h.execSystem(raw, &nextPC)
	case opLoadFP:
		err = h.execLoadFP(raw)
	case opStoreFP:
		err = h.execStoreFP(raw)
	case opFP:
		err = h.execOpFP(raw)
	default:
		err = illegalInstruction(raw)
	}

	if err != nil {
		return err
	}
	if nextPC&0x3 != 0 {
		// A misaligned jump/branch target faults on the *next* fetch in real
		// hardware; raising it here against the about-to-retire instruction's
		// PC keeps mepc/mtval pointed at the instruction that computed it.
		return &execErr{cause: CauseInstrAddrMisaligned, tval: nextPC}
	}
	h.PC = nextPC
	return nil
}

func (h *Hart) execBranch(raw uint32) (bool, uint64, *execErr) {
	a, b := h.GetX(rs1(raw)), h.GetX(rs2(raw))
	var taken bool
	switch funct3(raw) {
	case 0x0: // BEQ
		taken = a == b
	case 0x1: // BNE
		taken = a != b
	case 0x4: // BLT
		taken = int64(a) < int64(b)
	case 0x5: // BGE
		taken = int64(a) >= int64(b)
	case 0x6: // BLTU
		taken = a < b
	case 0x7: // BGEU
		taken = a >= b
	default: // 0x2, 0x3 are reserved
		return false, 0, illegalInstruction(raw)
	}
	return taken, h.PC + uint64(immB(raw)), nil
}
