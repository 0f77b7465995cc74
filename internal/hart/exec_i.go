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

import "github.com/WanDejun/riscv-emulator/internal/device"

// execLoad implements L{B,H,W,D,BU,HU,WU} (spec.md §4.9).
func (h *Hart) execLoad(raw uint32) *execErr {
	addr := h.GetX(rs1(raw)) + uint64(immI(raw))
	var width device.Width
	signed := false
	switch funct3(raw) {
	case 0x0:
		width, signed = device.Byte, true
	case 0x1:
		width, signed = device.Halfword, true
	case 0x2:
		width, signed = device.Word, true
	case 0x3:
		width = device.Doubleword
	case 0x4:
		width = device.Byte
	case 0x5:
		width = device.Halfword
	case 0x6:
		width = device.Word
	default:
		return illegalInstruction(raw)
	}
	v, f := h.Bus.Read(addr, width)
	if f != nil {
		return &execErr{cause: f.Cause, tval: f.Tval}
	}
	if signed {
		v = signExtendWidth(v, width)
	}
	h.SetX(rd(raw), v)
	return nil
}

func signExtendWidth(v uint64, w device.Width) uint64 {
	switch w {
	case device.Byte:
		return uint64(int64(int8(v)))
	case device.Halfword:
		return uint64(int64(int16(v)))
	case device.Word:
		return uint64(int64(int32(v)))
	default:
		return v
	}
}

// execStore implements S{B,H,W,D}.
func (h *Hart) execStore(raw uint32) *execErr {
	addr := h.GetX(rs1(raw)) + uint64(immS(raw))
	val := h.GetX(rs2(raw))
	var width device.Width
	switch funct3(raw) {
	case 0x0:
		width = device.Byte
	case 0x1:
		width = device.Halfword
	case 0x2:
		width = device.Word
	case 0x3:
		width = device.Doubleword
	default:
		return illegalInstruction(raw)
	}
	if f := h.Bus.Write(addr, width, val); f != nil {
		return &execErr{cause: f.Cause, tval: f.Tval}
	}
	return nil
}

// execOpImm implements ADDI/SLTI/SLTIU/XORI/ORI/ANDI/SLLI/SRLI/SRAI.
func (h *Hart) execOpImm(raw uint32) {
	a := h.GetX(rs1(raw))
	imm := immI(raw)
	var r uint64
	switch funct3(raw) {
	case 0x0: // ADDI
		r = a + uint64(imm)
	case 0x2: // SLTI
		r = boolU64(int64(a) < imm)
	case 0x3: // SLTIU
		r = boolU64(a < uint64(imm))
	case 0x4: // XORI
		r = a ^ uint64(imm)
	case 0x6: // ORI
		r = a | uint64(imm)
	case 0x7: // ANDI
		r = a & uint64(imm)
	case 0x1: // SLLI
		r = a << shamt6(raw)
	case 0x5:
		if funct7(raw)>>1 == 0x10 { // SRAI (funct7 bit 5 set, i.e. top 6 bits 010000)
			r = uint64(int64(a) >> shamt6(raw))
		} else { // SRLI
			r = a >> shamt6(raw)
		}
	}
	h.SetX(rd(raw), r)
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// execOp implements ADD/SUB/SLL/SLT/SLTU/XOR/SRL/SRA/OR/AND.
func (h *Hart) execOp(raw uint32) *execErr {
	a, b := h.GetX(rs1(raw)), h.GetX(rs2(raw))
	var r uint64
	switch funct3(raw) {
	case 0x0:
		if funct7(raw) == 0x20 {
			r = a - b // SUB
		} else {
			r = a + b // ADD
		}
	case 0x1:
		r = a << (b & 0x3f) // SLL
	case 0x2:
		r = boolU64(int64(a) < int64(b)) // SLT
	case 0x3:
		r = boolU64(a < b) // SLTU
	case 0x4:
		r = a ^ b // XOR
	case 0x5:
		if funct7(raw) == 0x20 {
			r = uint64(int64(a) >> (b & 0x3f)) // SRA
		} else {
			r = a >> (b & 0x3f) // SRL
		}
	case 0x6:
		r = a | b // OR
	case 0x7:
		r = a & b // AND
	default:
		return illegalInstruction(raw)
	}
	h.SetX(rd(raw), r)
	return nil
}

// execOpImm32 implements ADDIW/SLLIW/SRLIW/SRAIW (32-bit results, sign-extended).
func (h *Hart) execOpImm32(raw uint32) *execErr {
	a := uint32(h.GetX(rs1(raw)))
	imm := int32(immI(raw))
	var r int32
	switch funct3(raw) {
	case 0x0:
		r = a32(a) + imm
	case 0x1:
		r = a32(a << shamt5(raw))
	case 0x5:
		if funct7(raw) == 0x20 {
			r = int32(a) >> shamt5(raw)
		} else {
			r = a32(a >> shamt5(raw))
		}
	default:
		return illegalInstruction(raw)
	}
	h.SetX(rd(raw), uint64(int64(r)))
	return nil
}

func a32(v uint32) int32 { return int32(v) }

// execOp32 implements ADDW/SUBW/SLLW/SRLW/SRAW.
func (h *Hart) execOp32(raw uint32) *execErr {
	a, b := uint32(h.GetX(rs1(raw))), uint32(h.GetX(rs2(raw)))
	var r int32
	switch funct3(raw) {
	case 0x0:
		if funct7(raw) == 0x20 {
			r = int32(a - b)
		} else {
			r = int32(a + b)
		}
	case 0x1:
		r = int32(a << (b & 0x1f))
	case 0x5:
		if funct7(raw) == 0x20 {
			r = int32(a) >> (b & 0x1f)
		} else {
			r = int32(a >> (b & 0x1f))
		}
	default:
		return illegalInstruction(raw)
	}
	h.SetX(rd(raw), uint64(int64(r)))
	return nil
}
