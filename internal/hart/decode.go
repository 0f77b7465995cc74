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

// Field extraction for the standard RV64 R/I/S/B/U/J formats, plus the
// CSR-immediate variant. Grounded on emul/decode.go's field-mask-and-shift
// helper style, re-keyed from WUT-4's fixed 5-bit fields to RISC-V's.

func opcode(raw uint32) uint32 { return raw & 0x7f }
func rd(raw uint32) uint32     { return (raw >> 7) & 0x1f }
func funct3(raw uint32) uint32 { return (raw >> 12) & 0x7 }
func rs1(raw uint32) uint32    { return (raw >> 15) & 0x1f }
func rs2(raw uint32) uint32    { return (raw >> 20) & 0x1f }
func funct7(raw uint32) uint32 { return (raw >> 25) & 0x7f }
func rs3(raw uint32) uint32    { return (raw >> 27) & 0x1f }
func funct2(raw uint32) uint32 { return (raw >> 25) & 0x3 }

// csrAddr extracts the 12-bit CSR address from an I-type-shaped Zicsr
// instruction (bits 31:20, same position as imm_i).
func csrAddr(raw uint32) uint16 { return uint16(raw >> 20) }

func signExtend(v uint32, bits uint) int64 {
	shift := 32 - bits
	return int64(int32(v<<shift)) >> shift
}

func immI(raw uint32) int64 {
	return signExtend(raw>>20, 12)
}

func immS(raw uint32) int64 {
	v := ((raw >> 25) << 5) | ((raw >> 7) & 0x1f)
	return signExtend(v, 12)
}

func immB(raw uint32) int64 {
	v := (((raw >> 31) & 0x1) << 12) |
		(((raw >> 7) & 0x1) << 11) |
		(((raw >> 25) & 0x3f) << 5) |
		(((raw >> 8) & 0xf) << 1)
	return signExtend(v, 13)
}

func immU(raw uint32) int64 {
	return int64(int32(raw & 0xFFFFF000))
}

func immJ(raw uint32) int64 {
	v := (((raw >> 31) & 0x1) << 20) |
		(((raw >> 12) & 0xff) << 12) |
		(((raw >> 20) & 0x1) << 11) |
		(((raw >> 21) & 0x3ff) << 1)
	return signExtend(v, 21)
}

// shamt6 is the RV64 6-bit shift amount carried in bits 25:20 (SLLI/SRLI/SRAI).
func shamt6(raw uint32) uint32 { return (raw >> 20) & 0x3f }

// shamt5 is the RV64 5-bit shift amount for the *W word-sized shifts.
func shamt5(raw uint32) uint32 { return (raw >> 20) & 0x1f }

// uimm is the 5-bit zero-extended immediate Zicsr's *I forms read out of rs1's field.
func uimm(raw uint32) uint64 { return uint64(rs1(raw)) }
