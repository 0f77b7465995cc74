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

// Package disasm produces a best-effort mnemonic rendering of one raw
// instruction word, for the debugger's disassembly view (spec.md §4.11).
//
// Grounded on emul/disasm.go's shape: dispatch on the opcode-equivalent
// field to a per-group disassembleXxx function, each indexing a small name
// table by the decoded sub-opcode field. Re-keyed from WUT-4's
// opcode/xop/yop/zop/vop fields to RISC-V's opcode/funct3/funct7.
package disasm

import "fmt"

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

var branchNames = map[uint32]string{
	0x0: "beq", 0x1: "bne", 0x4: "blt", 0x5: "bge", 0x6: "bltu", 0x7: "bgeu",
}

var loadNames = map[uint32]string{
	0x0: "lb", 0x1: "lh", 0x2: "lw", 0x3: "ld", 0x4: "lbu", 0x5: "lhu", 0x6: "lwu",
}

var storeNames = map[uint32]string{
	0x0: "sb", 0x1: "sh", 0x2: "sw", 0x3: "sd",
}

var opImmNames = map[uint32]string{
	0x0: "addi", 0x1: "slli", 0x2: "slti", 0x3: "sltiu",
	0x4: "xori", 0x5: "srli/srai", 0x6: "ori", 0x7: "andi",
}

var opImm32Names = map[uint32]string{
	0x0: "addiw", 0x1: "slliw", 0x5: "srliw/sraiw",
}

// opNames maps (funct7, funct3) to mnemonic for OP/OP-32, covering base I,
// and (funct7==0x01) the M-extension MUL/DIV/REM family.
var opNames = map[[2]uint32]string{
	{0x00, 0x0}: "add", {0x20, 0x0}: "sub", {0x00, 0x1}: "sll", {0x00, 0x2}: "slt",
	{0x00, 0x3}: "sltu", {0x00, 0x4}: "xor", {0x00, 0x5}: "srl", {0x20, 0x5}: "sra",
	{0x00, 0x6}: "or", {0x00, 0x7}: "and",
	{0x01, 0x0}: "mul", {0x01, 0x1}: "mulh", {0x01, 0x2}: "mulhsu", {0x01, 0x3}: "mulhu",
	{0x01, 0x4}: "div", {0x01, 0x5}: "divu", {0x01, 0x6}: "rem", {0x01, 0x7}: "remu",
}

var op32Names = map[[2]uint32]string{
	{0x00, 0x0}: "addw", {0x20, 0x0}: "subw", {0x00, 0x1}: "sllw",
	{0x00, 0x5}: "srlw", {0x20, 0x5}: "sraw",
	{0x01, 0x0}: "mulw", {0x01, 0x4}: "divw", {0x01, 0x5}: "divuw",
	{0x01, 0x6}: "remw", {0x01, 0x7}: "remuw",
}

var systemNames = map[uint32]string{
	0x1: "csrrw", 0x2: "csrrs", 0x3: "csrrc", 0x5: "csrrwi", 0x6: "csrrsi", 0x7: "csrrci",
}

// fpOpNames maps funct7 to mnemonic for the OP-FP opcode's register-register
// operations (spec.md §4.1's F subset).
var fpOpNames = map[uint32]string{
	0x00: "fadd.s", 0x04: "fsub.s", 0x08: "fmul.s", 0x0c: "fdiv.s", 0x2c: "fsqrt.s",
	0x60: "fcvt.w.s", 0x68: "fcvt.s.w", 0x70: "fmv.x.w/fclass.s", 0x78: "fmv.w.x",
}

func opcode(raw uint32) uint32 { return raw & 0x7f }
func rd(raw uint32) uint32     { return (raw >> 7) & 0x1f }
func funct3(raw uint32) uint32 { return (raw >> 12) & 0x7 }
func rs1(raw uint32) uint32    { return (raw >> 15) & 0x1f }
func rs2(raw uint32) uint32    { return (raw >> 20) & 0x1f }
func funct7(raw uint32) uint32 { return (raw >> 25) & 0x7f }

func immI(raw uint32) int32 { return int32(raw) >> 20 }

// Disassemble renders raw as a best-effort mnemonic string. Instructions it
// doesn't recognize render as a hex placeholder rather than panicking — the
// debugger must stay usable even over a corrupt or not-yet-implemented
// instruction stream.
func Disassemble(raw uint32) string {
	if raw == 0 {
		return "unimp (0x00000000)"
	}
	switch opcode(raw) {
	case opLUI:
		return fmt.Sprintf("lui x%d, 0x%x", rd(raw), uint32(raw)>>12)
	case opAUIPC:
		return fmt.Sprintf("auipc x%d, 0x%x", rd(raw), uint32(raw)>>12)
	case opJAL:
		return fmt.Sprintf("jal x%d", rd(raw))
	case opJALR:
		return fmt.Sprintf("jalr x%d, %d(x%d)", rd(raw), immI(raw), rs1(raw))
	case opBranch:
		name, ok := branchNames[funct3(raw)]
		if !ok {
			return unknown(raw)
		}
		return fmt.Sprintf("%s x%d, x%d", name, rs1(raw), rs2(raw))
	case opLoad:
		name, ok := loadNames[funct3(raw)]
		if !ok {
			return unknown(raw)
		}
		return fmt.Sprintf("%s x%d, %d(x%d)", name, rd(raw), immI(raw), rs1(raw))
	case opStore:
		name, ok := storeNames[funct3(raw)]
		if !ok {
			return unknown(raw)
		}
		return fmt.Sprintf("%s x%d, x%d", name, rs1(raw), rs2(raw))
	case opImm:
		name, ok := opImmNames[funct3(raw)]
		if !ok {
			return unknown(raw)
		}
		return fmt.Sprintf("%s x%d, x%d, %d", name, rd(raw), rs1(raw), immI(raw))
	case opImm32:
		name, ok := opImm32Names[funct3(raw)]
		if !ok {
			return unknown(raw)
		}
		return fmt.Sprintf("%s x%d, x%d, %d", name, rd(raw), rs1(raw), immI(raw))
	case opOp:
		name, ok := opNames[[2]uint32{funct7(raw), funct3(raw)}]
		if !ok {
			return unknown(raw)
		}
		return fmt.Sprintf("%s x%d, x%d, x%d", name, rd(raw), rs1(raw), rs2(raw))
	case opOp32:
		name, ok := op32Names[[2]uint32{funct7(raw), funct3(raw)}]
		if !ok {
			return unknown(raw)
		}
		return fmt.Sprintf("%s x%d, x%d, x%d", name, rd(raw), rs1(raw), rs2(raw))
	case opMiscMem:
		return "fence"
	case opSystem:
		switch {
		case raw == 0x00000073:
			return "ecall"
		case raw == 0x00100073:
			return "ebreak"
		case raw == 0x30200073:
			return "mret"
		case raw == 0x10200073:
			return "sret"
		case raw == 0x10500073:
			return "wfi"
		}
		if name, ok := systemNames[funct3(raw)]; ok {
			return fmt.Sprintf("%s x%d, 0x%x, x%d", name, rd(raw), (raw>>20)&0xfff, rs1(raw))
		}
		return unknown(raw)
	case opLoadFP:
		return fmt.Sprintf("flw f%d, %d(x%d)", rd(raw), immI(raw), rs1(raw))
	case opStoreFP:
		return fmt.Sprintf("fsw f%d, x%d", rs1(raw), rs2(raw))
	case opFP:
		if name, ok := fpOpNames[funct7(raw)]; ok {
			return fmt.Sprintf("%s f%d, f%d, f%d", name, rd(raw), rs1(raw), rs2(raw))
		}
		return unknown(raw)
	default:
		return unknown(raw)
	}
}

func unknown(raw uint32) string {
	return fmt.Sprintf("??? (0x%08x)", raw)
}
