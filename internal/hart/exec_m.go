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

import "math/bits"

// execMulDiv implements MUL/MULH/MULHSU/MULHU/DIV/DIVU/REM/REMU, the RV64M
// extension over 64-bit operands (spec.md §4.9).
func (h *Hart) execMulDiv(raw uint32) {
	a, b := h.GetX(rs1(raw)), h.GetX(rs2(raw))
	var r uint64
	switch funct3(raw) {
	case 0x0: // MUL
		r = a * b
	case 0x1: // MULH (signed x signed)
		r = mulhSigned(int64(a), int64(b))
	case 0x2: // MULHSU (signed x unsigned)
		r = mulhSignedUnsigned(int64(a), b)
	case 0x3: // MULHU (unsigned x unsigned)
		hi, _ := bits.Mul64(a, b)
		r = hi
	case 0x4: // DIV
		r = divSigned(int64(a), int64(b))
	case 0x5: // DIVU
		r = divUnsigned(a, b)
	case 0x6: // REM
		r = remSigned(int64(a), int64(b))
	case 0x7: // REMU
		r = remUnsigned(a, b)
	}
	h.SetX(rd(raw), r)
}

// execMulDivW implements MULW/DIVW/DIVUW/REMW/REMUW: 32-bit operands,
// sign-extended results.
func (h *Hart) execMulDivW(raw uint32) {
	a, b := int32(h.GetX(rs1(raw))), int32(h.GetX(rs2(raw)))
	var r int32
	switch funct3(raw) {
	case 0x0: // MULW
		r = a * b
	case 0x4: // DIVW
		r = divSigned32(a, b)
	case 0x5: // DIVUW
		r = int32(divUnsigned32(uint32(a), uint32(b)))
	case 0x6: // REMW
		r = remSigned32(a, b)
	case 0x7: // REMUW
		r = int32(remUnsigned32(uint32(a), uint32(b)))
	}
	h.SetX(rd(raw), uint64(int64(r)))
}

// mulhSigned computes the high 64 bits of the signed 128-bit product a*b by
// multiplying magnitudes and negating the 128-bit result if the signs differ.
func mulhSigned(a, b int64) uint64 {
	hi, lo := bits.Mul64(uint64(absI64(a)), uint64(absI64(b)))
	if (a < 0) == (b < 0) {
		return hi
	}
	hiN, _ := negate128(hi, lo)
	return hiN
}

func negate128(hi, lo uint64) (uint64, uint64) {
	lo = ^lo + 1
	carry := uint64(0)
	if lo == 0 {
		carry = 1
	}
	hi = ^hi + carry
	return hi, lo
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func mulhSignedUnsigned(a int64, b uint64) uint64 {
	neg := a < 0
	au := uint64(absI64(a))
	hi, lo := bits.Mul64(au, b)
	if !neg {
		return hi
	}
	hiN, _ := negate128(hi, lo)
	return hiN
}

// divSigned implements DIV's special cases (spec.md §4.9): division by zero
// yields all-ones; signed overflow (MinInt64 / -1) yields the dividend.
func divSigned(a, b int64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	if a == minInt64 && b == -1 {
		return uint64(a)
	}
	return uint64(a / b)
}

func divUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func remSigned(a, b int64) uint64 {
	if b == 0 {
		return uint64(a)
	}
	if a == minInt64 && b == -1 {
		return 0
	}
	return uint64(a % b)
}

func remUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

const minInt64 = -1 << 63
const minInt32 = -1 << 31

func divSigned32(a, b int32) int32 {
	if b == 0 {
		return -1
	}
	if a == minInt32 && b == -1 {
		return minInt32
	}
	return a / b
}

func divUnsigned32(a, b uint32) uint32 {
	if b == 0 {
		return 0xFFFFFFFF
	}
	return a / b
}

func remSigned32(a, b int32) int32 {
	if b == 0 {
		return a
	}
	if a == minInt32 && b == -1 {
		return 0
	}
	return a % b
}

func remUnsigned32(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}
