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

import (
	"math"

	"github.com/WanDejun/riscv-emulator/internal/device"
)

// fsReady reports whether mstatus.FS permits floating-point instructions;
// FS==Off (0) makes every F-extension instruction illegal (spec.md §4.9).
func (h *Hart) fsReady() bool {
	return h.CSR.FS() != 0
}

// execLoadFP implements FLW.
func (h *Hart) execLoadFP(raw uint32) *execErr {
	if !h.fsReady() {
		return illegalInstruction(raw)
	}
	addr := h.GetX(rs1(raw)) + uint64(immI(raw))
	v, f := h.Bus.Read(addr, device.Word)
	if f != nil {
		return &execErr{cause: f.Cause, tval: f.Tval}
	}
	h.SetF32(rd(raw), math.Float32frombits(uint32(v)))
	return nil
}

// execStoreFP implements FSW.
func (h *Hart) execStoreFP(raw uint32) *execErr {
	if !h.fsReady() {
		return illegalInstruction(raw)
	}
	addr := h.GetX(rs1(raw)) + uint64(immS(raw))
	v := math.Float32bits(h.GetF32(rs2(raw)))
	if f := h.Bus.Write(addr, device.Word, uint64(v)); f != nil {
		return &execErr{cause: f.Cause, tval: f.Tval}
	}
	return nil
}

// execOpFP implements single-precision arithmetic, compares, conversions,
// and sign-injection (spec.md §4.9's named F-extension subset).
func (h *Hart) execOpFP(raw uint32) *execErr {
	if !h.fsReady() {
		return illegalInstruction(raw)
	}
	f7 := funct7(raw)
	a := h.GetF32(rs1(raw))
	b := h.GetF32(rs2(raw))

	switch f7 {
	case 0x00: // FADD.S
		h.SetF32(rd(raw), a+b)
	case 0x04: // FSUB.S
		h.SetF32(rd(raw), a-b)
	case 0x08: // FMUL.S
		h.SetF32(rd(raw), a*b)
	case 0x0C: // FDIV.S
		h.SetF32(rd(raw), a/b)
	case 0x2C: // FSQRT.S
		h.SetF32(rd(raw), float32(math.Sqrt(float64(a))))
	case 0x10: // FSGNJ.S / FSGNJN.S / FSGNJX.S
		h.SetF32(rd(raw), fsgnj(a, b, funct3(raw)))
	case 0x14: // FMIN.S / FMAX.S
		if funct3(raw) == 0 {
			h.SetF32(rd(raw), float32(math.Min(float64(a), float64(b))))
		} else {
			h.SetF32(rd(raw), float32(math.Max(float64(a), float64(b))))
		}
	case 0x50: // FEQ.S / FLT.S / FLE.S
		var r bool
		switch funct3(raw) {
		case 0x2:
			r = a == b
		case 0x1:
			r = a < b
		case 0x0:
			r = a <= b
		default:
			return illegalInstruction(raw)
		}
		h.SetX(rd(raw), boolU64(r))
	case 0x60: // FCVT.W.S / FCVT.WU.S
		if rs2(raw) == 0 {
			h.SetX(rd(raw), uint64(int64(int32(a))))
		} else {
			h.SetX(rd(raw), uint64(uint32(a)))
		}
	case 0x68: // FCVT.S.W / FCVT.S.WU
		if rs2(raw) == 0 {
			h.SetF32(rd(raw), float32(int32(h.GetX(rs1(raw)))))
		} else {
			h.SetF32(rd(raw), float32(uint32(h.GetX(rs1(raw)))))
		}
	case 0x70: // FMV.X.W / FCLASS.S
		if funct3(raw) == 0x1 {
			h.SetX(rd(raw), uint64(fclass(a)))
		} else {
			h.SetX(rd(raw), uint64(math.Float32bits(a)))
		}
	case 0x78: // FMV.W.X
		h.SetF32(rd(raw), math.Float32frombits(uint32(h.GetX(rs1(raw)))))
	default:
		return illegalInstruction(raw)
	}
	return nil
}

func fsgnj(a, b float32, funct3 uint32) float32 {
	abits := math.Float32bits(a) &^ 0x80000000
	bbits := math.Float32bits(b)
	switch funct3 {
	case 0x0: // FSGNJ.S
		return math.Float32frombits(abits | (bbits & 0x80000000))
	case 0x1: // FSGNJN.S
		return math.Float32frombits(abits | (^bbits & 0x80000000))
	default: // FSGNJX.S
		return math.Float32frombits(abits ^ (bbits & 0x80000000))
	}
}

// fclass implements FCLASS.S's 10-bit classification mask (the bit
// positions the RISC-V spec defines for negative-infinity through
// quiet-NaN).
func fclass(v float32) uint32 {
	bits := math.Float32bits(v)
	sign := bits>>31 != 0
	exp := (bits >> 23) & 0xFF
	frac := bits & 0x7FFFFF

	switch {
	case exp == 0xFF && frac != 0:
		if bits&0x00400000 != 0 {
			return 1 << 9 // quiet NaN
		}
		return 1 << 8 // signaling NaN
	case exp == 0xFF:
		if sign {
			return 1 << 0 // -inf
		}
		return 1 << 7 // +inf
	case exp == 0 && frac == 0:
		if sign {
			return 1 << 3 // -0
		}
		return 1 << 4 // +0
	case exp == 0:
		if sign {
			return 1 << 2 // negative subnormal
		}
		return 1 << 5 // positive subnormal
	default:
		if sign {
			return 1 << 1 // negative normal
		}
		return 1 << 6 // positive normal
	}
}
