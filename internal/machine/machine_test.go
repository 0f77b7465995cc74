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

package machine

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildMinimalELF mirrors internal/elfloader's own test helper: a one-segment
// ELF64 LE EM_RISCV executable, built by hand since the pack has no ELF
// writer library.
func buildMinimalELF(t *testing.T, entry, vaddr uint64, program []byte) string {
	t.Helper()
	const (
		ehSize = 64
		phSize = 56
	)
	dataOff := uint64(ehSize + phSize)
	buf := make([]byte, dataOff+uint64(len(program)))
	le := binary.LittleEndian

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4], buf[5], buf[6] = 2, 1, 1
	le.PutUint16(buf[16:], 2)
	le.PutUint16(buf[18:], 243)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], entry)
	le.PutUint64(buf[32:], ehSize)
	le.PutUint16(buf[52:], ehSize)
	le.PutUint16(buf[54:], phSize)
	le.PutUint16(buf[56:], 1)

	ph := buf[ehSize:]
	le.PutUint32(ph[0:], 1)
	le.PutUint32(ph[4:], 7)
	le.PutUint64(ph[8:], dataOff)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], uint64(len(program)))
	le.PutUint64(ph[40:], uint64(len(program)))
	le.PutUint64(ph[48:], 0x1000)

	copy(buf[dataOff:], program)

	path := filepath.Join(t.TempDir(), "test.elf")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// encodeI encodes an I-type instruction (e.g. ADDI).
func encodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func TestRunHaltsOnPowerWrite(t *testing.T) {
	entry := uint64(ramBase)

	// lui x2, 0x100 -> x2 = 0x00100000 (power base)
	luiX2 := uint32(0x100)<<12 | 2<<7 | 0x37
	// addi x1, x0, 0x555 -> x1 = 0x555
	addiX1 := encodeI(0x13, 1, 0, 0, 0x555)
	// slli x1, x1, 4 -> x1 = 0x5550
	slliX1 := uint32(4)<<20 | 1<<15 | 1<<12 | 1<<7 | 0x13
	// addi x1, x1, 5 -> x1 = 0x5555
	addiX1b := encodeI(0x13, 1, 0, 1, 5)
	// sw x1, 0(x2)
	swX1X2 := uint32(0)<<25 | 1<<20 | 2<<15 | 2<<12 | 0<<7 | 0x23

	le := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	var code []byte
	code = append(code, le(luiX2)...)
	code = append(code, le(addiX1)...)
	code = append(code, le(slliX1)...)
	code = append(code, le(addiX1b)...)
	code = append(code, le(swX1X2)...)

	path := buildMinimalELF(t, entry, entry, code)

	m, err := New(Config{ELFPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	code_, err := m.Run(nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code_ != ExitPowerOff {
		t.Fatalf("got exit code %d, want ExitPowerOff", code_)
	}
	if !m.Halted() {
		t.Fatal("expected machine to report Halted() after power-off write")
	}
}

func TestReadPhysReturnsBytes(t *testing.T) {
	entry := uint64(ramBase)
	path := buildMinimalELF(t, entry, entry, []byte{0x13, 0x00, 0x00, 0x00})
	m, err := New(Config{ELFPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := m.ReadPhys(entry, 4)
	if err != nil {
		t.Fatalf("ReadPhys: %v", err)
	}
	if len(data) != 4 || data[0] != 0x13 {
		t.Fatalf("got %x, want nop encoding prefix 0x13", data)
	}
}
