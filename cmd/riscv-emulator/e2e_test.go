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

// e2e_test.go drives the whole stack (ELF load, core loop, UART, Power)
// through the same machine.New/Run entry points main() uses, the way
// emul/emul_test.go's runTestBinary harness drives emul/cpu.go end to end.
// It hand-assembles tiny guest programs in place of fixture binaries, since
// the pack carries no RISC-V assembler.
package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/WanDejun/riscv-emulator/internal/machine"
)

const (
	ramBaseE2E  = 0x8000_0000
	uartBaseE2E = 0x1000_0000
	powerBaseE2E = 0x0010_0000
)

type captureSink struct{ buf bytes.Buffer }

func (c *captureSink) WriteByte(b byte) error {
	return c.buf.WriteByte(b)
}

func buildELF(t *testing.T, entry uint64, program []byte) string {
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
	le.PutUint64(ph[16:], entry)
	le.PutUint64(ph[24:], entry)
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

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// encodeI encodes an I-type instruction.
func encodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

// encodeS encodes an S-type instruction (e.g. SB).
func encodeS(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm) & 0xFFF
	return (u>>5)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

// buildPrintThenHalt assembles: load x2 with uartBase, load x3 with
// powerBase, then for each byte load an immediate into x1 and SB it to
// uartBase+0, finally SW x4 = 0x5555 (the shutdown magic) to powerBase+0
// to halt.
func buildPrintThenHalt(msg string) []byte {
	var code []byte
	emit := func(v uint32) { code = append(code, le32(v)...) }

	// lui x2, uartBase>>12
	emit(uint32(uartBaseE2E>>12)<<12 | 2<<7 | 0x37)
	// lui x3, powerBase>>12
	emit(uint32(powerBaseE2E>>12)<<12 | 3<<7 | 0x37)

	for i := 0; i < len(msg); i++ {
		// addi x1, x0, msg[i]
		emit(encodeI(0x13, 1, 0, 0, int32(msg[i])))
		// sb x1, 0(x2)
		emit(encodeS(0x23, 0x0, 2, 1, 0))
	}

	// addi x4, x0, 0x555
	emit(encodeI(0x13, 4, 0, 0, 0x555))
	// slli x4, x4, 4
	emit(uint32(4)<<20 | 4<<15 | 1<<12 | 4<<7 | 0x13)
	// addi x4, x4, 5 -> x4 = 0x5555 (power.ShutdownMagic)
	emit(encodeI(0x13, 4, 0, 4, 5))
	// sw x4, 0(x3) -> power off
	emit(encodeS(0x23, 0x2, 3, 4, 0))
	return code
}

// TestEndToEndPrintsPassThenPowersOff drives the full CLI-level stack (ELF
// loader -> machine.New -> machine.Run) the same way main()'s non-debug
// path does, standing in for spec.md §8's "prints ... then powers off"
// scenario shape (scenarios 1, 3, 4, 5 all follow this pattern: write an
// ASCII message byte-by-byte to the UART, then halt via Power).
func TestEndToEndPrintsPassThenPowersOff(t *testing.T) {
	code := buildPrintThenHalt("PASS")
	path := buildELF(t, ramBaseE2E, code)

	sink := &captureSink{}
	m, err := machine.New(machine.Config{ELFPath: path, UARTSink: sink})
	if err != nil {
		t.Fatalf("machine.New: %v", err)
	}

	exitCode, err := m.Run(nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exitCode != machine.ExitPowerOff {
		t.Fatalf("got exit code %d, want ExitPowerOff", exitCode)
	}
	if got := sink.buf.String(); got != "PASS" {
		t.Fatalf("got UART output %q, want %q", got, "PASS")
	}
}
