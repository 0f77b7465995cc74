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

package elfloader

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildMinimalELF assembles a minimal ELF64 little-endian EM_RISCV
// executable with exactly one PT_LOAD segment carrying data at vaddr, entry
// point entry.
func buildMinimalELF(t *testing.T, entry, vaddr uint64, data []byte) []byte {
	t.Helper()
	const (
		ehSize = 64
		phSize = 56
	)
	dataOff := uint64(ehSize + phSize)

	buf := make([]byte, dataOff+uint64(len(data)))
	le := binary.LittleEndian

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	le.PutUint16(buf[16:], 2)   // e_type = ET_EXEC
	le.PutUint16(buf[18:], 243) // e_machine = EM_RISCV
	le.PutUint32(buf[20:], 1)   // e_version
	le.PutUint64(buf[24:], entry)
	le.PutUint64(buf[32:], ehSize) // e_phoff
	le.PutUint16(buf[52:], ehSize)
	le.PutUint16(buf[54:], phSize)
	le.PutUint16(buf[56:], 1) // e_phnum

	ph := buf[ehSize:]
	le.PutUint32(ph[0:], 1) // PT_LOAD
	le.PutUint32(ph[4:], 7) // flags RWX
	le.PutUint64(ph[8:], dataOff)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], uint64(len(data)))
	le.PutUint64(ph[40:], uint64(len(data)))
	le.PutUint64(ph[48:], 0x1000)

	copy(buf[dataOff:], data)
	return buf
}

type fakeRAM struct {
	base uint64
	buf  []byte
}

func (r *fakeRAM) Load(offset uint64, data []byte) {
	copy(r.buf[offset:], data)
}

func TestLoadPlacesSegmentAndReportsEntry(t *testing.T) {
	const ramBase = 0x8000_0000
	const entry = ramBase + 0x10

	program := []byte{0x13, 0x00, 0x00, 0x00} // addi x0, x0, 0 (nop)
	elfBytes := buildMinimalELF(t, entry, ramBase, program)

	path := filepath.Join(t.TempDir(), "test.elf")
	if err := os.WriteFile(path, elfBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	ram := &fakeRAM{base: ramBase, buf: make([]byte, 0x1000)}
	img, err := Load(path, ramBase, 0x1000, ram)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Entry != entry {
		t.Fatalf("got entry %#x, want %#x", img.Entry, uint64(entry))
	}
	for i, b := range program {
		if ram.buf[i] != b {
			t.Fatalf("byte %d: got %#x, want %#x", i, ram.buf[i], b)
		}
	}
}

func TestLoadRejectsSegmentOutsideRAM(t *testing.T) {
	const ramBase = 0x8000_0000
	elfBytes := buildMinimalELF(t, ramBase, ramBase+0x2000, []byte{1, 2, 3, 4})
	path := filepath.Join(t.TempDir(), "test.elf")
	os.WriteFile(path, elfBytes, 0o644)

	ram := &fakeRAM{base: ramBase, buf: make([]byte, 0x1000)}
	_, err := Load(path, ramBase, 0x1000, ram)
	if err == nil {
		t.Fatal("expected an error for a segment outside RAM bounds")
	}
}
