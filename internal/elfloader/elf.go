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

// Package elfloader places a 64-bit little-endian RISC-V ELF's PT_LOAD
// segments into guest RAM and reports the entry point (spec.md §6).
//
// Uses the standard library's debug/elf the same way
// other_examples' xyproto-flapc and xyproto-vibe67 ELF loaders do: open,
// iterate Progs, copy segment bytes by program-header-declared range. No
// third-party ELF parser appears anywhere in the example pack; debug/elf
// already exposes exactly the program-header walk this loader needs, so
// there is no ecosystem library to prefer over it (see SPEC_FULL.md §4.11).
package elfloader

import (
	"debug/elf"
	"fmt"
)

// RAM is the narrow write surface the loader needs: guest-physical-offset
// byte writes into a preallocated backing array.
type RAM interface {
	Load(offset uint64, data []byte)
}

// Image is the result of loading one ELF: where execution starts.
type Image struct {
	Entry uint64
}

// Load reads path, an ELF64 little-endian RISC-V executable, and copies each
// PT_LOAD segment's file bytes into ram at its guest-physical address,
// zero-filling the portion between FileSiz and MemSiz (BSS).
func Load(path string, ramBase, ramSize uint64, ram RAM) (Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("elfloader: open %s: %w", path, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return Image{}, fmt.Errorf("elfloader: %s is not a 64-bit ELF", path)
	}
	if f.Data != elf.ELFDATA2LSB {
		return Image{}, fmt.Errorf("elfloader: %s is not little-endian", path)
	}
	if f.Machine != elf.EM_RISCV {
		return Image{}, fmt.Errorf("elfloader: %s is not a RISC-V ELF", path)
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Vaddr < ramBase || prog.Vaddr+prog.Memsz > ramBase+ramSize {
			return Image{}, fmt.Errorf("elfloader: segment at %#x (size %#x) falls outside RAM [%#x,%#x)",
				prog.Vaddr, prog.Memsz, ramBase, ramBase+ramSize)
		}
		data := make([]byte, prog.Memsz)
		n, err := prog.ReadAt(data[:prog.Filesz], 0)
		if err != nil && uint64(n) != prog.Filesz {
			return Image{}, fmt.Errorf("elfloader: reading segment at %#x: %w", prog.Vaddr, err)
		}
		ram.Load(prog.Vaddr-ramBase, data)
	}

	return Image{Entry: f.Entry}, nil
}
