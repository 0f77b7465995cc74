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

package disasm

import "testing"

func TestDisassembleKnownForms(t *testing.T) {
	cases := []struct {
		name string
		raw  uint32
		want string
	}{
		{"addi", 0x00100093, "addi x1, x0, 1"},       // addi x1, x0, 1
		{"add", 0x00208133, "add x2, x1, x2"},         // add x2, x1, x2
		{"ecall", 0x00000073, "ecall"},
		{"ebreak", 0x00100073, "ebreak"},
		{"mret", 0x30200073, "mret"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Disassemble(c.raw)
			if got != c.want {
				t.Fatalf("Disassemble(%#x) = %q, want %q", c.raw, got, c.want)
			}
		})
	}
}

func TestDisassembleUnknownDoesNotPanic(t *testing.T) {
	got := Disassemble(0xffffffff)
	if got == "" {
		t.Fatal("expected a non-empty placeholder string")
	}
}

func TestDisassembleZeroIsUnimp(t *testing.T) {
	if got := Disassemble(0); got != "unimp (0x00000000)" {
		t.Fatalf("got %q", got)
	}
}
