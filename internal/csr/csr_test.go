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

package csr

import "testing"

func TestResetFSInitial(t *testing.T) {
	f := New()
	if f.FS() != 1 {
		t.Fatalf("got FS=%d, want 1 (Initial)", f.FS())
	}
}

func TestMstatusMaskDropsReservedBits(t *testing.T) {
	f := New()
	f.Write(Mstatus, ^uint64(0))
	got := f.Read(Mstatus)
	if got&^mstatusMask != 0 {
		t.Fatalf("mstatus retained reserved bits: %#x", got)
	}
}

func TestMepcLowBitAlwaysZero(t *testing.T) {
	f := New()
	f.Write(Mepc, 0x8000_0003)
	if got := f.Read(Mepc); got != 0x8000_0002 {
		t.Fatalf("got %#x, want %#x", got, uint64(0x8000_0002))
	}
}

func TestMipDeviceBitsNotSoftwareWritable(t *testing.T) {
	f := New()
	f.Write(Mip, ^uint64(0))
	got := f.Read(Mip)
	if got&(1<<MTIBit) != 0 || got&(1<<MEIBit) != 0 {
		t.Fatalf("MTI/MEI should not be software-writable via mip: %#x", got)
	}
	if got&(1<<MSIBit) == 0 || got&(1<<SSIBit) == 0 {
		t.Fatalf("MSI/SSI should be software-writable via mip: %#x", got)
	}
}

func TestSetMTIPendingNotClearableByWrite(t *testing.T) {
	f := New()
	f.SetMTIPending(true)
	f.Write(Mip, 0) // software clearing everything it can
	if f.Read(Mip)&(1<<MTIBit) == 0 {
		t.Fatal("MTI should remain set: it is device-driven, not software-clearable")
	}
	f.SetMTIPending(false)
	if f.Read(Mip)&(1<<MTIBit) != 0 {
		t.Fatal("SetMTIPending(false) should clear MTI")
	}
}

func TestIllegalWriteUndefinedCSR(t *testing.T) {
	if !IllegalWrite(0x999, Machine) {
		t.Fatal("undefined CSR should be illegal to write")
	}
}

func TestIllegalWriteReadOnlyRange(t *testing.T) {
	if !IllegalWrite(Cycle, Machine) {
		t.Fatal("addr[11:10]==0b11 (Cycle) should be read-only")
	}
}

func TestIllegalAccessInsufficientPrivilege(t *testing.T) {
	if !IllegalWrite(Mstatus, Supervisor) {
		t.Fatal("supervisor should not be able to write mstatus")
	}
	if !IllegalRead(Mstatus, User) {
		t.Fatal("user should not be able to read mstatus")
	}
}

func TestSstatusAliasesMstatus(t *testing.T) {
	f := New()
	f.SetSIE(true)
	if f.Read(Sstatus)&(1<<MstatusSIEBit) == 0 {
		t.Fatal("sstatus should reflect mstatus.SIE")
	}
	f.Write(Sstatus, 0)
	if f.SIEEnabled() {
		t.Fatal("writing sstatus should clear mstatus.SIE")
	}
}

func TestMtvecDirectAndVectored(t *testing.T) {
	f := New()
	f.Write(Mtvec, 0x8000_0000) // direct
	if got := f.MtvecTarget(7, true); got != 0x8000_0000 {
		t.Fatalf("direct mode: got %#x, want base", got)
	}
	f.Write(Mtvec, 0x8000_0000|0x1) // vectored
	if got := f.MtvecTarget(7, true); got != 0x8000_0000+4*7 {
		t.Fatalf("vectored interrupt: got %#x, want base+4*cause", got)
	}
	if got := f.MtvecTarget(7, false); got != 0x8000_0000 {
		t.Fatalf("vectored exception should still use base: got %#x", got)
	}
}
