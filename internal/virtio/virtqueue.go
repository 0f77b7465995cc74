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

package virtio

import "github.com/WanDejun/riscv-emulator/internal/device"

// Descriptor is the split-virtqueue descriptor layout spec.md §3 names:
// (paddr:u64, len:u32, flags:u16, next:u16), 16 bytes, little-endian.
//
// Field naming follows other_examples' VirtualQueueDesc{Addr,Len,Flags,Next}
// convention, adapted to this package's PAddr/Len/Flags/Next.
type Descriptor struct {
	PAddr uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

const (
	descSize = 16

	flagNext     = 1
	flagWrite    = 2
	flagIndirect = 4
)

// Queue is the device-side view of one split virtqueue (spec.md §3).
type Queue struct {
	DescGPA      uint64
	AvailGPA     uint64
	UsedGPA      uint64
	Num          uint32
	Ready        bool
	LastAvailIdx uint16
	Failed       bool
}

func descAddr(base uint64, idx uint16) uint64 { return base + uint64(idx)*descSize }

func readDescriptor(host device.Host, base uint64, idx uint16) (Descriptor, *device.Fault) {
	addr := descAddr(base, idx)
	paddr, f := host.ReadPhys(addr, device.Doubleword)
	if f != nil {
		return Descriptor{}, f
	}
	length, f := host.ReadPhys(addr+8, device.Word)
	if f != nil {
		return Descriptor{}, f
	}
	flags, f := host.ReadPhys(addr+12, device.Halfword)
	if f != nil {
		return Descriptor{}, f
	}
	next, f := host.ReadPhys(addr+14, device.Halfword)
	if f != nil {
		return Descriptor{}, f
	}
	return Descriptor{PAddr: paddr, Len: uint32(length), Flags: uint16(flags), Next: uint16(next)}, nil
}

// availIdx reads the avail ring's idx field (offset 2: flags is 2 bytes, idx
// follows).
func (q *Queue) availIdx(host device.Host) (uint16, *device.Fault) {
	v, f := host.ReadPhys(q.AvailGPA+2, device.Halfword)
	return uint16(v), f
}

// availRingEntry reads avail.ring[slot mod num].
func (q *Queue) availRingEntry(host device.Host, slot uint16) (uint16, *device.Fault) {
	idx := uint32(slot) % q.Num
	v, f := host.ReadPhys(q.AvailGPA+4+uint64(idx)*2, device.Halfword)
	return uint16(v), f
}

// usedFlags reads used.flags (offset 0).
func (q *Queue) usedFlags(host device.Host) (uint16, *device.Fault) {
	v, f := host.ReadPhys(q.UsedGPA, device.Halfword)
	return uint16(v), f
}

// usedIdx reads used.idx (offset 2).
func (q *Queue) usedIdx(host device.Host) (uint16, *device.Fault) {
	v, f := host.ReadPhys(q.UsedGPA+2, device.Halfword)
	return uint16(v), f
}

// publishUsed appends {id, len} to used.ring[idx] then increments used.idx,
// the two-step "write data, then publish" sequence spec.md §4.6 step h and
// §5's ordering guarantee require.
func (q *Queue) publishUsed(host device.Host, id uint16, length uint32) *device.Fault {
	idx, f := q.usedIdx(host)
	if f != nil {
		return f
	}
	slot := uint32(idx) % q.Num
	elemAddr := q.UsedGPA + 4 + uint64(slot)*8
	if f := host.WritePhys(elemAddr, device.Word, uint64(id)); f != nil {
		return f
	}
	if f := host.WritePhys(elemAddr+4, device.Word, uint64(length)); f != nil {
		return f
	}
	// The used.idx increment is the publication point: writing it last is
	// what makes the buffer write happen-before the guest's observation of
	// the new used entry (spec.md §5).
	return host.WritePhys(q.UsedGPA+2, device.Halfword, uint64(idx+1))
}

// chain is a walked descriptor chain: header, data descriptors, and the
// trailing status descriptor, per spec.md §4.6 step c.
type chain struct {
	head   uint16
	header Descriptor
	data   []Descriptor
	status Descriptor
}

// walkChain follows Next while flagNext is set, bounding the length by
// q.Num to forbid cycles (spec.md §4.6 step b).
func walkChain(host device.Host, q *Queue, head uint16) (chain, bool) {
	var descs []Descriptor
	idx := head
	seen := uint32(0)
	for {
		if seen >= q.Num {
			return chain{}, false // cycle or runaway chain
		}
		d, f := readDescriptor(host, q.DescGPA, idx)
		if f != nil {
			return chain{}, false
		}
		descs = append(descs, d)
		seen++
		if d.Flags&flagNext == 0 {
			break
		}
		idx = d.Next
		if uint32(idx) >= q.Num {
			return chain{}, false
		}
	}
	if len(descs) < 2 {
		return chain{}, false // need at least header + status
	}
	return chain{
		head:   head,
		header: descs[0],
		data:   descs[1 : len(descs)-1],
		status: descs[len(descs)-1],
	}, true
}
