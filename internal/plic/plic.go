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

// Package plic implements the platform-level interrupt controller: source
// priorities, pending bits, per-context enable bits and threshold, and the
// claim/complete protocol (spec.md §4.5). There is no teacher analogue —
// WUT-4 has only fixed exception vectors and no external interrupt
// controller — so the register layout and claim algorithm are taken
// directly from the spec, structured with the same register-array-plus-
// methods shape as internal/clint for consistency within this codebase.
package plic

import "github.com/WanDejun/riscv-emulator/internal/device"

const (
	numSources  = 64 // source ids 0..63, matching the scenario 6 test device at id 63
	numContexts = 2  // context 0 = hart0/M, context 1 = hart0/S (spec.md §4.5)

	offPriorityBase = 0x0
	offPendingBits  = 0x1000
	offEnableBase   = 0x2000
	enableStride    = 0x80
	offContextBase  = 0x200000
	contextStride   = 0x1000
	offThreshold    = 0x0
	offClaim        = 0x4
)

// ContextIRQ is the narrow interface into the hart's CSR file for a single
// PLIC context's external-interrupt line.
type ContextIRQ interface {
	SetPending(asserted bool)
}

// MEIWriter and SEIWriter are the csr.File methods the machine wiring adapts
// into ContextIRQ for context 0 (M) and context 1 (S) respectively.
type MEIWriter interface{ SetMEIPending(bool) }
type SEIWriter interface{ SetSEIPending(bool) }

type meiContext struct{ w MEIWriter }

func (c meiContext) SetPending(asserted bool) { c.w.SetMEIPending(asserted) }

type seiContext struct{ w SEIWriter }

func (c seiContext) SetPending(asserted bool) { c.w.SetSEIPending(asserted) }

// NewMEIContext and NewSEIContext adapt a csr.File into a ContextIRQ for
// SetContext(0, ...) and SetContext(1, ...) respectively.
func NewMEIContext(w MEIWriter) ContextIRQ { return meiContext{w: w} }
func NewSEIContext(w SEIWriter) ContextIRQ { return seiContext{w: w} }

// PLIC is the interrupt arbiter described in spec.md §4.5.
type PLIC struct {
	priority [numSources]uint32
	pending  [numSources]bool
	enable   [numContexts][numSources]bool
	threshold [numContexts]uint32
	claimed   [numSources]bool // source currently claimed (not yet completed)

	contexts [numContexts]ContextIRQ
}

// New returns a PLIC with no context wired; call SetContext for each of the
// (hart, privilege) pairs the machine wants to drive.
func New() *PLIC {
	return &PLIC{}
}

// SetContext wires ctx's external-interrupt line (MEI for ctx=0, SEI for
// ctx=1 on the sole hart this core supports).
func (p *PLIC) SetContext(ctx int, irq ContextIRQ) {
	p.contexts[ctx] = irq
}

// SetPending implements bus.IRQController: a device asserts its source id.
func (p *PLIC) SetPending(irqID int) {
	if irqID <= 0 || irqID >= numSources {
		return
	}
	p.pending[irqID] = true
	p.updateAll()
}

// ClearPending implements bus.IRQController: a device deasserts its source.
// Per spec.md §4.5, pending is also cleared on claim; this path additionally
// lets level-triggered sources (UART) drop pending once serviced without a
// claim round-trip.
func (p *PLIC) ClearPending(irqID int) {
	if irqID <= 0 || irqID >= numSources {
		return
	}
	p.pending[irqID] = false
	p.updateAll()
}

func (p *PLIC) pendingSet(ctx int) []int {
	var ids []int
	for i := 1; i < numSources; i++ {
		if p.enable[ctx][i] && p.pending[i] && p.priority[i] > p.threshold[ctx] {
			ids = append(ids, i)
		}
	}
	return ids
}

func (p *PLIC) updateAll() {
	for ctx := range p.contexts {
		if p.contexts[ctx] == nil {
			continue
		}
		p.contexts[ctx].SetPending(len(p.pendingSet(ctx)) > 0)
	}
}

// claim returns the highest-priority pending source for ctx, ties broken by
// lowest id, clearing its pending bit atomically with the read.
func (p *PLIC) claim(ctx int) uint32 {
	ids := p.pendingSet(ctx)
	if len(ids) == 0 {
		return 0
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if p.priority[id] > p.priority[best] {
			best = id
		}
	}
	p.pending[best] = false
	p.claimed[best] = true
	p.updateAll()
	return uint32(best)
}

func (p *PLIC) complete(ctx int, id uint32) {
	if id > 0 && id < numSources {
		p.claimed[id] = false
	}
	p.updateAll()
}

func (p *PLIC) Read(offset uint64, width device.Width) (uint64, *device.Fault) {
	switch {
	case offset < offPendingBits:
		id := offset / 4
		if id < numSources {
			return uint64(p.priority[id]), nil
		}
	case offset >= offPendingBits && offset < offEnableBase:
		word := int((offset - offPendingBits) / 4)
		var v uint64
		for i := word * 32; i < numSources && i < (word+1)*32; i++ {
			if p.pending[i] {
				v |= 1 << uint(i-word*32)
			}
		}
		return v, nil
	case offset >= offEnableBase && offset < offContextBase:
		ctx := int((offset - offEnableBase) / enableStride)
		word := int(((offset - offEnableBase) % enableStride) / 4)
		if ctx < numContexts {
			var v uint64
			for i := word * 32; i < numSources && i < (word+1)*32; i++ {
				if p.enable[ctx][i] {
					v |= 1 << uint(i-word*32)
				}
			}
			return v, nil
		}
	case offset >= offContextBase:
		rel := offset - offContextBase
		ctx := int(rel / contextStride)
		reg := rel % contextStride
		if ctx < numContexts {
			switch reg {
			case offThreshold:
				return uint64(p.threshold[ctx]), nil
			case offClaim:
				return uint64(p.claim(ctx)), nil
			}
		}
	}
	return 0, nil
}

func (p *PLIC) Write(offset uint64, width device.Width, value uint64) *device.Fault {
	switch {
	case offset < offPendingBits:
		id := offset / 4
		if id < numSources {
			p.priority[id] = uint32(value)
			p.updateAll()
		}
	case offset >= offEnableBase && offset < offContextBase:
		ctx := int((offset - offEnableBase) / enableStride)
		word := int(((offset - offEnableBase) % enableStride) / 4)
		if ctx < numContexts {
			for i := word * 32; i < numSources && i < (word+1)*32; i++ {
				p.enable[ctx][i] = value&(1<<uint(i-word*32)) != 0
			}
			p.updateAll()
		}
	case offset >= offContextBase:
		rel := offset - offContextBase
		ctx := int(rel / contextStride)
		reg := rel % contextStride
		if ctx < numContexts {
			switch reg {
			case offThreshold:
				p.threshold[ctx] = uint32(value)
				p.updateAll()
			case offClaim:
				p.complete(ctx, uint32(value))
			}
		}
	}
	return nil
}

func (p *PLIC) Tick() {}

func (p *PLIC) IRQ() bool { return false } // lines are pushed to contexts directly, not queried.
