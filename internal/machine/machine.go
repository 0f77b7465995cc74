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

// Package machine wires one hart, the bus, and the virt board's fixed
// device set (Power, CLINT, PLIC, UART, VirtIO-MMIO block) into the core
// loop spec.md §4.10 describes, and exposes the narrow surface the
// debugger and cmd/riscv-emulator drive it through.
//
// Grounded on the teacher's emul/cpu.go Run loop (fetch-tick-execute-check
// shape) and main.go's device construction sequence, generalized from
// WUT-4's fixed two-device board (console + die) to the virt board's six
// components.
package machine

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/WanDejun/riscv-emulator/internal/bus"
	"github.com/WanDejun/riscv-emulator/internal/clint"
	"github.com/WanDejun/riscv-emulator/internal/device"
	"github.com/WanDejun/riscv-emulator/internal/disasm"
	"github.com/WanDejun/riscv-emulator/internal/elfloader"
	"github.com/WanDejun/riscv-emulator/internal/hart"
	"github.com/WanDejun/riscv-emulator/internal/plic"
	"github.com/WanDejun/riscv-emulator/internal/power"
	"github.com/WanDejun/riscv-emulator/internal/uart"
	"github.com/WanDejun/riscv-emulator/internal/virtio"
)

// Address map, spec.md §3.
const (
	powerBase = 0x0010_0000
	powerSize = 0x02

	clintBase = 0x0200_0000
	clintSize = 0x1_0000

	plicBase = 0x0C00_0000
	plicSize = 0x0400_0000

	uartBase = 0x1000_0000
	uartSize = 0x08

	virtioBase = 0x1000_1000
	virtioSize = 0x1000

	ramBase = 0x8000_0000
	ramSize = 0x0800_0000

	uartIRQID   = uart.IRQID
	virtioIRQID = 2
)

// Exit codes, spec.md §6.
const (
	ExitPowerOff    = 0
	ExitDebuggerQuit = 1
	ExitEmulatorError = 2
)

// StepObserver is the interface debugger.REPL satisfies structurally; it is
// declared here so that machine does not import the debugger package.
type StepObserver interface {
	BeforeFetch(h *hart.Hart)
	AfterStep(h *hart.Hart, trapped bool)
	Quit() bool
}

// Machine is one fully wired virt board: a hart plus its bus and devices.
type Machine struct {
	Hart  *hart.Hart
	Bus   *bus.Bus
	clint *clint.CLINT
	plic  *plic.PLIC
	uart  *uart.UART
	power *power.Power
	block *virtio.Block

	log *slog.Logger

	trapCount uint64
}

// Config selects the optional backing devices.
type Config struct {
	ELFPath        string
	BlockImagePath string // empty disables the VirtIO block device
	UARTSink       uart.Sink
	Log            *slog.Logger
}

// New builds a machine, loads elf into RAM, and resets the hart to the
// ELF's entry point.
func New(cfg Config) (*Machine, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	b := bus.New()
	ram := bus.NewRAM(ramSize)
	b.Map("ram", ramBase, ramSize, ram)

	h := hart.New(b, 0)
	h.OnTrap = func(ev hart.TrapEvent) {
		instr := "?"
		if !ev.Interrupt {
			if raw, f := b.Read(ev.PC, device.Word); f == nil {
				instr = disasm.Disassemble(uint32(raw))
			}
		}
		cfg.Log.Debug("trap", "cause", ev.Cause, "interrupt", ev.Interrupt, "pc", fmt.Sprintf("%#x", ev.PC), "tval", fmt.Sprintf("%#x", ev.Tval), "instr", instr)
	}

	cl := clint.New(h.CSR)
	b.Map("clint", clintBase, clintSize, cl)

	pl := plic.New()
	pl.SetContext(0, plic.NewMEIContext(h.CSR))
	pl.SetContext(1, plic.NewSEIContext(h.CSR))
	b.Map("plic", plicBase, plicSize, pl)
	b.SetIRQController(pl)

	sink := cfg.UARTSink
	if sink == nil {
		sink = stdoutSink{}
	}
	u := uart.New(b.Host(), sink)
	b.Map("uart", uartBase, uartSize, u)

	pw := power.New()
	b.Map("power", powerBase, powerSize, pw)

	m := &Machine{Hart: h, Bus: b, clint: cl, plic: pl, uart: u, power: pw, log: cfg.Log}

	if cfg.BlockImagePath != "" {
		f, err := os.OpenFile(cfg.BlockImagePath, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("machine: open block image: %w", err)
		}
		blk := virtio.New(b.Host(), f, virtioIRQID)
		b.Map("virtio-block", virtioBase, virtioSize, blk)
		m.block = blk
	}

	img, err := elfloader.Load(cfg.ELFPath, ramBase, ramSize, ram)
	if err != nil {
		return nil, err
	}
	h.Reset(img.Entry)

	return m, nil
}

type stdoutSink struct{}

func (stdoutSink) WriteByte(b byte) error {
	_, err := os.Stdout.Write([]byte{b})
	return err
}

// PushInput feeds one byte of host keyboard input to the UART's RX FIFO.
func (m *Machine) PushInput(b byte) { m.uart.Push(b) }

// Step runs the core loop's one iteration (spec.md §4.10): tick devices
// (CLINT's mtime advances and re-derives MTI; PLIC pending state is kept
// current reactively as devices call RaiseIRQ/ClearIRQ through the bus
// host, so there is no separate "drain" pass here), then execute exactly
// one hart instruction.
func (m *Machine) Step() error {
	if m.Hart.Halted || m.power.Halted {
		return nil
	}
	m.Bus.Tick()
	before := m.Hart.Retired
	m.Hart.Step()
	if m.Hart.Retired == before {
		m.trapCount++
	}
	return nil
}

// Run executes until Power halts the machine, the observer asks to quit,
// or an error occurs, returning the exit code spec.md §6 specifies.
func (m *Machine) Run(obs StepObserver) (int, error) {
	for {
		if m.power.Halted {
			return ExitPowerOff, nil
		}
		if obs != nil {
			if obs.Quit() {
				return ExitDebuggerQuit, nil
			}
			obs.BeforeFetch(m.Hart)
			if obs.Quit() {
				return ExitDebuggerQuit, nil
			}
		}
		before := m.Hart.Retired
		if err := m.Step(); err != nil {
			return ExitEmulatorError, err
		}
		if obs != nil {
			obs.AfterStep(m.Hart, m.Hart.Retired == before)
		}
	}
}

// Registers returns the hart for inspection (debugger "regs" command).
func (m *Machine) Registers() *hart.Hart { return m.Hart }

// Halted reports whether the Power sentinel has fired.
func (m *Machine) Halted() bool { return m.power.Halted }

// ReadPhys reads length bytes of guest-physical memory starting at addr,
// one natural-width chunk at a time, for the debugger's "mem" command.
func (m *Machine) ReadPhys(addr uint64, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	for len(out) < length {
		remaining := length - len(out)
		width := device.Byte
		switch {
		case remaining >= 8 && addr%8 == 0:
			width = device.Doubleword
		case remaining >= 4 && addr%4 == 0:
			width = device.Word
		case remaining >= 2 && addr%2 == 0:
			width = device.Halfword
		}
		v, f := m.Bus.Read(addr, width)
		if f != nil {
			return nil, fmt.Errorf("machine: read fault at %#x: cause=%d", addr, f.Cause)
		}
		for i := 0; i < int(width); i++ {
			out = append(out, byte(v>>(8*i)))
		}
		addr += uint64(width)
	}
	return out[:length], nil
}
